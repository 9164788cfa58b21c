package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/juniormartinxo/transcription/internal/models"
)

// apiError maps service sentinel errors onto huma status errors. Errors
// outside the taxonomy surface as 500 with the fallback message.
func apiError(fallback string, err error) error {
	switch {
	case errors.Is(err, models.ErrTaskNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, models.ErrNotCompleted),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrTaskExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, models.ErrInvalidOptions),
		errors.Is(err, models.ErrEmptyUpload),
		errors.Is(err, models.ErrBatchTooLarge):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, models.ErrFileTooLarge):
		return huma.NewError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, models.ErrUnsupportedFormat):
		return huma.NewError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, models.ErrQueueFull),
		errors.Is(err, models.ErrSchedulerStopped):
		return huma.Error503ServiceUnavailable(err.Error())
	case errors.Is(err, models.ErrDecoderTimeout):
		return huma.NewError(http.StatusGatewayTimeout, err.Error())
	}
	return huma.Error500InternalServerError(fallback, err)
}

// writeProblem writes an RFC 7807 problem document from a raw chi handler,
// matching the error shape huma produces for API operations.
func writeProblem(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}
