package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/juniormartinxo/transcription/internal/models"
)

// Batch size caps, matching the upload routes.
const (
	MaxAudioBatch = 10
	MaxVideoBatch = 5
)

// BatchItem is the per-file outcome of a batch ingest. Tasks is empty
// when the file was rejected; Err carries the rejection.
type BatchItem struct {
	Filename string
	Tasks    []*models.TaskRecord
	Err      error
}

// Accepted reports whether the file produced tasks.
func (it BatchItem) Accepted() bool {
	return it.Err == nil
}

// BatchResult summarizes a batch ingest with one item per input file, in
// input order.
type BatchResult struct {
	BatchID string
	Items   []BatchItem
}

// Accepted returns how many files of the batch were admitted.
func (r *BatchResult) Accepted() int {
	n := 0
	for _, it := range r.Items {
		if it.Accepted() {
			n++
		}
	}
	return n
}

// IngestAudioBatch ingests up to MaxAudioBatch audio files under one
// batch id. Individual failures are reported per item and do not abort
// the remaining files.
func (i *Ingestor) IngestAudioBatch(ctx context.Context, uploads []Upload, opts models.TaskOptions) (*BatchResult, error) {
	if err := checkBatchSize(len(uploads), MaxAudioBatch); err != nil {
		return nil, err
	}

	batchID := models.NewTaskID(time.Now())
	result := &BatchResult{BatchID: batchID, Items: make([]BatchItem, 0, len(uploads))}

	for n, up := range uploads {
		item := BatchItem{Filename: up.Filename}
		rec, err := i.ingestAudioAs(ctx, batchItemID(batchID, n), batchID, up, opts)
		if err != nil {
			item.Err = err
			i.logger.Warn("batch file rejected",
				slog.String("batch_id", batchID),
				slog.String("filename", up.Filename),
				slog.Any("error", err))
		} else {
			item.Tasks = []*models.TaskRecord{rec}
		}
		result.Items = append(result.Items, item)
	}

	i.logger.Info("audio batch ingested",
		slog.String("batch_id", batchID),
		slog.Int("accepted", result.Accepted()),
		slog.Int("total", len(uploads)))
	return result, nil
}

// IngestVideoBatch ingests up to MaxVideoBatch video files under one
// batch id. Each admitted video fans out into its variant siblings, all
// stamped with the batch id.
func (i *Ingestor) IngestVideoBatch(ctx context.Context, uploads []Upload, opts models.TaskOptions) (*BatchResult, error) {
	if err := checkBatchSize(len(uploads), MaxVideoBatch); err != nil {
		return nil, err
	}

	batchID := models.NewTaskID(time.Now())
	result := &BatchResult{BatchID: batchID, Items: make([]BatchItem, 0, len(uploads))}

	for n, up := range uploads {
		item := BatchItem{Filename: up.Filename}
		vr, err := i.ingestVideoAs(ctx, batchItemID(batchID, n), batchID, up, opts)
		if err != nil {
			item.Err = err
			i.logger.Warn("batch file rejected",
				slog.String("batch_id", batchID),
				slog.String("filename", up.Filename),
				slog.Any("error", err))
		} else {
			item.Tasks = vr.Tasks
		}
		result.Items = append(result.Items, item)
	}

	i.logger.Info("video batch ingested",
		slog.String("batch_id", batchID),
		slog.Int("accepted", result.Accepted()),
		slog.Int("total", len(uploads)))
	return result, nil
}

func checkBatchSize(n, limit int) error {
	if n == 0 {
		return fmt.Errorf("batch has no files: %w", models.ErrEmptyUpload)
	}
	if n > limit {
		return fmt.Errorf("batch of %d exceeds %d files: %w", n, limit, models.ErrBatchTooLarge)
	}
	return nil
}

// batchItemID derives the id of the n-th file of a batch, zero-based,
// shaped {batch_id}_{NNN}_{HHMMSS}.
func batchItemID(batchID string, n int) string {
	return fmt.Sprintf("%s_%03d_%s", batchID, n, time.Now().Format("150405"))
}
