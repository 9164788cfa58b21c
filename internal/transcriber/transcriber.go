// Package transcriber produces transcript files from WAV audio. The only
// real implementation shells out to the WhisperX CLI; rendering of the
// final txt/srt/json artifact happens here so every engine yields the
// same output shapes.
package transcriber

import (
	"context"
	"log/slog"
	"sync"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/models"
)

// Request describes one transcription unit.
type Request struct {
	// AudioPath is the prepared 16 kHz mono WAV input.
	AudioPath string
	// OutputPath is where the rendered transcript must land.
	OutputPath string
	// Options control annotation and the rendered format.
	Options models.TaskOptions
}

// Result is the parsed engine output after the transcript was written.
type Result struct {
	Segments   []Segment
	Language   string
	OutputPath string
}

// Segment is one recognized span of speech.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// Transcriber converts one audio file into a transcript file. On context
// cancellation implementations abort promptly and return the context
// error. Implementations are not assumed safe for concurrent use; the
// scheduler's worker slots serialize calls.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

type providerKey struct {
	model    string
	forceCPU bool
}

// Provider hands out memoized Transcriber instances per {model, device}
// pair so repeated tasks with the same options reuse a warm engine.
type Provider struct {
	cfg    config.TranscriberConfig
	logger *slog.Logger

	mu    sync.Mutex
	cache map[providerKey]Transcriber
}

// NewProvider creates a provider bound to the transcriber configuration.
func NewProvider(cfg config.TranscriberConfig, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		cfg:    cfg,
		logger: logger,
		cache:  make(map[providerKey]Transcriber),
	}
}

// Get returns the cached instance for the model/device pair, creating it
// on first use. An empty model falls back to the configured default.
func (p *Provider) Get(model string, forceCPU bool) Transcriber {
	if model == "" {
		model = p.cfg.Model
	}
	key := providerKey{model: model, forceCPU: forceCPU}

	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.cache[key]; ok {
		return t
	}

	cfg := p.cfg
	cfg.Model = model
	cfg.ForceCPU = forceCPU
	t := NewWhisperX(cfg, p.logger)
	p.cache[key] = t
	p.logger.Debug("transcriber instance created", "model", model, "force_cpu", forceCPU)
	return t
}

// For resolves the instance for a task's options.
func (p *Provider) For(opts models.TaskOptions) Transcriber {
	return p.Get(opts.Model, p.cfg.ForceCPU)
}
