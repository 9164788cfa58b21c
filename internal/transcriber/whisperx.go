package transcriber

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/renameio/v2"

	"github.com/juniormartinxo/transcription/internal/config"
)

const (
	// killGracePeriod is how long the engine gets to exit after SIGTERM
	// before it is killed.
	killGracePeriod = 5 * time.Second
	maxStderrLines  = 100
)

// WhisperX runs the whisperx command line for one model/device pair and
// renders the transcript itself from the engine's JSON output.
type WhisperX struct {
	binary    string
	model     string
	forceCPU  bool
	language  string
	batchSize int
	hfToken   string
	logger    *slog.Logger
}

// NewWhisperX builds an engine from the transcriber configuration.
func NewWhisperX(cfg config.TranscriberConfig, logger *slog.Logger) *WhisperX {
	if logger == nil {
		logger = slog.Default()
	}
	return &WhisperX{
		binary:    cfg.Binary,
		model:     cfg.Model,
		forceCPU:  cfg.ForceCPU,
		language:  cfg.Language,
		batchSize: cfg.BatchSize,
		hfToken:   cfg.HFToken,
		logger:    logger,
	}
}

// args assembles the whisperx invocation for one request. The engine
// always emits JSON into the staging dir; rendering happens on our side.
func (w *WhisperX) args(audioPath, stagingDir string, diarize bool) []string {
	args := []string{
		audioPath,
		"--model", w.model,
		"--output_format", "json",
		"--output_dir", stagingDir,
	}
	if w.batchSize > 0 {
		args = append(args, "--batch_size", strconv.Itoa(w.batchSize))
	}
	if w.language != "" {
		args = append(args, "--language", w.language)
	}
	if w.forceCPU {
		args = append(args, "--device", "cpu", "--compute_type", "int8")
	}
	if diarize {
		args = append(args, "--diarize")
		if w.hfToken != "" {
			args = append(args, "--hf_token", w.hfToken)
		}
	}
	return args
}

// Transcribe runs the engine and writes the rendered transcript to
// req.OutputPath. The staging directory holding the raw engine output is
// removed on return.
func (w *WhisperX) Transcribe(ctx context.Context, req Request) (Result, error) {
	if _, err := os.Stat(req.AudioPath); err != nil {
		return Result{}, fmt.Errorf("reading audio: %w", err)
	}

	staging, err := os.MkdirTemp("", "whisperx-")
	if err != nil {
		return Result{}, fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(staging)

	args := w.args(req.AudioPath, staging, req.Options.Diarization)
	w.logger.Info("transcribing",
		"audio", filepath.Base(req.AudioPath),
		"model", w.model,
		"diarize", req.Options.Diarization,
		"format", req.Options.OutputFormat,
	)

	start := time.Now()
	stderr, err := w.runEngine(ctx, args)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if stderr != "" {
			return Result{}, fmt.Errorf("whisperx: %s", stderr)
		}
		return Result{}, fmt.Errorf("whisperx: %w", err)
	}

	res, err := w.collect(staging, req.AudioPath)
	if err != nil {
		return Result{}, err
	}

	rendered, err := Render(res, req.Options)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o750); err != nil {
		return Result{}, fmt.Errorf("creating output directory: %w", err)
	}
	if err := renameio.WriteFile(req.OutputPath, rendered, 0o644); err != nil {
		return Result{}, fmt.Errorf("writing transcript: %w", err)
	}
	res.OutputPath = req.OutputPath

	w.logger.Info("transcription finished",
		"audio", filepath.Base(req.AudioPath),
		"segments", len(res.Segments),
		"took", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

// runEngine executes the process with SIGTERM-then-kill termination and
// returns the stderr tail on failure.
func (w *WhisperX) runEngine(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, w.binary, args...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGracePeriod

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe: %w", err)
	}

	var (
		mu    sync.Mutex
		lines []string
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderrPipe)
		scanner.Buffer(make([]byte, 64*1024), 64*1024)
		for scanner.Scan() {
			mu.Lock()
			lines = append(lines, scanner.Text())
			if len(lines) > maxStderrLines {
				lines = lines[len(lines)-maxStderrLines:]
			}
			mu.Unlock()
		}
	}()

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("starting whisperx: %w", err)
	}
	runErr := cmd.Wait()
	<-done

	if runErr != nil {
		mu.Lock()
		defer mu.Unlock()
		tail := lines
		if len(tail) > 3 {
			tail = tail[len(tail)-3:]
		}
		return strings.Join(tail, " | "), runErr
	}
	return "", nil
}

type whisperxDocument struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// collect locates and parses the engine's JSON output for the audio file.
func (w *WhisperX) collect(stagingDir, audioPath string) (Result, error) {
	stem := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(stagingDir, stem+".json")

	if _, err := os.Stat(jsonPath); err != nil {
		// some engine versions normalize the stem; take whatever landed
		matches, _ := filepath.Glob(filepath.Join(stagingDir, "*.json"))
		if len(matches) == 0 {
			return Result{}, fmt.Errorf("whisperx produced no transcript for %s", filepath.Base(audioPath))
		}
		jsonPath = matches[0]
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Result{}, fmt.Errorf("reading engine output: %w", err)
	}
	var doc whisperxDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Result{}, fmt.Errorf("parsing engine output: %w", err)
	}
	for i := range doc.Segments {
		doc.Segments[i].Text = strings.TrimSpace(doc.Segments[i].Text)
	}
	return Result{Segments: doc.Segments, Language: doc.Language}, nil
}
