package handlers

import (
	"context"
	"testing"

	"github.com/juniormartinxo/transcription/internal/ffmpeg"
	"github.com/juniormartinxo/transcription/internal/scheduler"
)

func TestHealthHandler_GetLivez(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetLivez(context.Background(), &LivezInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output == nil {
		t.Fatal("expected non-nil output")
	}

	if output.Body.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", output.Body.Status)
	}
}

func TestHealthHandler_GetReadyz(t *testing.T) {
	t.Run("returns not_ready without a scheduler", func(t *testing.T) {
		handler := NewHealthHandler("1.0.0")

		output, err := handler.GetReadyz(context.Background(), &ReadyzInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if output == nil {
			t.Fatal("expected non-nil output")
		}

		if output.Body.Status != "not_ready" {
			t.Errorf("expected status 'not_ready' without a scheduler, got '%s'", output.Body.Status)
		}

		if output.Body.Components["scheduler"] != "not_configured" {
			t.Errorf("expected scheduler component to be 'not_configured', got '%s'", output.Body.Components["scheduler"])
		}

		if output.Body.Components["database"] != "disabled" {
			t.Errorf("expected database component to be 'disabled', got '%s'", output.Body.Components["database"])
		}
	})

	t.Run("returns ok with a running scheduler", func(t *testing.T) {
		sched := &fakeScheduler{status: scheduler.Status{Running: true, Workers: 2}}
		handler := NewHealthHandler("1.0.0").WithScheduler(sched)

		output, err := handler.GetReadyz(context.Background(), &ReadyzInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if output.Body.Status != "ok" {
			t.Errorf("expected status 'ok', got '%s'", output.Body.Status)
		}

		if output.Body.Components["scheduler"] != "ok" {
			t.Errorf("expected scheduler component to be 'ok', got '%s'", output.Body.Components["scheduler"])
		}
	})

	t.Run("returns not_ready when the scheduler is stopped", func(t *testing.T) {
		sched := &fakeScheduler{status: scheduler.Status{Running: false}}
		handler := NewHealthHandler("1.0.0").WithScheduler(sched)

		output, err := handler.GetReadyz(context.Background(), &ReadyzInput{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if output.Body.Status != "not_ready" {
			t.Errorf("expected status 'not_ready', got '%s'", output.Body.Status)
		}

		if output.Body.Components["scheduler"] != "stopped" {
			t.Errorf("expected scheduler component to be 'stopped', got '%s'", output.Body.Components["scheduler"])
		}
	})
}

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output == nil {
		t.Fatal("expected non-nil output")
	}

	if output.Body.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", output.Body.Status)
	}

	if output.Body.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", output.Body.Version)
	}

	if output.Body.Uptime == "" {
		t.Error("expected non-empty uptime")
	}

	if output.Body.CPU.Cores == 0 {
		t.Error("expected non-zero CPU cores")
	}

	if output.Body.Scheduler != nil {
		t.Error("expected no scheduler block on a bare handler")
	}
}

func TestHealthHandler_GetHealth_WithScheduler(t *testing.T) {
	sched := &fakeScheduler{status: scheduler.Status{
		Running:       true,
		Workers:       3,
		QueueDepth:    1,
		QueueCapacity: 100,
	}}
	handler := NewHealthHandler("1.0.0").WithScheduler(sched)

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Scheduler == nil {
		t.Fatal("expected scheduler block")
	}

	if !output.Body.Scheduler.Running {
		t.Error("expected scheduler to report running")
	}

	if output.Body.Scheduler.Workers != 3 {
		t.Errorf("expected 3 workers, got %d", output.Body.Scheduler.Workers)
	}
}

func TestHealthHandler_GetHealth_WithMissingDecoder(t *testing.T) {
	detector := ffmpeg.NewBinaryDetector("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	handler := NewHealthHandler("1.0.0").WithDecoder(detector)

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if output.Body.Decoder == nil {
		t.Fatal("expected decoder block")
	}

	if output.Body.Decoder.Status != "unavailable" {
		t.Errorf("expected decoder status 'unavailable', got '%s'", output.Body.Decoder.Status)
	}
}
