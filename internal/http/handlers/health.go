// Package handlers provides HTTP API handlers for the transcription
// service.
package handlers

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/juniormartinxo/transcription/internal/database"
	"github.com/juniormartinxo/transcription/internal/ffmpeg"
	"github.com/juniormartinxo/transcription/internal/scheduler"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// HealthHandler handles the health check endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
	scheduler TaskScheduler
	db        *database.DB
	decoder   *ffmpeg.BinaryDetector
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithScheduler includes scheduler state in health responses.
func (h *HealthHandler) WithScheduler(sched TaskScheduler) *HealthHandler {
	h.scheduler = sched
	return h
}

// WithDB includes history database health in health responses.
func (h *HealthHandler) WithDB(db *database.DB) *HealthHandler {
	h.db = db
	return h
}

// WithDecoder includes FFmpeg availability in health responses.
func (h *HealthHandler) WithDecoder(detector *ffmpeg.BinaryDetector) *HealthHandler {
	h.decoder = detector
	return h
}

// CPUInfo reports core count and load averages.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// MemoryInfo reports system and process-tree memory usage in MB. The
// child processes are the decoder and transcriber subprocesses.
type MemoryInfo struct {
	TotalMemoryMB     float64 `json:"total_memory_mb"`
	UsedMemoryMB      float64 `json:"used_memory_mb"`
	AvailableMemoryMB float64 `json:"available_memory_mb"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`
	ChildProcessCount int     `json:"child_process_count"`
	ChildProcessesMB  float64 `json:"child_processes_mb"`
}

// DatabaseHealth reports history database connectivity and pool usage.
type DatabaseHealth struct {
	Status          string  `json:"status"`
	Driver          string  `json:"driver"`
	OpenConnections int     `json:"open_connections"`
	InUse           int     `json:"in_use"`
	Idle            int     `json:"idle"`
	ResponseTimeMS  float64 `json:"response_time_ms"`
}

// DecoderHealth reports FFmpeg availability. Audio uploads work without
// a decoder; video ingestion does not.
type DecoderHealth struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	FFmpegPath  string `json:"ffmpeg_path,omitempty"`
	FFprobePath string `json:"ffprobe_path,omitempty"`
}

// HealthResponse is the health check response body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	SystemLoad    float64           `json:"system_load"`
	CPU           CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Scheduler     *scheduler.Status `json:"scheduler,omitempty"`
	Database      *DatabaseHealth   `json:"database,omitempty"`
	Decoder       *DecoderHealth    `json:"decoder,omitempty"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// LivezInput is the input for the liveness probe.
type LivezInput struct{}

// LivezOutput is the output for the liveness probe.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// ReadyzInput is the input for the readiness probe.
type ReadyzInput struct{}

// ReadyzOutput is the output for the readiness probe.
type ReadyzOutput struct {
	Body struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getLivez",
		Method:      "GET",
		Path:        "/livez",
		Summary:     "Liveness probe",
		Description: "Returns ok while the process is able to serve requests",
		Tags:        []string{"System"},
	}, h.GetLivez)

	huma.Register(api, huma.Operation{
		OperationID: "getReadyz",
		Method:      "GET",
		Path:        "/readyz",
		Summary:     "Readiness probe",
		Description: "Returns ok once the scheduler is running and the history database (when configured) is reachable",
		Tags:        []string{"System"},
	}, h.GetReadyz)
}

// GetLivez answers the liveness probe.
func (h *HealthHandler) GetLivez(ctx context.Context, input *LivezInput) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// GetReadyz answers the readiness probe. The scheduler must be wired and
// running; the history database only gates readiness when configured.
func (h *HealthHandler) GetReadyz(ctx context.Context, input *ReadyzInput) (*ReadyzOutput, error) {
	out := &ReadyzOutput{}
	out.Body.Status = "ok"
	out.Body.Components = map[string]string{}

	switch {
	case h.scheduler == nil:
		out.Body.Components["scheduler"] = "not_configured"
		out.Body.Status = "not_ready"
	case !h.scheduler.Status().Running:
		out.Body.Components["scheduler"] = "stopped"
		out.Body.Status = "not_ready"
	default:
		out.Body.Components["scheduler"] = "ok"
	}

	if h.db == nil {
		out.Body.Components["database"] = "disabled"
	} else if err := h.pingDatabase(ctx); err != nil {
		out.Body.Components["database"] = "error"
		out.Body.Status = "not_ready"
	} else {
		out.Body.Components["database"] = "ok"
	}

	return out, nil
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, input *HealthInput) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	cpuInfo := h.getCPUInfo()
	memInfo := h.getMemoryInfo()

	resp := &HealthOutput{
		Body: HealthResponse{
			Status:        "ok",
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			SystemLoad:    cpuInfo.LoadPercentage1Min / 100,
			CPU:           cpuInfo,
			Memory:        memInfo,
		},
	}

	if h.scheduler != nil {
		status := h.scheduler.Status()
		resp.Body.Scheduler = &status
	}
	if h.db != nil {
		dbHealth := h.getDatabaseHealth(ctx)
		resp.Body.Database = &dbHealth
	}
	if h.decoder != nil {
		decoder := h.getDecoderHealth(ctx)
		resp.Body.Decoder = &decoder
	}
	return resp, nil
}

// getDecoderHealth resolves the FFmpeg binaries, reusing the detector's
// cached result between polls.
func (h *HealthHandler) getDecoderHealth(ctx context.Context) DecoderHealth {
	info, err := h.decoder.Detect(ctx)
	if err != nil {
		return DecoderHealth{Status: "unavailable"}
	}
	return DecoderHealth{
		Status:      "ok",
		Version:     info.Version,
		FFmpegPath:  info.FFmpegPath,
		FFprobePath: info.FFprobePath,
	}
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()

	info := CPUInfo{
		Cores: cores,
	}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15

		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}

	return info
}

// getMemoryInfo returns memory usage information.
func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	pid := int32(os.Getpid())
	proc, err := process.NewProcess(pid)
	if err != nil {
		return info
	}

	memStat, err := proc.MemoryInfo()
	if err == nil && memStat != nil {
		info.ProcessMemoryMB = float64(memStat.RSS) / 1024 / 1024
	}

	// The decoder and transcriber run as child processes; under load
	// their memory dwarfs the orchestrator's own.
	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfo()
			if err == nil && childMem != nil {
				info.ChildProcessesMB += float64(childMem.RSS) / 1024 / 1024
			}
		}
	}

	return info
}

// pingDatabase checks history database connectivity.
func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	return h.db.Ping(ctx)
}

// getDatabaseHealth returns history database health information.
func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	health := DatabaseHealth{
		Status: "ok",
		Driver: h.db.Driver(),
	}

	sqlDB, err := h.db.DB.DB()
	if err != nil {
		health.Status = "error"
		return health
	}

	stats := sqlDB.Stats()
	health.OpenConnections = stats.OpenConnections
	health.InUse = stats.InUse
	health.Idle = stats.Idle

	start := time.Now()
	err = sqlDB.PingContext(ctx)
	health.ResponseTimeMS = float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		health.Status = "error"
	} else if health.ResponseTimeMS > 100 {
		health.Status = "slow"
	}

	return health
}
