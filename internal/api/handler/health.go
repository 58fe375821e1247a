package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

var startTime = time.Now()

// Checker reports whether an external tool can be used.
type Checker interface {
	Available() bool
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	ytdlp     Checker
	ffmpeg    Checker
	tempDir   string
	minFree   int64
	freeSpace func(path string) int64
}

// NewHealthHandler creates a new health handler. freeSpace reports the
// bytes available under a path.
func NewHealthHandler(ytdlp, ffmpeg Checker, tempDir string, minFree int64, freeSpace func(string) int64) *HealthHandler {
	return &HealthHandler{
		ytdlp:     ytdlp,
		ffmpeg:    ffmpeg,
		tempDir:   tempDir,
		minFree:   minFree,
		freeSpace: freeSpace,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Uptime    string       `json:"uptime,omitempty"`
	Checks    *ReadyChecks `json:"checks,omitempty"`
}

// ReadyChecks lists the individual readiness checks.
type ReadyChecks struct {
	YTDLP      bool   `json:"ytdlp"`
	FFmpeg     bool   `json:"ffmpeg"`
	TempDir    string `json:"temp_dir"`
	FreeBytes  int64  `json:"free_bytes"`
	FreeHuman  string `json:"free_human"`
	EnoughDisk bool   `json:"enough_disk"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    formatUptime(time.Since(startTime)),
	})
}

// Ready handles GET /ready - readiness probe. It fails when yt-dlp or
// ffmpeg cannot be resolved or the temp dir is short on space.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	free := h.freeSpace(h.tempDir)
	checks := &ReadyChecks{
		YTDLP:      h.ytdlp.Available(),
		FFmpeg:     h.ffmpeg.Available(),
		TempDir:    h.tempDir,
		FreeBytes:  free,
		FreeHuman:  humanize.Bytes(uint64(max(free, 0))),
		EnoughDisk: free >= h.minFree,
	}

	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	status := http.StatusOK
	if !checks.YTDLP || !checks.FFmpeg || !checks.EnoughDisk {
		resp.Status = "error"
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
