// Package worker runs background housekeeping for the import pipeline.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrShutdownTimeout is returned when the sweeper doesn't stop within timeout.
var ErrShutdownTimeout = errors.New("sweeper shutdown timed out")

// scratchPrefixes name the entries the pipeline creates in the temp dir.
var scratchPrefixes = []string{"input-", "output-", "ytdlp-"}

// Sweeper periodically removes stale scratch files left behind by
// interrupted acquisitions.
type Sweeper struct {
	dir      string
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	logger   *slog.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds sweeper configuration.
type Config struct {
	Dir      string
	Interval time.Duration
	MaxAge   time.Duration
}

// NewSweeper creates a new sweeper for cfg.Dir.
func NewSweeper(cfg Config, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Sweeper{
		dir:      cfg.Dir,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		now:      time.Now,
		logger:   logger.With("component", "sweeper"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the sweep loop. The first sweep runs immediately.
func (s *Sweeper) Start() {
	s.logger.Info("starting scratch sweeper", "dir", s.dir, "interval", s.interval, "max_age", s.maxAge)

	s.wg.Add(1)
	go s.loop()
}

// Stop stops the loop and waits for an in-flight sweep.
func (s *Sweeper) Stop(timeout time.Duration) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scratch sweeper stopped")
		return nil
	case <-time.After(timeout):
		return ErrShutdownTimeout
	}
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Sweep()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes scratch entries older than the max age and returns how
// many were removed. A missing dir is not an error.
func (s *Sweeper) Sweep() int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to read temp dir", "error", err)
		}
		return 0
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	var freed uint64
	for _, e := range entries {
		if !isScratch(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		size := entrySize(path, info)
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("failed to remove stale scratch entry", "path", path, "error", err)
			continue
		}
		removed++
		freed += size
	}

	if removed > 0 {
		s.logger.Info("removed stale scratch entries", "count", removed, "freed", humanize.Bytes(freed))
	}
	return removed
}

func isScratch(name string) bool {
	for _, p := range scratchPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func entrySize(path string, info os.FileInfo) uint64 {
	if !info.IsDir() {
		return uint64(info.Size())
	}
	var total uint64
	filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if fi, err := d.Info(); err == nil {
			total += uint64(fi.Size())
		}
		return nil
	})
	return total
}
