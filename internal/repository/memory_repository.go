package repository

import (
	"context"
	"sync"

	"github.com/iconidentify/recipegrabba/internal/domain"
)

// MemoryImportRepository keeps the most recent imports in memory.
type MemoryImportRepository struct {
	mu      sync.RWMutex
	records []*domain.ImportRecord // oldest first
	max     int
	stats   domain.ImportStats
}

// NewMemoryImportRepository creates a repository holding at most max
// records. max <= 0 keeps 500.
func NewMemoryImportRepository(max int) *MemoryImportRepository {
	if max <= 0 {
		max = 500
	}
	return &MemoryImportRepository{
		records: make([]*domain.ImportRecord, 0, min(max, 64)),
		max:     max,
	}
}

// Record appends a finished import, evicting the oldest past max. Stats
// keep counting evicted records.
func (r *MemoryImportRepository) Record(ctx context.Context, rec *domain.ImportRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *rec
	r.records = append(r.records, &cp)
	if len(r.records) > r.max {
		r.records = r.records[len(r.records)-r.max:]
	}

	r.stats.Total++
	switch rec.Status {
	case domain.ImportStatusOK:
		r.stats.OK++
		if rec.CreatedAt.After(r.stats.LastImport) {
			r.stats.LastImport = rec.CreatedAt
		}
	case domain.ImportStatusError:
		r.stats.Failed++
	case domain.ImportStatusDuplicate:
		r.stats.Duplicates++
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (r *MemoryImportRepository) Recent(ctx context.Context, limit int) ([]*domain.ImportRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := min(pageSize(limit), len(r.records))
	out := make([]*domain.ImportRecord, 0, n)
	for i := len(r.records) - 1; i >= 0 && len(out) < n; i-- {
		cp := *r.records[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Stats counts recorded imports.
func (r *MemoryImportRepository) Stats(ctx context.Context) (*domain.ImportStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := r.stats
	return &stats, nil
}

// Close is a no-op.
func (r *MemoryImportRepository) Close() error { return nil }
