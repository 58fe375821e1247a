// Package repository stores the import history.
package repository

import (
	"context"

	"github.com/iconidentify/recipegrabba/internal/domain"
)

// ImportRepository persists finished imports.
type ImportRepository interface {
	// Record appends a finished import.
	Record(ctx context.Context, rec *domain.ImportRecord) error

	// Recent returns up to limit records, newest first. limit <= 0 means
	// the default page size.
	Recent(ctx context.Context, limit int) ([]*domain.ImportRecord, error)

	// Stats counts records by status.
	Stats(ctx context.Context) (*domain.ImportStats, error)

	// Close releases the underlying storage.
	Close() error
}

const defaultPageSize = 50

func pageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}
