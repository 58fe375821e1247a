package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iconidentify/recipegrabba/internal/domain"
)

const maxHistoryLimit = 200

// HistoryStore reads the import history.
type HistoryStore interface {
	Recent(ctx context.Context, limit int) ([]*domain.ImportRecord, error)
	HistoryStats(ctx context.Context) (*domain.ImportStats, error)
}

// HistoryHandler serves the import history.
type HistoryHandler struct {
	store  HistoryStore
	logger *slog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(store HistoryStore, logger *slog.Logger) *HistoryHandler {
	return &HistoryHandler{store: store, logger: logger}
}

// HistoryResponse lists recent imports.
type HistoryResponse struct {
	Imports []*domain.ImportRecord `json:"imports"`
	Stats   *domain.ImportStats    `json:"stats"`
}

// List handles GET /api/v1/imports?limit=N.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := h.store.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read import history", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	stats, err := h.store.HistoryStats(r.Context())
	if err != nil {
		h.logger.Error("failed to read import stats", "error", err)
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	if records == nil {
		records = []*domain.ImportRecord{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Imports: records, Stats: stats})
}
