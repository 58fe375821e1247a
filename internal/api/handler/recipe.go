package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/pkg/mealie"
)

// RecipeStore looks up recipes already in Mealie.
type RecipeStore interface {
	FindExisting(ctx context.Context, sourceURL string) (*domain.RecipeSummary, error)
	RecipeImage(ctx context.Context, id string) (*mealie.Image, error)
}

// RecipeHandler handles recipe lookups.
type RecipeHandler struct {
	store  RecipeStore
	logger *slog.Logger
}

// NewRecipeHandler creates a new recipe handler.
func NewRecipeHandler(store RecipeStore, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{
		store:  store,
		logger: logger,
	}
}

// ExistsRequest is the JSON body of POST /api/v1/recipes/exists.
type ExistsRequest struct {
	URL string `json:"url"`
}

// ExistsResponse reports whether a source URL was already imported.
type ExistsResponse struct {
	Exists bool                  `json:"exists"`
	Recipe *domain.RecipeSummary `json:"recipe,omitempty"`
}

// Exists handles POST /api/v1/recipes/exists.
func (h *RecipeHandler) Exists(w http.ResponseWriter, r *http.Request) {
	var req ExistsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	existing, err := h.store.FindExisting(r.Context(), req.URL)
	if err != nil {
		h.logger.Warn("recipe lookup failed", "url", req.URL, "error", err)
		writeError(w, http.StatusBadGateway, "recipe lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, ExistsResponse{Exists: existing != nil, Recipe: existing})
}

// Image handles GET /api/v1/recipes/{id}/image by proxying the stored
// original image.
func (h *RecipeHandler) Image(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "recipe id is required")
		return
	}

	img, err := h.store.RecipeImage(r.Context(), id)
	if err != nil {
		var apiErr *mealie.APIError
		if errors.As(err, &apiErr) {
			w.WriteHeader(apiErr.StatusCode)
			return
		}
		h.logger.Warn("recipe image proxy failed", "id", id, "error", err)
		writeError(w, http.StatusBadGateway, "image unavailable")
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
