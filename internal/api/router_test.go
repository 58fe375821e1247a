package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iconidentify/recipegrabba/internal/api/handler"
	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/internal/metrics"
	"github.com/iconidentify/recipegrabba/internal/progress"
	"github.com/iconidentify/recipegrabba/internal/service"
	"github.com/iconidentify/recipegrabba/pkg/mealie"
)

type stubImporter struct{}

func (stubImporter) ImportURL(ctx context.Context, req service.ImportURLRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	return &domain.RecipeSummary{Slug: "soup", Name: "Soup"}, nil
}

func (stubImporter) ImportImage(ctx context.Context, req service.ImportImageRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	return &domain.RecipeSummary{Slug: "soup", Name: "Soup"}, nil
}

func (stubImporter) ImportImageURL(ctx context.Context, req service.ImportImageURLRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	return &domain.RecipeSummary{Slug: "soup", Name: "Soup"}, nil
}

type stubStore struct{}

func (stubStore) FindExisting(ctx context.Context, sourceURL string) (*domain.RecipeSummary, error) {
	return nil, nil
}

func (stubStore) RecipeImage(ctx context.Context, id string) (*mealie.Image, error) {
	return &mealie.Image{Data: []byte("img"), ContentType: "image/webp"}, nil
}

func (stubStore) Recent(ctx context.Context, limit int) ([]*domain.ImportRecord, error) {
	return nil, nil
}

func (stubStore) HistoryStats(ctx context.Context) (*domain.ImportStats, error) {
	return &domain.ImportStats{}, nil
}

type up struct{}

func (up) Available() bool { return true }

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prom := metrics.NewProm("recipegrabba", prometheus.NewRegistry())

	h := Handlers{
		Import:  handler.NewImportHandler(stubImporter{}, nil, logger),
		Recipe:  handler.NewRecipeHandler(stubStore{}, logger),
		History: handler.NewHistoryHandler(stubStore{}, logger),
		Share:   handler.NewShareHandler(),
		Health:  handler.NewHealthHandler(up{}, up{}, t.TempDir(), 0, func(string) int64 { return 1 << 30 }),
		UI:      handler.NewUIHandler(),
		Metrics: prom.Handler(),
	}
	return NewRouter(h, opts, prom, logger)
}

func TestRouter_AuthOnlyOnAPI(t *testing.T) {
	router := newTestRouter(t, Options{APIKey: "secret"})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		key        string
		wantStatus int
	}{
		{"health is public", http.MethodGet, "/health", "", "", http.StatusOK},
		{"ready is public", http.MethodGet, "/ready", "", "", http.StatusOK},
		{"ui is public", http.MethodGet, "/", "", "", http.StatusOK},
		{"manifest is public", http.MethodGet, "/manifest.json", "", "", http.StatusOK},
		{"share is public", http.MethodGet, "/share", "", "", http.StatusSeeOther},
		{"import without key", http.MethodPost, "/api/v1/imports/url", `{"url":"https://youtu.be/x"}`, "", http.StatusUnauthorized},
		{"import with wrong key", http.MethodPost, "/api/v1/imports/url", `{"url":"https://youtu.be/x"}`, "nope", http.StatusUnauthorized},
		{"import with key", http.MethodPost, "/api/v1/imports/url", `{"url":"https://youtu.be/x"}`, "secret", http.StatusOK},
		{"exists with key", http.MethodPost, "/api/v1/recipes/exists", `{"url":"https://youtu.be/x"}`, "secret", http.StatusOK},
		{"history without key", http.MethodGet, "/api/v1/imports", "", "", http.StatusUnauthorized},
		{"history with key", http.MethodGet, "/api/v1/imports", "", "secret", http.StatusOK},
		{"image with key", http.MethodGet, "/api/v1/recipes/abc/image", "", "secret", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/nothing", "", "secret", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.body != "" {
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("%s %s = %d, want %d (%s)", tt.method, tt.path, w.Code, tt.wantStatus, w.Body)
			}
		})
	}
}

func TestRouter_ImportRateLimit(t *testing.T) {
	router := newTestRouter(t, Options{ImportRatePerMin: 1})

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/url", strings.NewReader(`{"url":"https://youtu.be/x"}`))
		req.RemoteAddr = "10.0.0.7:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	if got := send(); got != http.StatusOK {
		t.Fatalf("first import = %d, want 200", got)
	}
	if got := send(); got != http.StatusTooManyRequests {
		t.Errorf("second import = %d, want 429", got)
	}

	// Lookups are not rate limited.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recipes/exists", strings.NewReader(`{"url":"https://youtu.be/x"}`))
	req.RemoteAddr = "10.0.0.7:5555"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("exists = %d, want 200", w.Code)
	}
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, Options{})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `route="/health"`) {
		t.Errorf("metrics missing /health request series:\n%s", w.Body)
	}
}
