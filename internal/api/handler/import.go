package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/internal/progress"
	"github.com/iconidentify/recipegrabba/internal/service"
)

// maxUploadSize caps multipart image uploads.
const maxUploadSize = 32 << 20 // 32MB

// Importer runs imports and publishes their progress.
type Importer interface {
	ImportURL(ctx context.Context, req service.ImportURLRequest, sink progress.Sink) (*domain.RecipeSummary, error)
	ImportImage(ctx context.Context, req service.ImportImageRequest, sink progress.Sink) (*domain.RecipeSummary, error)
	ImportImageURL(ctx context.Context, req service.ImportImageURLRequest, sink progress.Sink) (*domain.RecipeSummary, error)
}

// ImportHandler handles import requests.
type ImportHandler struct {
	svc      Importer
	validate *validator.Validate
	logger   *slog.Logger
}

// NewImportHandler creates a new import handler.
func NewImportHandler(svc Importer, validate *validator.Validate, logger *slog.Logger) *ImportHandler {
	if validate == nil {
		validate = NewValidator()
	}
	return &ImportHandler{
		svc:      svc,
		validate: validate,
		logger:   logger,
	}
}

// ImportURLRequest is the JSON body of POST /api/v1/imports/url.
type ImportURLRequest struct {
	URL   string   `json:"url" validate:"required,url"`
	Tags  []string `json:"tags" validate:"max=32,dive,max=64"`
	Force bool     `json:"force"`
}

// ImportImageURLRequest is the JSON body of POST /api/v1/imports/image.
type ImportImageURLRequest struct {
	ImageURL string   `json:"imageUrl" validate:"required,url"`
	Tags     []string `json:"tags" validate:"max=32,dive,max=64"`
	Force    bool     `json:"force"`
}

// ImportResponse is the non-streaming answer of an import.
type ImportResponse struct {
	CreatedRecipe *domain.RecipeSummary `json:"createdRecipe,omitempty"`
	Error         string                `json:"error,omitempty"`
	Duplicate     bool                  `json:"duplicate,omitempty"`
	Recipe        *domain.RecipeSummary `json:"recipe,omitempty"`
	Progress      *domain.ProgressState `json:"progress,omitempty"`
	Logs          []domain.LogEntry     `json:"logs,omitempty"`
}

// ImportURL handles POST /api/v1/imports/url.
func (h *ImportHandler) ImportURL(w http.ResponseWriter, r *http.Request) {
	var req ImportURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	h.run(w, r, func(ctx context.Context, sink progress.Sink) (*domain.RecipeSummary, error) {
		return h.svc.ImportURL(ctx, service.ImportURLRequest{URL: req.URL, Tags: req.Tags, Force: req.Force}, sink)
	})
}

// ImportImage handles POST /api/v1/imports/image. It accepts a multipart
// upload in the "image" field or a JSON body naming an image URL.
func (h *ImportHandler) ImportImage(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.importUpload(w, r)
		return
	}

	var req ImportImageURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	h.run(w, r, func(ctx context.Context, sink progress.Sink) (*domain.RecipeSummary, error) {
		return h.svc.ImportImageURL(ctx, service.ImportImageURLRequest{ImageURL: req.ImageURL, Tags: req.Tags, Force: req.Force}, sink)
	})
}

func (h *ImportHandler) importUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &tags); err != nil {
			writeError(w, http.StatusBadRequest, "tags must be a JSON array of strings")
			return
		}
	}
	if err := h.validate.Var(tags, "max=32,dive,max=64"); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	h.run(w, r, func(ctx context.Context, sink progress.Sink) (*domain.RecipeSummary, error) {
		return h.svc.ImportImage(ctx, service.ImportImageRequest{Data: data, Filename: header.Filename, Tags: tags}, sink)
	})
}

type importFunc func(ctx context.Context, sink progress.Sink) (*domain.RecipeSummary, error)

// run executes an import either as an event stream or as a single JSON
// answer, depending on what the client asked for.
func (h *ImportHandler) run(w http.ResponseWriter, r *http.Request, fn importFunc) {
	if wantsEventStream(r) {
		h.stream(w, r, fn)
		return
	}

	var col collector
	created, err := fn(r.Context(), col.sink)
	progressState, logs := col.last()

	var dup *service.DuplicateError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, ImportResponse{CreatedRecipe: created, Progress: progressState, Logs: logs})
	case errors.As(err, &dup):
		writeJSON(w, http.StatusConflict, ImportResponse{Duplicate: true, Recipe: dup.Existing})
	case service.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Warn("import failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ImportResponse{Error: err.Error(), Progress: progressState, Logs: logs})
	}
}

func (h *ImportHandler) stream(w http.ResponseWriter, r *http.Request, fn importFunc) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emitted := 0
	send := func(ev domain.ProgressEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Error("failed to encode progress event", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		emitted++
	}

	_, err := fn(r.Context(), send)
	if err != nil && emitted == 0 {
		// Failed before the pipeline started; the client still needs a
		// terminal frame.
		send(domain.ProgressEvent{Error: err.Error()})
	}
	if err != nil {
		h.logger.Info("streamed import ended with error", "error", err)
	}
}

// wantsEventStream reports whether the client asked for server-sent events.
func wantsEventStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
		strings.HasPrefix(r.Header.Get("Content-Type"), "text/event-stream")
}

// collector keeps the last progress and logs seen on the event stream.
type collector struct {
	mu       sync.Mutex
	progress *domain.ProgressState
	logs     []domain.LogEntry
}

func (c *collector) sink(ev domain.ProgressEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.Progress != nil {
		c.progress = ev.Progress
	}
	if ev.Logs != nil {
		c.logs = ev.Logs
	}
}

func (c *collector) last() (*domain.ProgressState, []domain.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress, c.logs
}

// NewValidator returns a validator reporting fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := fe.Field()
	if field == "" {
		field = "value"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "url":
		return field + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
