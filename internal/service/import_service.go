package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/internal/metrics"
	"github.com/iconidentify/recipegrabba/internal/progress"
	"github.com/iconidentify/recipegrabba/internal/repository"
	"github.com/iconidentify/recipegrabba/pkg/llm"
	"github.com/iconidentify/recipegrabba/pkg/mealie"
)

// Acquirer resolves a post URL into media.
type Acquirer interface {
	Acquire(ctx context.Context, url string) (*domain.AcquisitionResult, error)
}

// ImageFetcher downloads a standalone image URL.
type ImageFetcher interface {
	FetchImage(ctx context.Context, url string) (*domain.MediaPayload, error)
}

// Transcriber turns normalized WAV into text.
type Transcriber interface {
	TranscribeWAV(ctx context.Context, wav []byte) (string, error)
}

// ErrEmptyImage is returned for an image upload without data.
var ErrEmptyImage = errors.New("empty image upload")

// ImportURLRequest imports the post behind URL.
type ImportURLRequest struct {
	URL   string
	Tags  []string
	Force bool
}

// ImportImageRequest imports an uploaded image.
type ImportImageRequest struct {
	Data     []byte
	Filename string
	Tags     []string
}

// ImportImageURLRequest imports an image referenced by URL.
type ImportImageURLRequest struct {
	ImageURL string
	Tags     []string
	Force    bool
}

// DuplicateError carries the already imported recipe. It matches
// domain.ErrDuplicateRecipe.
type DuplicateError struct {
	Existing *domain.RecipeSummary
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v: %s", domain.ErrDuplicateRecipe, e.Existing.Name)
}

func (e *DuplicateError) Unwrap() error { return domain.ErrDuplicateRecipe }

// ImportService drives a post from URL to published Mealie recipe.
type ImportService struct {
	acquirer    Acquirer
	images      ImageFetcher
	transcriber Transcriber
	generator   llm.Client
	mealie      mealie.Client
	metrics     metrics.Metrics
	history     repository.ImportRepository
	logger      *slog.Logger

	// Semaphore to limit concurrent pipelines
	sem chan struct{}
}

// Deps groups the collaborators of ImportService.
type Deps struct {
	Acquirer    Acquirer
	Images      ImageFetcher
	Transcriber Transcriber
	Generator   llm.Client
	Mealie      mealie.Client
	Metrics     metrics.Metrics
	History     repository.ImportRepository // default: in-memory
}

// NewImportService creates a new import service running at most workers
// pipelines at a time.
func NewImportService(deps Deps, workers int, logger *slog.Logger) *ImportService {
	if workers < 1 {
		workers = 1
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop{}
	}
	if deps.History == nil {
		deps.History = repository.NewMemoryImportRepository(0)
	}
	return &ImportService{
		acquirer:    deps.Acquirer,
		images:      deps.Images,
		transcriber: deps.Transcriber,
		generator:   deps.Generator,
		mealie:      deps.Mealie,
		metrics:     deps.Metrics,
		history:     deps.History,
		logger:      logger.With("component", "import"),
		sem:         make(chan struct{}, workers),
	}
}

// FindExisting returns the recipe imported from sourceURL, or nil.
func (s *ImportService) FindExisting(ctx context.Context, sourceURL string) (*domain.RecipeSummary, error) {
	return s.mealie.FindBySourceURL(ctx, sourceURL)
}

// RecipeImage proxies the stored image of a recipe.
func (s *ImportService) RecipeImage(ctx context.Context, id string) (*mealie.Image, error) {
	return s.mealie.RecipeImage(ctx, id)
}

// ImportURL imports a social post. Progress is published to sink; the last
// event is terminal. A known source URL fails with *DuplicateError unless
// req.Force is set.
func (s *ImportService) ImportURL(ctx context.Context, req ImportURLRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	if !isHTTPURL(req.URL) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidURL, req.URL)
	}
	r := s.newRun(domain.ImportSourceURL, req.URL, sink, s.logger.With("url", req.URL))

	if dup := s.checkDuplicate(ctx, r, req.Force); dup != nil {
		return dup.Existing, dup
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	r.rep.Start()
	tags := AddSourceTag(req.Tags, req.URL)

	r.rep.Info(domain.StepVideo, "Fetching media from post")
	result, err := s.acquirer.Acquire(ctx, req.URL)
	if err != nil {
		return nil, s.fail(ctx, r, err)
	}

	var slug string
	if result.MediaType == domain.MediaTypeImage && result.Image != nil {
		r.rep.Succeed(domain.StepVideo, "Image loaded")
		slug, err = s.publishImage(ctx, r.rep, result.Image.Data, filenameFromURL(result.ImageURL), tags)
	} else {
		r.rep.Succeed(domain.StepVideo, "Video downloaded")
		slug, err = s.publishVideo(ctx, r.rep, req.URL, result, tags)
	}
	if err != nil {
		return nil, s.fail(ctx, r, err)
	}

	return s.finish(ctx, r, slug), nil
}

// ImportImage imports an uploaded image through Mealie's image extraction.
func (s *ImportService) ImportImage(ctx context.Context, req ImportImageRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	if len(req.Data) == 0 {
		return nil, ErrEmptyImage
	}
	filename := req.Filename
	if filename == "" {
		filename = "upload.jpg"
	}
	r := s.newRun(domain.ImportSourceImage, filename, sink, s.logger.With("filename", filename))

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	r.rep.Start()
	r.rep.Succeed(domain.StepVideo, "Image loaded")

	slug, err := s.publishImage(ctx, r.rep, req.Data, filename, cleanTags(req.Tags))
	if err != nil {
		return nil, s.fail(ctx, r, err)
	}
	return s.finish(ctx, r, slug), nil
}

// ImportImageURL downloads an image and imports it like an upload.
func (s *ImportService) ImportImageURL(ctx context.Context, req ImportImageURLRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	if !isHTTPURL(req.ImageURL) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidURL, req.ImageURL)
	}
	r := s.newRun(domain.ImportSourceImageURL, req.ImageURL, sink, s.logger.With("image_url", req.ImageURL))

	if dup := s.checkDuplicate(ctx, r, req.Force); dup != nil {
		return dup.Existing, dup
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	r.rep.Start()
	r.rep.Info(domain.StepVideo, "Downloading image")
	payload, err := s.images.FetchImage(ctx, req.ImageURL)
	if err != nil {
		return nil, s.fail(ctx, r, fmt.Errorf("%w: %v", domain.ErrImageDownload, err))
	}
	r.rep.Succeed(domain.StepVideo, "Image loaded")

	slug, err := s.publishImage(ctx, r.rep, payload.Data, filenameFromURL(req.ImageURL), cleanTags(req.Tags))
	if err != nil {
		return nil, s.fail(ctx, r, err)
	}
	return s.finish(ctx, r, slug), nil
}

// Recent returns the latest import records, newest first.
func (s *ImportService) Recent(ctx context.Context, limit int) ([]*domain.ImportRecord, error) {
	return s.history.Recent(ctx, limit)
}

// HistoryStats summarizes recorded imports.
func (s *ImportService) HistoryStats(ctx context.Context) (*domain.ImportStats, error) {
	return s.history.Stats(ctx)
}

// publishVideo transcribes when audio is present and generates the recipe.
// Without audio it falls back to the description alone.
func (s *ImportService) publishVideo(ctx context.Context, rep *progress.Reporter, postURL string, result *domain.AcquisitionResult, tags []string) (string, error) {
	var transcript string
	if result.HasAudio() {
		rep.Info(domain.StepAudio, "Transcribing audio")
		text, err := s.transcriber.TranscribeWAV(ctx, result.Audio.Bytes())
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrTranscription, err)
		}
		transcript = strings.TrimSpace(text)
		rep.Succeed(domain.StepAudio, "Audio transcribed")
	} else {
		rep.Succeed(domain.StepAudio, "No audio stream found. Transcription skipped (description-only).")
	}

	if transcript == "" && !result.HasDescription() {
		return "", domain.ErrNoRecipeText
	}

	rep.Info(domain.StepRecipe, "Generating recipe")
	description := result.Description
	if !result.HasDescription() {
		description = ""
	}
	recipe, err := s.generator.GenerateRecipe(ctx, llm.RecipeRequest{
		Transcription: transcript,
		Description:   description,
		PostURL:       postURL,
		Thumbnail:     result.ThumbnailURL,
		Tags:          tags,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrGeneration, err)
	}
	recipe.Keywords = mergeKeywords(recipe.Keywords, tags)

	rep.Info(domain.StepRecipe, "Creating recipe in Mealie")
	slug, err := s.mealie.CreateFromJSON(ctx, recipe)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}
	return slug, nil
}

// publishImage hands the image to Mealie, which extracts the recipe text.
func (s *ImportService) publishImage(ctx context.Context, rep *progress.Reporter, image []byte, filename string, tags []string) (string, error) {
	rep.Info(domain.StepAudio, "Extracting recipe text from image")
	rep.Info(domain.StepRecipe, "Creating recipe in Mealie")
	slug, err := s.mealie.CreateFromImage(ctx, image, filename, tags)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrPublish, err)
	}
	rep.Succeed(domain.StepAudio, "Text extracted from image")
	return slug, nil
}

// run tracks one import for logging, metrics and history.
type run struct {
	source  domain.ImportSource
	target  string
	started time.Time
	rep     *progress.Reporter
	log     *slog.Logger
}

func (s *ImportService) newRun(source domain.ImportSource, target string, sink progress.Sink, log *slog.Logger) *run {
	return &run{
		source:  source,
		target:  target,
		started: time.Now(),
		rep:     progress.NewReporter(sink),
		log:     log,
	}
}

// finish loads the created recipe and publishes the terminal event. A
// failed lookup still reports success with what is known.
func (s *ImportService) finish(ctx context.Context, r *run, slug string) *domain.RecipeSummary {
	summary, err := s.mealie.GetRecipe(ctx, slug)
	if err != nil {
		r.log.Warn("failed to load created recipe", "slug", slug, "error", err)
		summary = &domain.RecipeSummary{Slug: slug, Name: slug}
	}

	r.rep.Succeed(domain.StepRecipe, "Recipe created")
	r.rep.Done(summary)
	s.record(ctx, r, domain.ImportStatusOK, summary, nil)
	r.log.Info("recipe imported", "slug", slug)
	return summary
}

func (s *ImportService) fail(ctx context.Context, r *run, err error) error {
	step := r.rep.Fail(err.Error())
	s.record(ctx, r, domain.ImportStatusError, nil, err)
	r.log.Error("import failed", "step", step, "error", err)
	return err
}

// checkDuplicate publishes the duplicate event when the run target is
// already imported. Lookup failures are logged and the import proceeds.
func (s *ImportService) checkDuplicate(ctx context.Context, r *run, force bool) *DuplicateError {
	if force {
		return nil
	}
	existing, err := s.mealie.FindBySourceURL(ctx, r.target)
	if err != nil {
		r.log.Warn("duplicate check failed", "error", err)
		return nil
	}
	if existing == nil {
		return nil
	}
	r.rep.Duplicate(existing)
	s.record(ctx, r, domain.ImportStatusDuplicate, existing, nil)
	r.log.Info("recipe already imported", "slug", existing.Slug)
	return &DuplicateError{Existing: existing}
}

// record counts the outcome and appends it to the history. History write
// failures never fail the import.
func (s *ImportService) record(ctx context.Context, r *run, status domain.ImportStatus, recipe *domain.RecipeSummary, err error) {
	s.metrics.IncImport(string(r.source), string(status))

	rec := &domain.ImportRecord{
		ID:         uuid.NewString(),
		Source:     r.source,
		Target:     r.target,
		Status:     status,
		DurationMS: time.Since(r.started).Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if recipe != nil {
		rec.Slug = recipe.Slug
		rec.RecipeName = recipe.Name
	}
	if err != nil {
		rec.Error = domain.Truncate(err.Error(), 500)
	}

	// The request context may already be canceled on failure.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if werr := s.history.Record(wctx, rec); werr != nil {
		r.log.Warn("failed to record import", "error", werr)
	}
}

func (s *ImportService) acquire(ctx context.Context) (func(), error) {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsClientError reports whether err is caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidURL) || errors.Is(err, ErrEmptyImage)
}
