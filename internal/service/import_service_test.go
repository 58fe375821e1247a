package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/pkg/llm"
	"github.com/iconidentify/recipegrabba/pkg/mealie"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAcquirer struct {
	result  *domain.AcquisitionResult
	err     error
	calls   int
	block   chan struct{}
	entered chan struct{}
}

func (f *fakeAcquirer) Acquire(ctx context.Context, url string) (*domain.AcquisitionResult, error) {
	f.calls++
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	return f.result, f.err
}

type fakeImages struct {
	payload *domain.MediaPayload
	err     error
}

func (f *fakeImages) FetchImage(ctx context.Context, url string) (*domain.MediaPayload, error) {
	return f.payload, f.err
}

type fakeTranscriber struct {
	text string
	err  error
	got  []byte
}

func (f *fakeTranscriber) TranscribeWAV(ctx context.Context, wav []byte) (string, error) {
	f.got = wav
	return f.text, f.err
}

type fakeGenerator struct {
	req   *llm.RecipeRequest
	err   error
	calls int
}

func (f *fakeGenerator) GenerateRecipe(ctx context.Context, req llm.RecipeRequest) (*domain.Recipe, error) {
	f.calls++
	f.req = &req
	if f.err != nil {
		return nil, f.err
	}
	r := &domain.Recipe{Name: "Lemon Pasta", Keywords: []string{"pasta"}}
	r.Normalize()
	return r, nil
}

type imageUpload struct {
	data     []byte
	filename string
	tags     []string
}

type fakeMealie struct {
	existing  *domain.RecipeSummary
	findErr   error
	createErr error
	getErr    error
	created   []*domain.Recipe
	uploads   []imageUpload
}

func (f *fakeMealie) CreateFromJSON(ctx context.Context, recipe *domain.Recipe) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, recipe)
	return "lemon-pasta", nil
}

func (f *fakeMealie) CreateFromImage(ctx context.Context, image []byte, filename string, tags []string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.uploads = append(f.uploads, imageUpload{data: image, filename: filename, tags: tags})
	return "image-recipe", nil
}

func (f *fakeMealie) GetRecipe(ctx context.Context, slug string) (*domain.RecipeSummary, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &domain.RecipeSummary{ID: "id-" + slug, Slug: slug, Name: "Recipe " + slug}, nil
}

func (f *fakeMealie) FindBySourceURL(ctx context.Context, sourceURL string) (*domain.RecipeSummary, error) {
	return f.existing, f.findErr
}

func (f *fakeMealie) RecipeImage(ctx context.Context, id string) (*mealie.Image, error) {
	return &mealie.Image{Data: []byte("webp"), ContentType: "image/webp"}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (r *recorder) sink(ev domain.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) last() domain.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type fixture struct {
	acquirer    *fakeAcquirer
	images      *fakeImages
	transcriber *fakeTranscriber
	generator   *fakeGenerator
	mealie      *fakeMealie
	svc         *ImportService
}

func newFixture(result *domain.AcquisitionResult) *fixture {
	f := &fixture{
		acquirer:    &fakeAcquirer{result: result},
		images:      &fakeImages{payload: &domain.MediaPayload{Data: []byte("jpeg"), Extension: "jpg"}},
		transcriber: &fakeTranscriber{text: "boil pasta, add lemon"},
		generator:   &fakeGenerator{},
		mealie:      &fakeMealie{},
	}
	f.svc = NewImportService(Deps{
		Acquirer:    f.acquirer,
		Images:      f.images,
		Transcriber: f.transcriber,
		Generator:   f.generator,
		Mealie:      f.mealie,
	}, 2, testLogger())
	return f
}

func videoWithAudio(t *testing.T) *domain.AcquisitionResult {
	t.Helper()
	audio, err := domain.NewNormalizedAudio(append([]byte("RIFF"), make([]byte, 40)...))
	if err != nil {
		t.Fatal(err)
	}
	return &domain.AcquisitionResult{
		Audio:        audio,
		Description:  "Lemon pasta in 10 minutes",
		ThumbnailURL: "https://cdn/t.jpg",
		MediaType:    domain.MediaTypeVideo,
	}
}

func assertProgress(t *testing.T, ev domain.ProgressEvent, video, audio, recipe *bool) {
	t.Helper()
	if ev.Progress == nil {
		t.Fatal("event has no progress")
	}
	check := func(name string, got, want *bool) {
		switch {
		case want == nil && got != nil:
			t.Errorf("%s = %v, want unstarted", name, *got)
		case want != nil && (got == nil || *got != *want):
			t.Errorf("%s = %v, want %v", name, got, *want)
		}
	}
	check("videoDownloaded", ev.Progress.VideoDownloaded, video)
	check("audioTranscribed", ev.Progress.AudioTranscribed, audio)
	check("recipeCreated", ev.Progress.RecipeCreated, recipe)
}

func yes() *bool { v := true; return &v }
func no() *bool { v := false; return &v }

const reelURL = "https://www.instagram.com/reel/abc/"

func TestImportURL_VideoWithAudio(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	rec := &recorder{}

	summary, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL, Tags: []string{"dinner"}}, rec.sink)
	if err != nil {
		t.Fatalf("ImportURL: %v", err)
	}
	if summary.Slug != "lemon-pasta" {
		t.Errorf("summary = %+v", summary)
	}

	if f.transcriber.got == nil {
		t.Error("audio was not transcribed")
	}
	req := f.generator.req
	if req.Transcription != "boil pasta, add lemon" || req.Description != "Lemon pasta in 10 minutes" || req.PostURL != reelURL {
		t.Errorf("generation request = %+v", req)
	}

	keywords := f.mealie.created[0].Keywords
	want := []string{"pasta", "dinner", "#Instagram"}
	if strings.Join(keywords, ",") != strings.Join(want, ",") {
		t.Errorf("keywords = %v, want %v", keywords, want)
	}

	first := rec.events[0]
	assertProgress(t, first, nil, nil, nil)

	last := rec.last()
	if last.Recipe == nil || last.Recipe.Slug != "lemon-pasta" {
		t.Errorf("terminal event = %+v", last)
	}
	assertProgress(t, last, yes(), yes(), yes())
}

func TestImportURL_SilentVideoUsesDescription(t *testing.T) {
	f := newFixture(&domain.AcquisitionResult{Description: "3 eggs, 200g flour", MediaType: domain.MediaTypeVideo})
	rec := &recorder{}

	if _, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, rec.sink); err != nil {
		t.Fatalf("ImportURL: %v", err)
	}
	if f.transcriber.got != nil {
		t.Error("transcriber called without audio")
	}
	if f.generator.req.Transcription != "" || f.generator.req.Description != "3 eggs, 200g flour" {
		t.Errorf("generation request = %+v", f.generator.req)
	}

	found := false
	for _, e := range rec.last().Logs {
		if e.Step == domain.StepAudio && e.OK != nil && *e.OK && strings.Contains(e.Message, "description-only") {
			found = true
		}
	}
	if !found {
		t.Error("missing description-only log line")
	}
}

func TestImportURL_NoRecipeText(t *testing.T) {
	f := newFixture(&domain.AcquisitionResult{Description: domain.DefaultDescription, MediaType: domain.MediaTypeVideo})
	rec := &recorder{}

	_, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, rec.sink)
	if !errors.Is(err, domain.ErrNoRecipeText) {
		t.Fatalf("error = %v, want ErrNoRecipeText", err)
	}
	if f.generator.calls != 0 {
		t.Error("generator called without any text")
	}

	last := rec.last()
	if last.Error == "" {
		t.Error("terminal event has no error")
	}
	assertProgress(t, last, yes(), yes(), no())
}

func TestImportURL_AcquisitionFailureMarksVideo(t *testing.T) {
	f := newFixture(nil)
	f.acquirer.err = domain.NewAcquisitionError(domain.ErrDownload, "fetch", "all strategies failed", nil)
	rec := &recorder{}

	_, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, rec.sink)
	if !errors.Is(err, domain.ErrDownload) {
		t.Fatalf("error = %v, want ErrDownload", err)
	}

	last := rec.last()
	assertProgress(t, last, no(), nil, nil)
	if !strings.Contains(last.Error, "failed to download media") {
		t.Errorf("error message = %q", last.Error)
	}
	entry := last.Logs[len(last.Logs)-1]
	if entry.Step != domain.StepVideo || entry.OK == nil || *entry.OK {
		t.Errorf("last log = %+v, want failed video step", entry)
	}
}

func TestImportURL_TranscriptionFailure(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	f.transcriber.err = errors.New("503 from upstream")
	rec := &recorder{}

	_, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, rec.sink)
	if !errors.Is(err, domain.ErrTranscription) {
		t.Fatalf("error = %v, want ErrTranscription", err)
	}
	assertProgress(t, rec.last(), yes(), no(), nil)
}

func TestImportURL_PublishFailure(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	f.mealie.createErr = &mealie.APIError{StatusCode: 500, Body: "boom"}
	rec := &recorder{}

	_, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, rec.sink)
	if !errors.Is(err, domain.ErrPublish) {
		t.Fatalf("error = %v, want ErrPublish", err)
	}
	assertProgress(t, rec.last(), yes(), yes(), no())
}

func TestImportURL_Duplicate(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	f.mealie.existing = &domain.RecipeSummary{Slug: "old", Name: "Old"}
	rec := &recorder{}

	existing, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, rec.sink)
	if !errors.Is(err, domain.ErrDuplicateRecipe) {
		t.Fatalf("error = %v, want ErrDuplicateRecipe", err)
	}
	var dup *DuplicateError
	if !errors.As(err, &dup) || dup.Existing.Slug != "old" || existing.Slug != "old" {
		t.Errorf("duplicate = %+v", dup)
	}
	if f.acquirer.calls != 0 {
		t.Error("duplicate import should not acquire")
	}
	if len(rec.events) != 1 || !rec.events[0].Duplicate {
		t.Errorf("events = %+v, want one duplicate event", rec.events)
	}
}

func TestImportURL_ForceSkipsDuplicateCheck(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	f.mealie.existing = &domain.RecipeSummary{Slug: "old"}

	if _, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL, Force: true}, nil); err != nil {
		t.Fatalf("ImportURL: %v", err)
	}
	if f.acquirer.calls != 1 {
		t.Error("forced import should acquire")
	}
}

func TestImportURL_DuplicateLookupFailureProceeds(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	f.mealie.findErr = errors.New("mealie down")

	if _, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, nil); err != nil {
		t.Fatalf("ImportURL: %v", err)
	}
}

func TestImportURL_ImagePost(t *testing.T) {
	f := newFixture(&domain.AcquisitionResult{
		MediaType: domain.MediaTypeImage,
		Image:     &domain.MediaPayload{Data: []byte("jpeg"), Extension: "jpg"},
		ImageURL:  "https://cdn/img/dish.jpg?sig=1",
	})
	rec := &recorder{}

	summary, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: "https://www.instagram.com/p/xyz/"}, rec.sink)
	if err != nil {
		t.Fatalf("ImportURL: %v", err)
	}
	if summary.Slug != "image-recipe" {
		t.Errorf("slug = %q", summary.Slug)
	}
	if f.generator.calls != 0 {
		t.Error("image posts go through Mealie image extraction")
	}
	up := f.mealie.uploads[0]
	if up.filename != "dish.jpg" || len(up.tags) != 1 || up.tags[0] != "#Instagram" {
		t.Errorf("upload = %+v", up)
	}
	assertProgress(t, rec.last(), yes(), yes(), yes())
}

func TestImportURL_InvalidURL(t *testing.T) {
	f := newFixture(nil)
	rec := &recorder{}

	_, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: "ftp://x"}, rec.sink)
	if !errors.Is(err, domain.ErrInvalidURL) || !IsClientError(err) {
		t.Errorf("error = %v, want ErrInvalidURL", err)
	}
	if len(rec.events) != 0 {
		t.Error("invalid URL should emit no events")
	}
}

func TestImportURL_SummaryLookupFailure(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	f.mealie.getErr = errors.New("not found")

	summary, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, nil)
	if err != nil {
		t.Fatalf("ImportURL: %v", err)
	}
	if summary.Slug != "lemon-pasta" {
		t.Errorf("summary = %+v", summary)
	}
}

func TestImportURL_LimitsConcurrency(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	f.svc = NewImportService(Deps{
		Acquirer:    f.acquirer,
		Transcriber: f.transcriber,
		Generator:   f.generator,
		Mealie:      f.mealie,
	}, 1, testLogger())
	f.acquirer.block = make(chan struct{})
	f.acquirer.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.ImportURL(context.Background(), ImportURLRequest{URL: reelURL}, nil)
		done <- err
	}()
	<-f.acquirer.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.svc.ImportURL(ctx, ImportURLRequest{URL: reelURL}, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("second import error = %v, want DeadlineExceeded", err)
	}

	close(f.acquirer.block)
	if err := <-done; err != nil {
		t.Errorf("first import: %v", err)
	}
}

func TestImportImage(t *testing.T) {
	f := newFixture(nil)
	rec := &recorder{}

	summary, err := f.svc.ImportImage(context.Background(), ImportImageRequest{Data: []byte("png"), Tags: []string{" cake ", ""}}, rec.sink)
	if err != nil {
		t.Fatalf("ImportImage: %v", err)
	}
	if summary.Slug != "image-recipe" {
		t.Errorf("summary = %+v", summary)
	}
	up := f.mealie.uploads[0]
	if up.filename != "upload.jpg" || len(up.tags) != 1 || up.tags[0] != "cake" {
		t.Errorf("upload = %+v", up)
	}
	assertProgress(t, rec.last(), yes(), yes(), yes())

	if _, err := f.svc.ImportImage(context.Background(), ImportImageRequest{}, nil); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("empty upload error = %v", err)
	}
}

func TestImportImageURL(t *testing.T) {
	f := newFixture(nil)

	if _, err := f.svc.ImportImageURL(context.Background(), ImportImageURLRequest{ImageURL: "https://cdn/r/soup.png"}, nil); err != nil {
		t.Fatalf("ImportImageURL: %v", err)
	}
	if f.mealie.uploads[0].filename != "soup.png" {
		t.Errorf("filename = %q", f.mealie.uploads[0].filename)
	}
}

func TestImportImageURL_DownloadFailure(t *testing.T) {
	f := newFixture(nil)
	f.images.err = errors.New("status 404")
	rec := &recorder{}

	_, err := f.svc.ImportImageURL(context.Background(), ImportImageURLRequest{ImageURL: "https://cdn/r/soup.png"}, rec.sink)
	if !errors.Is(err, domain.ErrImageDownload) {
		t.Fatalf("error = %v, want ErrImageDownload", err)
	}
	assertProgress(t, rec.last(), no(), nil, nil)
}

func TestImportImageURL_Duplicate(t *testing.T) {
	f := newFixture(nil)
	f.mealie.existing = &domain.RecipeSummary{Slug: "soup"}

	_, err := f.svc.ImportImageURL(context.Background(), ImportImageURLRequest{ImageURL: "https://cdn/r/soup.png"}, nil)
	if !errors.Is(err, domain.ErrDuplicateRecipe) {
		t.Errorf("error = %v, want ErrDuplicateRecipe", err)
	}
}

func TestImportService_RecordsHistory(t *testing.T) {
	f := newFixture(videoWithAudio(t))
	ctx := context.Background()

	if _, err := f.svc.ImportURL(ctx, ImportURLRequest{URL: reelURL}, nil); err != nil {
		t.Fatalf("ImportURL: %v", err)
	}

	f.mealie.createErr = errors.New("mealie down")
	if _, err := f.svc.ImportImage(ctx, ImportImageRequest{Data: []byte("jpeg"), Filename: "card.jpg"}, nil); err == nil {
		t.Fatal("expected publish failure")
	}

	f.mealie.existing = &domain.RecipeSummary{Slug: "lemon-pasta", Name: "Lemon Pasta"}
	f.svc.ImportURL(ctx, ImportURLRequest{URL: reelURL}, nil)

	records, err := f.svc.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}

	dup, failed, ok := records[0], records[1], records[2]
	if dup.Status != domain.ImportStatusDuplicate || dup.Slug != "lemon-pasta" {
		t.Errorf("duplicate record = %+v", dup)
	}
	if failed.Status != domain.ImportStatusError || failed.Source != domain.ImportSourceImage ||
		failed.Target != "card.jpg" || !strings.Contains(failed.Error, "mealie down") {
		t.Errorf("failed record = %+v", failed)
	}
	if ok.Status != domain.ImportStatusOK || ok.Target != reelURL || ok.Slug != "lemon-pasta" || ok.RecipeName != "Recipe lemon-pasta" || ok.ID == "" {
		t.Errorf("ok record = %+v", ok)
	}

	stats, err := f.svc.HistoryStats(ctx)
	if err != nil {
		t.Fatalf("HistoryStats: %v", err)
	}
	if stats.Total != 3 || stats.OK != 1 || stats.Failed != 1 || stats.Duplicates != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestImportService_InvalidURLNotRecorded(t *testing.T) {
	f := newFixture(videoWithAudio(t))

	f.svc.ImportURL(context.Background(), ImportURLRequest{URL: "not a url"}, nil)

	records, _ := f.svc.Recent(context.Background(), 10)
	if len(records) != 0 {
		t.Errorf("records = %v, want none for rejected requests", records)
	}
}
