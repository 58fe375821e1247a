package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/internal/progress"
	"github.com/iconidentify/recipegrabba/internal/service"
	"github.com/iconidentify/recipegrabba/pkg/mealie"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func boolPtr(v bool) *bool { return &v }

// mockImporter replays scripted events and returns a scripted result.
type mockImporter struct {
	events  []domain.ProgressEvent
	created *domain.RecipeSummary
	err     error

	urlReq      *service.ImportURLRequest
	imageReq    *service.ImportImageRequest
	imageURLReq *service.ImportImageURLRequest
}

func (m *mockImporter) replay(sink progress.Sink) (*domain.RecipeSummary, error) {
	for _, ev := range m.events {
		sink(ev)
	}
	return m.created, m.err
}

func (m *mockImporter) ImportURL(ctx context.Context, req service.ImportURLRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	m.urlReq = &req
	return m.replay(sink)
}

func (m *mockImporter) ImportImage(ctx context.Context, req service.ImportImageRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	m.imageReq = &req
	return m.replay(sink)
}

func (m *mockImporter) ImportImageURL(ctx context.Context, req service.ImportImageURLRequest, sink progress.Sink) (*domain.RecipeSummary, error) {
	m.imageURLReq = &req
	return m.replay(sink)
}

type mockStore struct {
	existing *domain.RecipeSummary
	findErr  error
	image    *mealie.Image
	imageErr error
	gotURL   string
}

func (m *mockStore) FindExisting(ctx context.Context, sourceURL string) (*domain.RecipeSummary, error) {
	m.gotURL = sourceURL
	return m.existing, m.findErr
}

func (m *mockStore) RecipeImage(ctx context.Context, id string) (*mealie.Image, error) {
	return m.image, m.imageErr
}

type mockChecker bool

func (c mockChecker) Available() bool { return bool(c) }
