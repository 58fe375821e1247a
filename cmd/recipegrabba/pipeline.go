package main

import (
	"log/slog"

	"github.com/iconidentify/recipegrabba/internal/config"
	"github.com/iconidentify/recipegrabba/internal/downloader"
	"github.com/iconidentify/recipegrabba/internal/media"
	"github.com/iconidentify/recipegrabba/internal/metrics"
	"github.com/iconidentify/recipegrabba/pkg/ffmpeg"
	"github.com/iconidentify/recipegrabba/pkg/ytdlp"
)

// pipeline holds the acquisition core and the tools behind it.
type pipeline struct {
	ytdlp    *ytdlp.Client
	ffmpeg   *ffmpeg.Processor
	fetcher  *media.Fetcher
	acquirer *media.Acquirer
}

func newPipeline(cfg *config.Config, m metrics.Metrics, logger *slog.Logger) *pipeline {
	yt := ytdlp.NewClient(ytdlp.Config{
		BinaryPath:  cfg.Tools.YtDlpPath,
		CookiesPath: cfg.Tools.CookiesPath,
		FFmpegPath:  cfg.Tools.FFmpegPath,
		TempDir:     cfg.Storage.TempPath,
	})
	ff := ffmpeg.NewProcessor(ffmpeg.Config{
		FFmpegPath:  cfg.Tools.FFmpegPath,
		FFprobePath: cfg.Tools.FFprobePath,
	})
	dl := downloader.NewHTTPDownloader(cfg.Download, logger)

	prober := media.NewProber(yt, cfg.Tools.ProbeTimeout, logger)
	fetcher := media.NewFetcher(yt, dl, media.FetcherConfig{Timeout: cfg.Tools.DownloadTimeout}, m, logger)
	normalizer := media.NewNormalizer(ff, cfg.Storage.TempPath, cfg.Tools.TranscodeTimeout, logger)

	return &pipeline{
		ytdlp:    yt,
		ffmpeg:   ff,
		fetcher:  fetcher,
		acquirer: media.NewAcquirer(prober, fetcher, normalizer, m, logger),
	}
}
