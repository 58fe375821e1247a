package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/iconidentify/recipegrabba/internal/config"
	"github.com/iconidentify/recipegrabba/internal/domain"
	"github.com/iconidentify/recipegrabba/internal/metrics"
)

func newAcquireCommand(configPath *string) *cobra.Command {
	var outPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "acquire <url>",
		Short: "Probe, download and normalize the media of a post without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadAcquisition(*configPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Storage.TempPath, 0755); err != nil {
				return fmt.Errorf("create temp directory: %w", err)
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg.Log)
			p := newPipeline(cfg, metrics.Noop{}, logger)

			start := time.Now()
			result, err := p.acquirer.Acquire(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			rows := acquisitionRows(result, elapsed)

			if outPath != "" {
				data, label := outputBytes(result)
				if data == nil {
					return fmt.Errorf("nothing to write: post has no audio or image")
				}
				if err := os.WriteFile(outPath, data, 0644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
				rows = append(rows, [2]string{"Written", outPath + " (" + label + ")"})

				if result.HasAudio() {
					if info, err := p.ffmpeg.Inspect(cmd.Context(), outPath); err == nil {
						rows = append(rows,
							[2]string{"Duration", (time.Duration(info.Duration * float64(time.Second))).Round(time.Millisecond).String()},
							[2]string{"Sample rate", strconv.Itoa(info.SampleRate) + " Hz"},
							[2]string{"Channels", strconv.Itoa(info.Channels)},
						)
					} else {
						logger.Debug("ffprobe of output failed", "error", err)
					}
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderFields("Acquisition", rows))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the normalized WAV (or image) to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

func acquisitionRows(r *domain.AcquisitionResult, elapsed time.Duration) [][2]string {
	rows := [][2]string{
		{"Media type", string(r.MediaType)},
		{"Title", orDash(r.Title)},
		{"Description", orDash(domain.Truncate(r.Description, 200))},
		{"Thumbnail", orDash(r.ThumbnailURL)},
	}
	switch {
	case r.Image != nil:
		rows = append(rows,
			[2]string{"Image URL", orDash(r.ImageURL)},
			[2]string{"Image", humanize.Bytes(uint64(r.Image.Size())) + " ." + r.Image.Extension},
		)
	case r.HasAudio():
		rows = append(rows, [2]string{"Audio", humanize.Bytes(uint64(r.Audio.Len())) + " WAV"})
	default:
		rows = append(rows, [2]string{"Audio", "none (description only)"})
	}
	return append(rows, [2]string{"Elapsed", elapsed.Round(time.Millisecond).String()})
}

func outputBytes(r *domain.AcquisitionResult) ([]byte, string) {
	if r.HasAudio() {
		return r.Audio.Bytes(), "wav"
	}
	if r.Image != nil && !r.Image.Empty() {
		return r.Image.Data, r.Image.Extension
	}
	return nil, ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
