package domain

import (
	"bytes"
	"fmt"
)

// DefaultDescription is used when a post carries no description.
const DefaultDescription = "No description found"

// MediaType is the coarse type of an acquired post.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// FormatDescriptor is one entry of the format catalog a source exposes.
type FormatDescriptor struct {
	AudioCodec string `json:"audio_codec,omitempty"`
	VideoCodec string `json:"video_codec,omitempty"`
	Extension  string `json:"extension,omitempty"`
}

// PostMetadata describes a post without its media body.
// Empty strings mean "unknown".
type PostMetadata struct {
	SourceURL          string             `json:"source_url"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	ThumbnailURL       string             `json:"thumbnail_url,omitempty"`
	MediaURL           string             `json:"media_url,omitempty"`
	ContainerExtension string             `json:"container_extension,omitempty"`
	VideoCodec         string             `json:"video_codec,omitempty"`
	AudioCodec         string             `json:"audio_codec,omitempty"`
	AlternateFormats   []FormatDescriptor `json:"alternate_formats,omitempty"`
}

// MediaPayload is a transient media buffer with a best-guess extension.
type MediaPayload struct {
	Data      []byte
	Extension string
}

// Empty reports whether the payload carries no bytes.
func (p MediaPayload) Empty() bool {
	return len(p.Data) == 0
}

// Size returns the payload length in bytes.
func (p MediaPayload) Size() int {
	return len(p.Data)
}

const (
	wavHeaderSize = 44
	wavMagic      = "RIFF"
)

// NormalizedAudio is a mono 16 kHz 16-bit PCM WAV buffer.
// Values are only produced by NewNormalizedAudio, which validates the header.
type NormalizedAudio struct {
	data []byte
}

// NewNormalizedAudio validates data and wraps it.
func NewNormalizedAudio(data []byte) (*NormalizedAudio, error) {
	if err := ValidateWAV(data); err != nil {
		return nil, err
	}
	return &NormalizedAudio{data: data}, nil
}

// Bytes returns the WAV bytes.
func (a *NormalizedAudio) Bytes() []byte {
	if a == nil {
		return nil
	}
	return a.data
}

// Len returns the WAV size in bytes.
func (a *NormalizedAudio) Len() int {
	if a == nil {
		return 0
	}
	return len(a.data)
}

// ValidateWAV checks the minimal WAV header invariant: at least 44 bytes
// starting with "RIFF".
func ValidateWAV(data []byte) error {
	if len(data) < wavHeaderSize || !bytes.Equal(data[:4], []byte(wavMagic)) {
		return fmt.Errorf("invalid WAV output (%d bytes)", len(data))
	}
	return nil
}

// AcquisitionResult is the outcome of acquiring a single post.
type AcquisitionResult struct {
	Audio        *NormalizedAudio `json:"-"`
	Image        *MediaPayload    `json:"-"`
	ThumbnailURL string           `json:"thumbnail_url,omitempty"`
	Description  string           `json:"description"`
	Title        string           `json:"title"`
	MediaType    MediaType        `json:"media_type"`
	ImageURL     string           `json:"image_url,omitempty"`
}

// HasAudio reports whether a normalized waveform is attached.
func (r *AcquisitionResult) HasAudio() bool {
	return r != nil && r.Audio != nil && r.Audio.Len() > 0
}

// HasDescription reports whether the description carries real text and not
// the placeholder.
func (r *AcquisitionResult) HasDescription() bool {
	if r == nil {
		return false
	}
	return !IsPlaceholderDescription(r.Description)
}
