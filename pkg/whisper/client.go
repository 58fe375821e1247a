package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// MaxFileSize is the maximum upload size of the transcription API (25MB).
const MaxFileSize = 25 * 1024 * 1024

// ErrTooLarge is returned when the audio exceeds MaxFileSize.
var ErrTooLarge = errors.New("audio exceeds transcription upload limit")

// Client interfaces with an OpenAI-compatible transcription API.
type Client interface {
	// Transcribe converts audio to text.
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error)
}

// TranscriptionRequest contains the audio data and options for transcription.
type TranscriptionRequest struct {
	AudioData []byte
	Filename  string
	Model     string // "whisper-1", "gpt-4o-transcribe", "gpt-4o-mini-transcribe"
	Language  string // Optional: ISO-639-1 language code (e.g., "en")
	Prompt    string // Optional: context/prompt to guide transcription
}

// TranscriptionResponse contains the transcription result.
type TranscriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// HTTPClient implements Client using the OpenAI API.
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Config for creating a new Whisper client.
type Config struct {
	APIKey  string
	BaseURL string        // Optional, defaults to OpenAI API
	Model   string        // Optional, defaults to "whisper-1"
	Timeout time.Duration // Optional, defaults to 5 minutes
}

// NewClient creates a new transcription client.
func NewClient(cfg Config) *HTTPClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &HTTPClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Transcribe sends audio to the transcription API and returns the text.
func (c *HTTPClient) Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResponse, error) {
	if len(req.AudioData) == 0 {
		return nil, fmt.Errorf("no audio data")
	}
	if len(req.AudioData) > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(req.AudioData))
	}
	if req.Model == "" {
		req.Model = c.model
	}
	if req.Filename == "" {
		req.Filename = "audio.wav"
	}

	// Create multipart form
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(req.AudioData); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}

	if err := writer.WriteField("model", req.Model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if req.Language != "" {
		if err := writer.WriteField("language", req.Language); err != nil {
			return nil, fmt.Errorf("write language field: %w", err)
		}
	}
	if req.Prompt != "" {
		if err := writer.WriteField("prompt", req.Prompt); err != nil {
			return nil, fmt.Errorf("write prompt field: %w", err)
		}
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, fmt.Errorf("write response_format field: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result TranscriptionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)

	return &result, nil
}

// TranscribeWAV transcribes a normalized WAV buffer using the client defaults.
func (c *HTTPClient) TranscribeWAV(ctx context.Context, wav []byte) (string, error) {
	resp, err := c.Transcribe(ctx, TranscriptionRequest{AudioData: wav, Filename: "audio.wav"})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
