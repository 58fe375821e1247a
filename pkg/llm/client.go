// Package llm turns transcripts and post descriptions into schema.org
// recipes through an OpenAI-compatible chat completions API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/iconidentify/recipegrabba/internal/config"
	"github.com/iconidentify/recipegrabba/internal/domain"
)

// NoTranscription stands in for a missing transcript in the prompt.
const NoTranscription = "[No transcription available]"

// Client generates structured recipes.
type Client interface {
	GenerateRecipe(ctx context.Context, req RecipeRequest) (*domain.Recipe, error)
}

// RecipeRequest contains everything known about the post.
type RecipeRequest struct {
	Transcription string
	Description   string
	PostURL       string
	Thumbnail     string
	Tags          []string
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	apiKey      string
	baseURL     string
	model       string
	extraPrompt string
	httpClient  *http.Client
}

// NewClient creates a new generation client.
func NewClient(cfg config.OpenAIConfig) *HTTPClient {
	return &HTTPClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.TextModel,
		extraPrompt: cfg.ExtraPrompt,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

const systemPrompt = "You are an expert chef assistant. You answer with a single JSON object " +
	"in schema.org Recipe JSON-LD format and nothing else."

// GenerateRecipe asks the model for a schema.org Recipe. The result is
// normalized and its image and url default to the thumbnail and post URL.
func (c *HTTPClient) GenerateRecipe(ctx context.Context, req RecipeRequest) (*domain.Recipe, error) {
	chatReq := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildRecipePrompt(req, c.extraPrompt)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0.2,
	}

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
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
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, domain.Truncate(string(respBody), 800))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no response from model")
	}

	recipe, err := ParseRecipe(chatResp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	if recipe.Image == "" {
		recipe.Image = req.Thumbnail
	}
	if recipe.URL == "" {
		recipe.URL = req.PostURL
	}
	return recipe, nil
}

// ParseRecipe decodes model output, tolerating a markdown code fence.
func ParseRecipe(content string) (*domain.Recipe, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var recipe domain.Recipe
	if err := json.Unmarshal([]byte(content), &recipe); err != nil {
		return nil, fmt.Errorf("parse recipe JSON: %w", err)
	}
	if strings.TrimSpace(recipe.Name) == "" {
		return nil, fmt.Errorf("generated recipe has no name")
	}
	recipe.Normalize()
	return &recipe, nil
}

// BuildRecipePrompt renders the generation prompt.
func BuildRecipePrompt(req RecipeRequest, extraPrompt string) string {
	transcription := strings.TrimSpace(req.Transcription)
	if transcription == "" {
		transcription = NoTranscription
	}

	var sb strings.Builder
	sb.WriteString("Review the following recipe transcript and refine it for clarity, conciseness, and accuracy.\n")
	sb.WriteString("Ensure ingredients and instructions are well-formatted and easy to follow.\n")
	sb.WriteString("Correct any obvious errors or omissions.\n")
	sb.WriteString("Output must be valid JSON-LD Schema.org Recipe format with the fields ")
	sb.WriteString("@context, @type, name, image, url, description, recipeIngredient, recipeInstructions (HowToStep objects) and keywords.\n")
	sb.WriteString("The keywords field should not be modified; leave it as it comes. If it is not present, do not include it.\n\n")

	sb.WriteString("<Metadata>\n")
	fmt.Fprintf(&sb, "  Post URL: %s\n", req.PostURL)
	fmt.Fprintf(&sb, "  Description: %s\n", req.Description)
	fmt.Fprintf(&sb, "  Thumbnail: %s\n", req.Thumbnail)
	sb.WriteString("</Metadata>\n\n")

	sb.WriteString("<Transcription>\n  ")
	sb.WriteString(transcription)
	sb.WriteString("\n</Transcription>\n\n")

	sb.WriteString("Important:\n")
	fmt.Fprintf(&sb, "- If the transcription is missing or says %q, infer the recipe primarily from the Description and common cooking knowledge.\n", NoTranscription)
	sb.WriteString("- Be conservative: do not invent exotic ingredients; keep it minimal and plausible.\n")
	sb.WriteString("- If the description does not contain ingredient amounts, use reasonable standard amounts.\n\n")

	if len(req.Tags) > 0 {
		fmt.Fprintf(&sb, "<keywords>%s</keywords>\n\n", strings.Join(req.Tags, ", "))
	}

	sb.WriteString("Use the thumbnail for the image field and the post URL for the url field.\n")

	if extra := strings.TrimSpace(extraPrompt); len(extra) > 1 {
		sb.WriteString("Also the user requests that:\n")
		sb.WriteString(extra)
		sb.WriteString("\n")
	}

	return sb.String()
}
