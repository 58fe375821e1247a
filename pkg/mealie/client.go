// Package mealie is a small client for the Mealie recipe manager API.
package mealie

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/iconidentify/recipegrabba/internal/config"
	"github.com/iconidentify/recipegrabba/internal/domain"
)

// ErrTimeout is returned when Mealie does not answer within the client
// timeout. Recipe imports with slow scrapers are the usual cause.
var ErrTimeout = errors.New("timeout talking to mealie")

// APIError is a non-2xx answer from Mealie.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mealie API error (status %d): %s", e.StatusCode, e.Body)
}

// Client interfaces with Mealie.
type Client interface {
	CreateFromJSON(ctx context.Context, recipe *domain.Recipe) (string, error)
	CreateFromImage(ctx context.Context, image []byte, filename string, tags []string) (string, error)
	GetRecipe(ctx context.Context, slug string) (*domain.RecipeSummary, error)
	FindBySourceURL(ctx context.Context, sourceURL string) (*domain.RecipeSummary, error)
	RecipeImage(ctx context.Context, id string) (*Image, error)
}

// Image is a recipe image fetched from Mealie.
type Image struct {
	Data        []byte
	ContentType string
}

// HTTPClient implements Client over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	groupName  string
	httpClient *http.Client
}

// NewClient creates a new Mealie client.
func NewClient(cfg config.MealieConfig) *HTTPClient {
	group := cfg.GroupName
	if group == "" {
		group = "home"
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		apiKey:    cfg.APIKey,
		groupName: group,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// BaseURL returns the configured Mealie URL without a trailing slash.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, nil, fmt.Errorf("%w (%s): %v", ErrTimeout, c.baseURL, err)
		}
		return nil, nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Body: domain.Truncate(string(respBody), 800)}
	}
	return respBody, resp.Header, nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	respBody, _, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CreateFromJSON imports a JSON-LD recipe and returns its slug. Keywords
// become tags.
func (c *HTTPClient) CreateFromJSON(ctx context.Context, recipe *domain.Recipe) (string, error) {
	data, err := json.Marshal(recipe)
	if err != nil {
		return "", fmt.Errorf("marshal recipe: %w", err)
	}

	payload := struct {
		IncludeTags bool   `json:"includeTags"`
		Data        string `json:"data"`
	}{IncludeTags: true, Data: string(data)}

	var slug string
	if err := c.doJSON(ctx, http.MethodPost, "/api/recipes/create/html-or-json", payload, &slug); err != nil {
		return "", err
	}
	if slug == "" {
		return "", fmt.Errorf("mealie returned empty slug")
	}
	return slug, nil
}

// CreateFromImage lets Mealie extract a recipe from an image, then applies
// tags. It returns the slug.
func (c *HTTPClient) CreateFromImage(ctx context.Context, image []byte, filename string, tags []string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("images", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("copy image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}

	respBody, _, err := c.do(ctx, http.MethodPost, "/api/recipes/create/image", &buf, writer.FormDataContentType())
	if err != nil {
		return "", err
	}

	var slug string
	if err := json.Unmarshal(respBody, &slug); err != nil {
		return "", fmt.Errorf("unmarshal slug: %w", err)
	}
	if slug == "" {
		return "", fmt.Errorf("mealie returned empty slug")
	}

	if len(tags) > 0 {
		if err := c.applyTags(ctx, slug, tags); err != nil {
			return "", fmt.Errorf("apply tags: %w", err)
		}
	}
	return slug, nil
}

type tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type tagPage struct {
	Items []tag `json:"items"`
}

func (c *HTTPClient) applyTags(ctx context.Context, slug string, names []string) error {
	tags := make([]tag, 0, len(names))
	for _, name := range names {
		t, err := c.ensureTag(ctx, name)
		if err != nil {
			return err
		}
		tags = append(tags, t)
	}
	return c.doJSON(ctx, http.MethodPatch, "/api/recipes/"+url.PathEscape(slug), map[string]any{"tags": tags}, nil)
}

// ensureTag returns the tag called name, creating it when missing.
func (c *HTTPClient) ensureTag(ctx context.Context, name string) (tag, error) {
	var page tagPage
	q := url.Values{}
	q.Set("search", name)
	q.Set("perPage", "50")
	if err := c.doJSON(ctx, http.MethodGet, "/api/organizers/tags?"+q.Encode(), nil, &page); err != nil {
		return tag{}, err
	}
	for _, t := range page.Items {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}

	var created tag
	if err := c.doJSON(ctx, http.MethodPost, "/api/organizers/tags", map[string]string{"name": name}, &created); err != nil {
		return tag{}, err
	}
	return created, nil
}

type recipeDTO struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (c *HTTPClient) summary(r recipeDTO) *domain.RecipeSummary {
	return &domain.RecipeSummary{
		ID:          r.ID,
		Slug:        r.Slug,
		Name:        r.Name,
		Description: r.Description,
		ImageURL:    c.ImageURL(r.ID),
		URL:         fmt.Sprintf("%s/g/%s/r/%s", c.baseURL, c.groupName, r.Slug),
	}
}

// ImageURL returns the original image URL of a recipe.
func (c *HTTPClient) ImageURL(id string) string {
	return fmt.Sprintf("%s/api/media/recipes/%s/images/original.webp", c.baseURL, id)
}

// GetRecipe fetches a recipe summary by slug.
func (c *HTTPClient) GetRecipe(ctx context.Context, slug string) (*domain.RecipeSummary, error) {
	var r recipeDTO
	if err := c.doJSON(ctx, http.MethodGet, "/api/recipes/"+url.PathEscape(slug), nil, &r); err != nil {
		return nil, err
	}
	if r.Slug == "" {
		r.Slug = slug
	}
	return c.summary(r), nil
}

// FindBySourceURL returns the recipe imported from sourceURL, or nil.
func (c *HTTPClient) FindBySourceURL(ctx context.Context, sourceURL string) (*domain.RecipeSummary, error) {
	q := url.Values{}
	q.Set("queryFilter", "orgURL = "+strconv.Quote(sourceURL))
	q.Set("perPage", "1")

	var page struct {
		Items []recipeDTO `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/recipes?"+q.Encode(), nil, &page); err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return c.summary(page.Items[0]), nil
}

// RecipeImage downloads the original image of a recipe.
func (c *HTTPClient) RecipeImage(ctx context.Context, id string) (*Image, error) {
	data, header, err := c.do(ctx, http.MethodGet, "/api/media/recipes/"+url.PathEscape(id)+"/images/original.webp", nil, "")
	if err != nil {
		return nil, err
	}
	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/webp"
	}
	return &Image{Data: data, ContentType: contentType}, nil
}
