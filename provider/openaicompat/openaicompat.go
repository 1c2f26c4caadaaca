package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	vr "github.com/ineyio/visionrouter"
)

// Provider is a universal OpenAI-compatible vision adapter.
// Works with OpenAI, OpenRouter, Perplexity and other chat-completions APIs
// that accept image_url content parts.
type Provider struct {
	name        string
	displayName string
	baseURL     string
	apiKey      string
	headers     http.Header
	httpClient  *http.Client
}

var _ vr.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithAPIKey sets the bearer token. Without one every call fails with
// ErrProviderNotConfigured.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithBaseURL overrides the base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(p *Provider) { p.headers.Set(key, value) }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New creates a new OpenAI-compatible provider.
func New(name, displayName, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		name:        name,
		displayName: displayName,
		baseURL:     strings.TrimRight(baseURL, "/"),
		headers:     make(http.Header),
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewOpenAI creates a provider for OpenAI.
func NewOpenAI(opts ...Option) *Provider {
	return New("openai", "OpenAI", "https://api.openai.com/v1", opts...)
}

// NewOpenRouter creates a provider for OpenRouter. referer and title
// identify the calling application to OpenRouter.
func NewOpenRouter(referer, title string, opts ...Option) *Provider {
	if referer == "" {
		referer = "http://localhost:3000"
	}
	if title == "" {
		title = "Visual Maji"
	}
	base := []Option{WithHeader("HTTP-Referer", referer), WithHeader("X-Title", title)}
	return New("openrouter", "OpenRouter", "https://openrouter.ai/api/v1", append(base, opts...)...)
}

// NewPerplexity creates a provider for Perplexity.
func NewPerplexity(opts ...Option) *Provider {
	return New("perplexity", "Perplexity", "https://api.perplexity.ai", opts...)
}

func (p *Provider) Name() string { return p.name }

// Configured reports whether an API key is set.
func (p *Provider) Configured() bool { return p.apiKey != "" }

// apiRequest is the chat completion request format.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

type apiMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// apiResponse is the chat completion response format.
type apiResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) Analyze(ctx context.Context, req vr.ProviderRequest) (vr.ProviderResponse, error) {
	if !p.Configured() {
		return vr.ProviderResponse{}, fmt.Errorf("%w: %s API is not configured", vr.ErrProviderNotConfigured, p.displayName)
	}

	httpResp, err := p.doRequest(ctx, buildRequest(req))
	if err != nil {
		return vr.ProviderResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := p.mapHTTPError(httpResp); err != nil {
		return vr.ProviderResponse{}, err
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return vr.ProviderResponse{}, fmt.Errorf("%w: decode %s response: %v", vr.ErrProviderUnavailable, p.name, err)
	}

	if len(resp.Choices) == 0 {
		return vr.ProviderResponse{}, fmt.Errorf("%w: no choices in %s response", vr.ErrEmptyResponse, p.name)
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return vr.ProviderResponse{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
	}, nil
}

func buildRequest(req vr.ProviderRequest) apiRequest {
	return apiRequest{
		Model: req.Model,
		Messages: []apiMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: req.Prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: req.ImageData}},
			},
		}},
		Temperature: req.EffectiveTemperature(),
		MaxTokens:   req.EffectiveMaxTokens(),
	}
}

func (p *Provider) doRequest(ctx context.Context, body apiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("visionrouter: marshal request: %w", err)
	}

	url := p.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("visionrouter: create request: %w", err)
	}

	for k, v := range p.headers {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", vr.ErrProviderUnavailable, p.name, err)
	}

	return resp, nil
}

func (p *Provider) mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	// Read body for error context, but don't fail if we can't.
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	msg := p.displayName + " API request failed"
	var ae apiError
	if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
		msg = ae.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", vr.ErrRateLimited, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", vr.ErrAuthFailed, msg)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", vr.ErrProviderRejected, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", vr.ErrProviderUnavailable, resp.StatusCode, msg)
	}
}
