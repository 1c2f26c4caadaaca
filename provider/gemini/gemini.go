package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	vr "github.com/ineyio/visionrouter"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var dataURLRe = regexp.MustCompile(`(?s)^data:(.+?);base64,(.+)$`)

// Provider is the Gemini vision adapter.
type Provider struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ vr.Provider = (*Provider)(nil)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithAPIKey sets the API key. Without one every call fails with
// ErrProviderNotConfigured.
func WithAPIKey(key string) Option {
	return func(p *Provider) { p.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// New creates a new Gemini provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string { return "gemini" }

// Configured reports whether an API key is set.
func (p *Provider) Configured() bool { return p.apiKey != "" }

// Gemini API types.
type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *Provider) Analyze(ctx context.Context, req vr.ProviderRequest) (vr.ProviderResponse, error) {
	if !p.Configured() {
		return vr.ProviderResponse{}, fmt.Errorf("%w: Gemini API is not configured", vr.ErrProviderNotConfigured)
	}

	body, err := buildRequest(req)
	if err != nil {
		return vr.ProviderResponse{}, err
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(req.Model), url.QueryEscape(p.apiKey))

	httpResp, err := p.doRequest(ctx, endpoint, body)
	if err != nil {
		return vr.ProviderResponse{}, err
	}
	defer httpResp.Body.Close()

	if err := mapHTTPError(httpResp); err != nil {
		return vr.ProviderResponse{}, err
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return vr.ProviderResponse{}, fmt.Errorf("%w: decode gemini response: %v", vr.ErrProviderUnavailable, err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return vr.ProviderResponse{}, fmt.Errorf("%w: no candidates in gemini response", vr.ErrEmptyResponse)
	}

	return vr.ProviderResponse{
		Text:  resp.Candidates[0].Content.Parts[0].Text,
		Model: req.Model,
	}, nil
}

func buildRequest(req vr.ProviderRequest) (geminiRequest, error) {
	m := dataURLRe.FindStringSubmatch(req.ImageData)
	if m == nil {
		return geminiRequest{}, fmt.Errorf("%w: invalid image data format", vr.ErrInvalidInput)
	}

	return geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &inlineData{MimeType: m[1], Data: m[2]}},
			},
		}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.EffectiveTemperature(),
			MaxOutputTokens: req.EffectiveMaxTokens(),
		},
	}, nil
}

func (p *Provider) doRequest(ctx context.Context, endpoint string, body geminiRequest) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("visionrouter: marshal gemini request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("visionrouter: create gemini request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: gemini: %v", vr.ErrProviderUnavailable, redact(err, p.apiKey))
	}

	return resp, nil
}

func mapHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	msg := "Gemini API request failed"
	var ge geminiError
	if json.Unmarshal(body, &ge) == nil && ge.Error.Message != "" {
		msg = ge.Error.Message
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

// redact keeps the API key, which travels in the query string, out of
// transport errors.
func redact(err error, key string) string {
	if key == "" {
		return err.Error()
	}
	return strings.ReplaceAll(err.Error(), url.QueryEscape(key), "REDACTED")
}
