package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vr "github.com/ineyio/visionrouter"
	"github.com/ineyio/visionrouter/provider/gemini"
)

const image = "data:image/png;base64,iVBORw0KGgo="

func TestAnalyze_SendsInlineImage(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"prompt\":\"A cat\"}"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	p := gemini.New(gemini.WithBaseURL(srv.URL), gemini.WithAPIKey("secret"))
	resp, err := p.Analyze(context.Background(), vr.ProviderRequest{
		Model:     "gemini-2.5-flash",
		ImageData: image,
		Prompt:    "describe",
	})
	require.NoError(t, err)
	assert.Equal(t, `{"prompt":"A cat"}`, resp.Text)
	assert.Equal(t, "gemini-2.5-flash", resp.Model)

	contents := got["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "describe", parts[0].(map[string]any)["text"])
	inline := parts[1].(map[string]any)["inline_data"].(map[string]any)
	assert.Equal(t, "image/png", inline["mime_type"])
	assert.Equal(t, "iVBORw0KGgo=", inline["data"])

	cfg := got["generationConfig"].(map[string]any)
	assert.Equal(t, 0.4, cfg["temperature"])
	assert.Equal(t, float64(2048), cfg["maxOutputTokens"])
}

func TestAnalyze_NotConfigured(t *testing.T) {
	p := gemini.New()
	_, err := p.Analyze(context.Background(), vr.ProviderRequest{Model: "gemini-2.5-flash", ImageData: image})
	require.Error(t, err)
	assert.ErrorIs(t, err, vr.ErrProviderNotConfigured)
	assert.ErrorIs(t, err, vr.ErrProviderUnavailable)
}

func TestAnalyze_InvalidImage(t *testing.T) {
	p := gemini.New(gemini.WithAPIKey("k"))
	_, err := p.Analyze(context.Background(), vr.ProviderRequest{Model: "m", ImageData: "not-a-data-url"})
	assert.ErrorIs(t, err, vr.ErrInvalidInput)
}

func TestAnalyze_HTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, vr.ErrRateLimited},
		{http.StatusUnauthorized, vr.ErrAuthFailed},
		{http.StatusBadRequest, vr.ErrProviderRejected},
		{http.StatusInternalServerError, vr.ErrProviderUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"upstream says no"}}`))
			}))
			defer srv.Close()

			p := gemini.New(gemini.WithBaseURL(srv.URL), gemini.WithAPIKey("k"))
			_, err := p.Analyze(context.Background(), vr.ProviderRequest{Model: "m", ImageData: image})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, vr.ErrProviderUnavailable)
			assert.Contains(t, err.Error(), "upstream says no")
		})
	}
}

func TestAnalyze_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	p := gemini.New(gemini.WithBaseURL(srv.URL), gemini.WithAPIKey("k"))
	_, err := p.Analyze(context.Background(), vr.ProviderRequest{Model: "m", ImageData: image})
	assert.ErrorIs(t, err, vr.ErrEmptyResponse)
}
