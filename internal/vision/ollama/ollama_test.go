package ollama

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/winelens/internal/domain"
	"github.com/vbonduro/winelens/internal/vision"
)

func testRequest() vision.Request {
	return vision.BuildRequest(domain.AnalysisRequest{
		Image:       "/9j/4AAQ",
		MediaType:   domain.MediaTypeJPEG,
		AllowLookup: true,
	})
}

func TestOllamaAnalyze(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		resp := map[string]interface{}{
			"model":       got.Model,
			"response":    `{"wines": [{"name": "Chianti Classico 2020", "price": "$48"}]}`,
			"done_reason": "stop",
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	analyzer := NewOllamaAnalyzer(server.URL, "llava", slog.Default())

	segments, err := analyzer.Analyze(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, segments, 1)

	wines, err := vision.Extract(segments)
	require.NoError(t, err)
	require.Len(t, wines, 1)
	assert.Equal(t, "Chianti Classico 2020", wines[0].Name)

	assert.Equal(t, "llava", got.Model)
	assert.Equal(t, vision.SystemPrompt, got.System)
	assert.Equal(t, []string{"/9j/4AAQ"}, got.Images)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, 16384, got.Options.NumPredict)
}

func TestOllamaAnalyzeEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": ""})
	}))
	defer server.Close()

	segments, err := NewOllamaAnalyzer(server.URL, "llava", slog.Default()).Analyze(context.Background(), testRequest())
	require.NoError(t, err)

	_, err = vision.Extract(segments)
	assert.ErrorIs(t, err, vision.ErrNoResponseContent)
}

func TestOllamaAnalyzeNetworkError(t *testing.T) {
	analyzer := NewOllamaAnalyzer("http://localhost:99999", "llava", slog.Default())

	_, err := analyzer.Analyze(context.Background(), testRequest())

	assert.ErrorIs(t, err, vision.ErrUpstream)
}

func TestOllamaAnalyzeErrorStatus(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, wantErr: vision.ErrUpstream},
		{name: "unauthorized proxy", status: http.StatusUnauthorized, wantErr: vision.ErrUpstreamAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := NewOllamaAnalyzer(server.URL, "llava", slog.Default()).Analyze(context.Background(), testRequest())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOllamaAnalyzeInvalidBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewOllamaAnalyzer(server.URL, "llava", slog.Default()).Analyze(context.Background(), testRequest())
	assert.ErrorIs(t, err, vision.ErrUpstream)
	assert.NotErrorIs(t, err, vision.ErrUnreadableList)
}
