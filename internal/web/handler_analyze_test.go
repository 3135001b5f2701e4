package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbonduro/winelens/internal/domain"
	"github.com/vbonduro/winelens/internal/service"
	"github.com/vbonduro/winelens/internal/vision"
)

type stubAnalyzer struct {
	wines   []domain.Wine
	err     error
	lastReq *domain.AnalysisRequest
}

func (s *stubAnalyzer) Analyze(_ context.Context, req domain.AnalysisRequest) ([]domain.Wine, error) {
	s.lastReq = &req
	return s.wines, s.err
}

func postAnalyze(t *testing.T, srv *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp.Error
}

func TestHandleAnalyzeSuccess(t *testing.T) {
	stub := &stubAnalyzer{wines: []domain.Wine{{
		Name:         "Sancerre 2022",
		Price:        "$16 / $64",
		Vibe:         "Oysters on the terrace",
		RegionNotes:  "The Loire's reference point for Sauvignon Blanc.",
		TastingNotes: []domain.TastingNote{{Descriptor: "crisp", Rating: 9}},
		Story:        "Flint soils around the hilltop town.",
	}}}
	srv := NewServer(stub, "claude", slog.Default())

	rec := postAnalyze(t, srv, analyzeRequest{Image: "/9j/4AAQ", MediaType: "image/jpeg", Filter: "rose", Lookup: true})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var resp analyzeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, stub.wines, resp.Wines)

	require.NotNil(t, stub.lastReq)
	assert.Equal(t, domain.MediaTypeJPEG, stub.lastReq.MediaType)
	assert.Equal(t, []domain.Category{domain.CategoryRose}, stub.lastReq.Categories)
	assert.True(t, stub.lastReq.AllowLookup)
}

func TestHandleAnalyzeEmptyListSerializesAsArray(t *testing.T) {
	srv := NewServer(&stubAnalyzer{}, "claude", slog.Default())

	rec := postAnalyze(t, srv, analyzeRequest{Image: "/9j/4AAQ", MediaType: "image/png"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"wines": []}`, rec.Body.String())
}

func TestHandleAnalyzeValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{name: "malformed json", body: "{", wantMsg: "Invalid JSON body."},
		{name: "missing image", body: analyzeRequest{MediaType: "image/jpeg"}, wantMsg: "Missing image or mediaType"},
		{name: "missing media type", body: analyzeRequest{Image: "abc"}, wantMsg: "Missing image or mediaType"},
		{name: "unsupported media type", body: analyzeRequest{Image: "abc", MediaType: "image/bmp"}, wantMsg: "Invalid image type. Use JPEG, PNG, WebP, or GIF."},
		{name: "invalid filter", body: analyzeRequest{Image: "abc", MediaType: "image/gif", Filter: "orange"}, wantMsg: "Invalid filter. Use all, red, white, rose, sparkling, or dessert."},
		{name: "oversized", body: analyzeRequest{Image: strings.Repeat("A", maxImageSize/3*4+8), MediaType: "image/webp"}, wantMsg: msgTooLarge},
		{name: "body over cap", body: `{"image": "` + strings.Repeat("A", maxBodySize) + `", "mediaType": "image/jpeg"}`, wantMsg: msgTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnalyzer{}
			srv := NewServer(stub, "claude", slog.Default())

			rec := postAnalyze(t, srv, tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeError(t, rec))
			assert.Nil(t, stub.lastReq, "analyzer must not run")
		})
	}
}

func TestHandleAnalyzeAcceptsMaxSizeImage(t *testing.T) {
	stub := &stubAnalyzer{}
	srv := NewServer(stub, "claude", slog.Default())

	rec := postAnalyze(t, srv, analyzeRequest{Image: strings.Repeat("A", maxImageSize/3*4), MediaType: "image/jpeg"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, stub.lastReq)
}

func TestHandleAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "unreadable list",
			err:        fmt.Errorf("failed to extract wines: %w", vision.ErrUnreadableList),
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    msgUnreadable,
		},
		{
			name:       "auth",
			err:        fmt.Errorf("failed to analyze image: %w", vision.AuthError(errors.New("invalid x-api-key sk-secret"))),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    msgNoAPIKey,
		},
		{
			name:       "upstream",
			err:        vision.UpstreamError(errors.New("dial tcp 10.0.0.1:443: i/o timeout")),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to analyze wine list: reasoning service call failed.",
		},
		{
			name:       "no content",
			err:        vision.ErrNoResponseContent,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to analyze wine list: no text response from reasoning service.",
		},
		{
			name:       "schema mismatch",
			err:        fmt.Errorf("%w: missing \"wines\" field", vision.ErrSchemaMismatch),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to analyze wine list: response does not match wine list schema.",
		},
		{
			name:       "invalid request",
			err:        fmt.Errorf("%w: missing image", service.ErrInvalidRequest),
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid analysis request.",
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Failed to analyze wine list. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&stubAnalyzer{err: tt.err}, "claude", slog.Default())

			rec := postAnalyze(t, srv, analyzeRequest{Image: "/9j/4AAQ", MediaType: "image/jpeg"})

			assert.Equal(t, tt.wantStatus, rec.Code)
			msg := decodeError(t, rec)
			assert.Equal(t, tt.wantMsg, msg)
			assert.NotContains(t, msg, "sk-secret")
		})
	}
}

func TestHandleHealth(t *testing.T) {
	srv := NewServer(&stubAnalyzer{}, "gemini", slog.Default())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "ok", "backend": "gemini"}`, rec.Body.String())
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestRequestIDFromCaller(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "simple", incoming: "req-123", keep: true},
		{name: "uuid", incoming: "0b6f3a62-8c1e-4b7e-9f0a-2d3c4e5f6a7b", keep: true},
		{name: "at limit", incoming: strings.Repeat("a", maxRequestIDLen), keep: true},
		{name: "too long", incoming: strings.Repeat("a", maxRequestIDLen+1)},
		{name: "spaces", incoming: "req 123"},
		{name: "json injection", incoming: `req","admin":"true`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&stubAnalyzer{}, "claude", slog.Default())

			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			req.Header.Set("X-Request-ID", tt.incoming)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)

			got := rec.Header().Get("X-Request-ID")
			if tt.keep {
				assert.Equal(t, tt.incoming, got)
				return
			}
			assert.NotEqual(t, tt.incoming, got)
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
		})
	}
}

func TestAnalyzeRejectsGet(t *testing.T) {
	srv := NewServer(&stubAnalyzer{}, "claude", slog.Default())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analyze", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
