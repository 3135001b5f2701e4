package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vbonduro/winelens/internal/domain"
	"github.com/vbonduro/winelens/internal/logging"
	"github.com/vbonduro/winelens/internal/service"
	"github.com/vbonduro/winelens/internal/vision"
)

const maxImageSize = 10 * 1024 * 1024 // 10 MiB decoded

// maxBodySize allows a maximum-size image after base64 expansion plus the
// surrounding JSON fields.
const maxBodySize = maxImageSize/3*4 + 64*1024

const (
	msgTooLarge   = "Image too large. Maximum size is 10MB."
	msgUnreadable = "Failed to parse wine list from image. Try a clearer photo."
	msgNoAPIKey   = "API key not configured. Set the reasoning service credential."
)

type analyzeRequest struct {
	Image     string `json:"image"`
	MediaType string `json:"mediaType"`
	Filter    string `json:"filter,omitempty"`
	Lookup    bool   `json:"lookup,omitempty"`
}

type analyzeResponse struct {
	Wines []domain.Wine `json:"wines"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), s.logger)

	var body analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusBadRequest, msgTooLarge)
			return
		}
		s.writeError(w, r, http.StatusBadRequest, "Invalid JSON body.")
		return
	}

	req, msg := toAnalysisRequest(body)
	if msg != "" {
		s.writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	wines, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		status, msg := errorStatus(err)
		if status >= http.StatusInternalServerError {
			logger.Error("wine analysis failed", "error", err)
		}
		s.writeError(w, r, status, msg)
		return
	}

	if wines == nil {
		wines = []domain.Wine{}
	}
	s.writeJSON(w, r, http.StatusOK, analyzeResponse{Wines: wines})
}

// toAnalysisRequest validates the inbound body. A non-empty message means the
// request is rejected with 400.
func toAnalysisRequest(body analyzeRequest) (domain.AnalysisRequest, string) {
	if body.Image == "" || body.MediaType == "" {
		return domain.AnalysisRequest{}, "Missing image or mediaType"
	}
	mediaType := domain.MediaType(body.MediaType)
	if !mediaType.Valid() {
		return domain.AnalysisRequest{}, "Invalid image type. Use JPEG, PNG, WebP, or GIF."
	}
	if len(body.Image)*3/4 > maxImageSize {
		return domain.AnalysisRequest{}, msgTooLarge
	}

	var categories []domain.Category
	if body.Filter != "" {
		c := domain.Category(body.Filter)
		if !c.Valid() {
			return domain.AnalysisRequest{}, "Invalid filter. Use all, red, white, rose, sparkling, or dessert."
		}
		categories = []domain.Category{c}
	}

	return domain.AnalysisRequest{
		Image:       body.Image,
		MediaType:   mediaType,
		Categories:  categories,
		AllowLookup: body.Lookup,
	}, ""
}

// errorStatus maps an analysis failure to a status code and a short message
// safe to show the user. Upstream error text is never echoed.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid analysis request."
	case errors.Is(err, vision.ErrUnreadableList):
		return http.StatusUnprocessableEntity, msgUnreadable
	case errors.Is(err, vision.ErrUpstreamAuth):
		return http.StatusInternalServerError, msgNoAPIKey
	}

	for _, category := range []error{vision.ErrNoResponseContent, vision.ErrSchemaMismatch, vision.ErrUpstream} {
		if errors.Is(err, category) {
			return http.StatusInternalServerError, "Failed to analyze wine list: " + category.Error() + "."
		}
	}
	return http.StatusInternalServerError, "Failed to analyze wine list. Please try again."
}
