package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbonduro/winelens/internal/domain"
	"github.com/vbonduro/winelens/internal/logging"
	"github.com/vbonduro/winelens/internal/vision"
)

// ErrInvalidRequest is returned when a request reaches the service without
// passing boundary validation.
var ErrInvalidRequest = errors.New("invalid analysis request")

type AnalysisService struct {
	visionAPI     vision.Analyzer
	timeout       time.Duration
	lookupTimeout time.Duration
	logger        *slog.Logger
}

func NewAnalysisService(visionAPI vision.Analyzer, timeout, lookupTimeout time.Duration, logger *slog.Logger) *AnalysisService {
	return &AnalysisService{
		visionAPI:     visionAPI,
		timeout:       timeout,
		lookupTimeout: lookupTimeout,
		logger:        logger,
	}
}

// Analyze sends the photo to the reasoning service once and returns the wines
// it recognised, in the order it listed them. Failures carry one of the
// vision error categories; nothing is retried.
func (s *AnalysisService) Analyze(ctx context.Context, req domain.AnalysisRequest) ([]domain.Wine, error) {
	logger := logging.FromContext(ctx, s.logger)

	if err := validate(req); err != nil {
		return nil, err
	}

	timeout := s.timeout
	if req.AllowLookup {
		timeout = s.lookupTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	callReq := vision.BuildRequest(req)
	logger.Info("vision analysis started",
		"media_type", req.MediaType,
		"image_b64_bytes", len(req.Image),
		"categories", req.Categories,
		"lookup", req.AllowLookup,
		"timeout", timeout,
	)

	start := time.Now()
	segments, err := s.visionAPI.Analyze(ctx, callReq)
	if err != nil {
		err = vision.UpstreamError(err)
		logger.Error("vision call failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return nil, fmt.Errorf("failed to analyze image: %w", err)
	}

	wines, err := vision.Extract(segments)
	if err != nil {
		// An unreadable list is usually a bad photo, not a fault on our side.
		level := slog.LevelError
		if errors.Is(err, vision.ErrUnreadableList) {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "vision response rejected", "error", err, "segments", len(segments))
		return nil, fmt.Errorf("failed to extract wines: %w", err)
	}

	logger.Info("vision analysis complete",
		"wines_detected", len(wines),
		"segments", len(segments),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return wines, nil
}

func validate(req domain.AnalysisRequest) error {
	if req.Image == "" {
		return fmt.Errorf("%w: missing image", ErrInvalidRequest)
	}
	if !req.MediaType.Valid() {
		return fmt.Errorf("%w: unsupported media type %q", ErrInvalidRequest, req.MediaType)
	}
	for _, c := range req.Categories {
		if !c.Valid() {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidRequest, c)
		}
	}
	return nil
}
