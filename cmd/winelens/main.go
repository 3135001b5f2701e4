package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/winelens/internal/config"
	"github.com/vbonduro/winelens/internal/logging"
	"github.com/vbonduro/winelens/internal/service"
	"github.com/vbonduro/winelens/internal/vision"
	claudevision "github.com/vbonduro/winelens/internal/vision/claude"
	geminivision "github.com/vbonduro/winelens/internal/vision/gemini"
	ollamavision "github.com/vbonduro/winelens/internal/vision/ollama"
	"github.com/vbonduro/winelens/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	visionAnalyzer, err := newVisionAnalyzer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize vision backend", "backend", cfg.VisionBackend, "error", err)
		return
	}

	analysisService := service.NewAnalysisService(visionAnalyzer, cfg.AnalysisTimeout, cfg.LookupTimeout, logger)
	server := web.NewServer(analysisService, cfg.VisionBackend, logger)
	httpServer := server.NewHTTPServer(cfg.ListenAddr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "addr", cfg.ListenAddr, "backend", cfg.VisionBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
	}
}

func newVisionAnalyzer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (vision.Analyzer, error) {
	switch cfg.VisionBackend {
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			// Start anyway: requests fail with the credential error message.
			logger.Warn("CLAUDE_API_KEY is not set; analyses will fail until it is configured")
		}
		var opts []option.RequestOption
		if cfg.ClaudeBaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.ClaudeBaseURL))
		}
		logger.Info("using Claude vision backend", "model", cfg.ClaudeModel)
		return claudevision.NewClaudeAnalyzer(cfg.ClaudeAPIKey, cfg.ClaudeModel, logger, opts...), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Warn("GEMINI_API_KEY is not set; analyses will fail until it is configured")
		}
		logger.Info("using Gemini vision backend", "model", cfg.GeminiModel)
		return geminivision.NewGeminiAnalyzer(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	case "ollama":
		logger.Info("using Ollama vision backend", "model", cfg.OllamaModel)
		return ollamavision.NewOllamaAnalyzer(cfg.OllamaHost, cfg.OllamaModel, logger), nil
	default:
		return nil, fmt.Errorf("unknown VISION_BACKEND %q", cfg.VisionBackend)
	}
}
