package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/vbonduro/winelens/internal/vision"
)

type generateRequest struct {
	Model   string   `json:"model"`
	System  string   `json:"system"`
	Prompt  string   `json:"prompt"`
	Images  []string `json:"images"`
	Format  string   `json:"format"`
	Stream  bool     `json:"stream"`
	Options options  `json:"options"`
}

type options struct {
	NumPredict int `json:"num_predict"`
}

type OllamaAnalyzer struct {
	host   string
	model  string
	client *http.Client
	logger *slog.Logger
}

func NewOllamaAnalyzer(host, model string, logger *slog.Logger) *OllamaAnalyzer {
	return &OllamaAnalyzer{
		host:   host,
		model:  model,
		client: &http.Client{},
		logger: logger,
	}
}

// Analyze calls /api/generate. Ollama has no hosted web search, so a lookup
// request is answered from the model alone.
func (a *OllamaAnalyzer) Analyze(ctx context.Context, req vision.Request) ([]vision.Segment, error) {
	if req.HasTool(vision.ToolWebSearch) {
		a.logger.Debug("ollama backend ignores web search tool", "model", a.model)
	}

	reqBody := generateRequest{
		Model:  a.model,
		System: req.System,
		Prompt: req.Prompt,
		// Ollama takes raw base64 without a data: prefix, which is what we carry.
		Images:  []string{req.Image.Data},
		Format:  "json",
		Stream:  false,
		Options: options{NumPredict: req.MaxTokens},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %w", vision.ErrUpstream, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.host+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", vision.ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, vision.UpstreamError(fmt.Errorf("failed to call ollama: %w", err))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			a.logger.Error("failed to close ollama response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, errBody)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, vision.AuthError(err)
		}
		return nil, fmt.Errorf("%w: %w", vision.ErrUpstream, err)
	}

	var respBody struct {
		Response   string `json:"response"`
		DoneReason string `json:"done_reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", vision.ErrUpstream, err)
	}

	if respBody.DoneReason == "length" {
		a.logger.Warn("ollama response truncated at num_predict", "max_tokens", req.MaxTokens)
	}
	if respBody.Response == "" {
		return nil, nil
	}
	return []vision.Segment{vision.TextSegment(respBody.Response)}, nil
}
