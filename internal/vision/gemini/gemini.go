package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vbonduro/winelens/internal/vision"
)

// GeminiAnalyzer calls Google's Gemini API. Web lookup maps onto the Google
// Search grounding tool.
type GeminiAnalyzer struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// errMissingKey is reported on every call when no API key was configured.
var errMissingKey = errors.New("gemini API key is not set")

// NewGeminiAnalyzer builds the client. With no API key the analyzer is still
// returned, and each Analyze call fails with vision.ErrUpstreamAuth.
func NewGeminiAnalyzer(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return &GeminiAnalyzer{model: model, logger: logger}, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: model, logger: logger}, nil
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, req vision.Request) ([]vision.Segment, error) {
	if g.client == nil {
		return nil, vision.AuthError(errMissingKey)
	}
	contents, config, err := buildContents(req)
	if err != nil {
		return nil, err
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to generate content: %w", err))
	}

	if result.UsageMetadata != nil {
		g.logger.Debug("gemini response received",
			"model", g.model,
			"input_tokens", result.UsageMetadata.PromptTokenCount,
			"output_tokens", result.UsageMetadata.CandidatesTokenCount,
		)
	}
	if len(result.Candidates) > 0 && result.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		g.logger.Warn("gemini response truncated at max output tokens", "max_tokens", req.MaxTokens)
	}

	return toSegments(result), nil
}

func buildContents(req vision.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	imageData, err := base64.StdEncoding.DecodeString(req.Image.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to decode image: %w", vision.ErrUpstream, err)
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{Data: imageData, MIMEType: string(req.Image.MediaType)}},
		genai.NewPartFromText(req.Prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		MaxOutputTokens:   int32(req.MaxTokens),
	}
	if req.HasTool(vision.ToolWebSearch) {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return contents, config, nil
}

// toSegments reads the first candidate only; we never request more than one.
// Gemini may split one answer over several text parts, so consecutive text
// parts are joined into a single segment. Thought parts are model reasoning,
// not answer text, and are dropped.
func toSegments(result *genai.GenerateContentResponse) []vision.Segment {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return nil
	}
	parts := result.Candidates[0].Content.Parts
	segments := make([]vision.Segment, 0, len(parts))
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			segments = append(segments, vision.TextSegment(text.String()))
			text.Reset()
		}
	}
	for _, p := range parts {
		switch {
		case p == nil || p.Thought:
		case p.FunctionCall != nil:
			flush()
			segments = append(segments, vision.ToolCallSegment(p.FunctionCall.Name))
		case p.ExecutableCode != nil:
			flush()
			segments = append(segments, vision.ToolCallSegment("code_execution"))
		case p.FunctionResponse != nil, p.CodeExecutionResult != nil:
			flush()
			segments = append(segments, vision.ToolResultSegment())
		case p.Text != "":
			text.WriteString(p.Text)
		}
	}
	flush()
	return segments
}

// classifyError treats 401/403 as credential failures. Gemini reports a bad
// key as 400 INVALID_ARGUMENT, so everything else still goes through text
// matching.
func classifyError(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}

	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return vision.AuthError(err)
	}
	return vision.UpstreamError(err)
}
