package claude

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/vbonduro/winelens/internal/vision"
)

// Content block types the Messages API emits around tool use.
const (
	blockText                = "text"
	blockToolUse             = "tool_use"
	blockServerToolUse       = "server_tool_use"
	blockToolResult          = "tool_result"
	blockWebSearchToolResult = "web_search_tool_result"
)

type ClaudeAnalyzer struct {
	client anthropic.Client
	model  string
	logger *slog.Logger
}

// NewClaudeAnalyzer returns an analyzer backed by the Anthropic Messages API.
// opts are applied after the defaults, e.g. option.WithBaseURL in tests.
// The SDK's automatic retries are disabled: one analysis is one call.
func NewClaudeAnalyzer(apiKey, model string, logger *slog.Logger, opts ...option.RequestOption) *ClaudeAnalyzer {
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &ClaudeAnalyzer{
		client: anthropic.NewClient(clientOpts...),
		model:  model,
		logger: logger,
	}
}

// buildMessageParams maps a vision.Request onto the SDK request type: one
// user turn holding the image followed by the instruction text.
func (a *ClaudeAnalyzer) buildMessageParams(req vision.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: int64(req.MaxTokens),
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(string(req.Image.MediaType), req.Image.Data),
				anthropic.NewTextBlock(req.Prompt),
			),
		},
	}
	if req.HasTool(vision.ToolWebSearch) {
		// Name and Type marshal as "web_search" and "web_search_20250305".
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{},
		})
	}
	return params
}

func (a *ClaudeAnalyzer) Analyze(ctx context.Context, req vision.Request) ([]vision.Segment, error) {
	resp, err := a.client.Messages.New(ctx, a.buildMessageParams(req))
	if err != nil {
		return nil, classifyError(fmt.Errorf("failed to call claude: %w", err))
	}

	a.logger.Debug("claude response received",
		"model", a.model,
		"stop_reason", string(resp.StopReason),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"blocks", len(resp.Content),
	)
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		a.logger.Warn("claude response truncated at max_tokens", "max_tokens", req.MaxTokens)
	}

	return toSegments(resp.Content), nil
}

// toSegments converts response content blocks into segments, preserving order.
// Block types we do not recognise (thinking, etc.) are dropped.
func toSegments(content []anthropic.ContentBlockUnion) []vision.Segment {
	segments := make([]vision.Segment, 0, len(content))
	for _, blk := range content {
		switch blk.Type {
		case blockText:
			segments = append(segments, vision.TextSegment(blk.Text))
		case blockServerToolUse:
			segments = append(segments, vision.ToolCallSegment(blk.Name))
		case blockToolUse:
			segments = append(segments, vision.ToolCallSegment(""))
		case blockToolResult, blockWebSearchToolResult:
			segments = append(segments, vision.ToolResultSegment())
		}
	}
	return segments
}

// classifyError prefers the HTTP status carried by the SDK error over
// message sniffing.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return vision.AuthError(err)
		case 0:
			// no HTTP response; fall through to text matching
		default:
			return fmt.Errorf("%w: %w", vision.ErrUpstream, err)
		}
	}

	return vision.UpstreamError(err)
}
