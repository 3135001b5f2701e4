package vision

import (
	"context"

	"github.com/vbonduro/winelens/internal/domain"
)

// SchemaVersion identifies the shape the system instruction asks for and
// Extract decodes. v1 returned tasting notes as plain strings, v2 added
// rated notes and a story, v3 added the vibe tag.
const SchemaVersion = 3

// Analyzer is implemented by every reasoning-service backend. It performs
// exactly one call and returns the service's output segments in order.
// Call failures must be wrapped in ErrUpstreamAuth or ErrUpstream.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) ([]Segment, error)
}

// Tool names a capability the service may invoke while answering.
type Tool string

const ToolWebSearch Tool = "web_search"

// Request is the backend-neutral form of one reasoning-service call.
type Request struct {
	System    string
	Prompt    string
	Image     Image
	Tools     []Tool
	MaxTokens int
}

// Image is a single base64-encoded visual input.
type Image struct {
	MediaType domain.MediaType
	Data      string
}

func (r Request) HasTool(t Tool) bool {
	for _, have := range r.Tools {
		if have == t {
			return true
		}
	}
	return false
}

type SegmentKind string

const (
	SegmentText       SegmentKind = "text"
	SegmentToolCall   SegmentKind = "tool_call"
	SegmentToolResult SegmentKind = "tool_result"
)

// Segment is one element of the service's output. Only text segments carry
// data; tool segments are recorded so callers can see the interleaving.
type Segment struct {
	Kind SegmentKind
	Text string
	// Tool is the tool name for tool_call segments, when the backend reports one.
	Tool string
}

func TextSegment(text string) Segment {
	return Segment{Kind: SegmentText, Text: text}
}

func ToolCallSegment(tool string) Segment {
	return Segment{Kind: SegmentToolCall, Tool: tool}
}

func ToolResultSegment() Segment {
	return Segment{Kind: SegmentToolResult}
}
