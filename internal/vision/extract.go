package vision

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/vbonduro/winelens/internal/domain"
)

// fencePattern matches a fenced code block, optionally tagged json, and
// captures its body. Non-greedy so only the first block is taken.
var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Extract turns the service's output segments into wines. Only the last text
// segment is considered: with web search enabled the model narrates between
// tool calls and only the final text holds the finished answer.
func Extract(segments []Segment) ([]domain.Wine, error) {
	text, ok := lastText(segments)
	if !ok {
		return nil, ErrNoResponseContent
	}
	return ParseWines(text)
}

// ParseWines decodes a single text answer. Prose around a fenced block is
// discarded; an unfenced answer is parsed whole.
func ParseWines(text string) ([]domain.Wine, error) {
	payload := []byte(stripFence(strings.TrimSpace(text)))

	var raw json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableList, err)
	}

	list, err := winesField(raw)
	if err != nil {
		return nil, err
	}

	wines := make([]domain.Wine, 0)
	if err := json.Unmarshal(list, &wines); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	}
	return wines, nil
}

func lastText(segments []Segment) (string, bool) {
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i].Kind == SegmentText {
			return segments[i].Text, true
		}
	}
	return "", false
}

func stripFence(text string) string {
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// winesField locates the wine array: the "wines" member of an object, or the
// value itself when the model returned a bare array.
func winesField(raw json.RawMessage) (json.RawMessage, error) {
	switch firstByte(raw) {
	case '[':
		return raw, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
		}
		list, ok := obj["wines"]
		if !ok {
			return nil, fmt.Errorf("%w: missing \"wines\" field", ErrSchemaMismatch)
		}
		if firstByte(list) != '[' {
			return nil, fmt.Errorf("%w: \"wines\" is not a list", ErrSchemaMismatch)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("%w: top-level value is neither an object nor a list", ErrSchemaMismatch)
	}
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
