package vision

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrNoResponseContent means the service returned no text segment at all.
	ErrNoResponseContent = errors.New("no text response from reasoning service")
	// ErrUnreadableList means the final text was not valid JSON. Usually the
	// photo was unclear or was not a wine list.
	ErrUnreadableList = errors.New("could not read wine list from response")
	// ErrSchemaMismatch means the JSON parsed but lacked the expected wines list.
	ErrSchemaMismatch = errors.New("response does not match wine list schema")
	// ErrUpstreamAuth means the service rejected our credentials.
	ErrUpstreamAuth = errors.New("reasoning service authentication failed")
	// ErrUpstream covers every other failed call: network, quota, timeout.
	ErrUpstream = errors.New("reasoning service call failed")
)

// authPattern matches the credential failures SDKs surface only as text.
// 401 must stand alone so ports and token counts do not trigger it.
var authPattern = regexp.MustCompile(`(?i)authentication|api[_ -]?key|unauthorized|\b401\b`)

// UpstreamError wraps a failed service call in ErrUpstreamAuth or ErrUpstream.
// Backends call it after checking their structured error types; here only
// the message text is available.
func UpstreamError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstreamAuth) || errors.Is(err, ErrUpstream) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	if authPattern.MatchString(err.Error()) {
		return fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

// AuthError wraps err in ErrUpstreamAuth. Backends use it when the SDK
// reports a structured authentication failure.
func AuthError(err error) error {
	return fmt.Errorf("%w: %w", ErrUpstreamAuth, err)
}
