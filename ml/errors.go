package ml

import (
	"fmt"
	"strings"
)

// ValidationError reports a malformed feature payload: missing or unexpected
// keys, or fields that could not be interpreted at all.
type ValidationError struct {
	Reason  string
	Missing []string
	Extra   []string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, 3)
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(e.Missing) > 0 {
		parts = append(parts, "missing keys: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Extra) > 0 {
		parts = append(parts, "unexpected keys: "+strings.Join(e.Extra, ", "))
	}
	if len(parts) == 0 {
		return "invalid feature payload"
	}
	return "invalid feature payload: " + strings.Join(parts, "; ")
}

// EncodingError reports a categorical value with no training-time code.
type EncodingError struct {
	Column string
	Value  string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("no encoding for %s value %q", e.Column, e.Value)
}

// ConfigurationError reports a training/serving mismatch: degenerate scaler
// parameters or disagreeing feature-column signatures. Never caused by
// request input.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}
