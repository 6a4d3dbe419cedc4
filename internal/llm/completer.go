// Package llm is the model-backed alternate analysis path. It sends a
// bounded view of the conversation to a structured-output model and
// validates the report it returns.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoMessages is returned when there is nothing to analyse.
	ErrNoMessages = errors.New("no analyzable messages")
	// ErrInvalidReport is returned when the model output fails validation
	// even after a repair round-trip.
	ErrInvalidReport = errors.New("invalid model report")
)

// Request is one structured-output completion.
type Request struct {
	Name            string
	Description     string
	Instructions    string
	Input           string
	Schema          map[string]any
	MaxOutputTokens int
}

// Completer returns the raw JSON text a model produced for a request.
type Completer interface {
	CompleteJSON(ctx context.Context, req Request) (string, error)
}

// StatusError is an HTTP-level failure from a model provider.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("api error %d: %s: %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// extractJSON trims surrounding prose and markdown fences from model output,
// returning the outermost JSON object.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(s)
	}
	return s[start : end+1]
}
