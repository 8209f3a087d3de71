// Package llm wraps generative text providers behind a single Complete call.
// Every failure a caller can observe is a *ProviderError so that strategies
// can fall back without inspecting provider-specific error types.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// Provider produces a completion for a prompt.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, prompt string) (string, error)

func (f ProviderFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

var (
	// ErrEmptyResponse is returned when the provider answers with only whitespace.
	ErrEmptyResponse = errors.New("empty response")
	// ErrNotConfigured is returned when a provider is used without an API key.
	ErrNotConfigured = errors.New("provider not configured")
)

// ProviderError wraps any failure of a generative call: auth, network,
// quota, timeout, open breaker or empty output.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// wrap converts err into a *ProviderError unless it already is one.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}
