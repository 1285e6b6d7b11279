// Package oracle provides the remote text-completion backends used by the
// insight engine. A client only submits a prompt and returns the raw text;
// parsing and fallback live in the service layer.
package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonnyWalker81/cyclesense/backend/internal/config"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderNone      = "none"

	// DefaultMaxTokens bounds a single completion
	DefaultMaxTokens = 2000
)

var (
	// ErrNotConfigured is returned by New when no provider is selected
	ErrNotConfigured = errors.New("oracle not configured")
	// ErrEmptyResponse is returned when the backend answers without any text
	ErrEmptyResponse = errors.New("oracle returned no text")
)

// Client is a remote text-completion oracle
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New builds the client selected by cfg.Provider
func New(cfg config.OracleConfig) (Client, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	case "", ProviderNone:
		return nil, ErrNotConfigured
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}
