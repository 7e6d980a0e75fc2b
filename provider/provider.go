package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldwise/farmhand/config"
	openai_provider "github.com/fieldwise/farmhand/provider/openai"
)

// Client represents different completion providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// Completer is the interface every completion backend must satisfy
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// NewCompleter creates a completion client based on the provided configuration
func NewCompleter(cfg config.LLMConfig) (Completer, error) {
	switch Client(cfg.Provider) {
	case OpenAI:
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, errors.New("llm.api_key not set")
		}
		return openai_provider.NewClient(
			cfg.APIKey,
			cfg.BaseURL,
			cfg.Model,
			cfg.Temperature,
			cfg.MaxTokens,
			cfg.Timeout,
		), nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	default:
		return nil, fmt.Errorf("unsupported completion provider %q", cfg.Provider)
	}
}
