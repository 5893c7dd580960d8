package app

import (
	"context"
	"errors"

	httpserver "github.com/fairyhunter13/content-ranker/internal/adapter/httpserver"
	"github.com/fairyhunter13/content-ranker/internal/config"
)

// BuildReadinessChecks returns the /readyz probes. The OpenAI key is required for jobs;
// Anthropic only backs the consult route and is reported as optional.
func BuildReadinessChecks(cfg config.Config, accepting func() bool) []httpserver.ReadinessCheck {
	return []httpserver.ReadinessCheck{
		{Name: "openai", Check: func(context.Context) error {
			if !cfg.OpenAIConfigured() {
				return errors.New("OPENAI_API_KEY not configured")
			}
			return nil
		}},
		{Name: "anthropic", Optional: true, Check: func(context.Context) error {
			if !cfg.AnthropicConfigured() {
				return errors.New("ANTHROPIC_API_KEY not configured")
			}
			return nil
		}},
		{Name: "jobs", Check: func(context.Context) error {
			if accepting != nil && !accepting() {
				return errors.New("job tracker is shutting down")
			}
			return nil
		}},
	}
}
