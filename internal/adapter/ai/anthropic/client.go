// Package anthropic adapts the Anthropic Messages API to domain.ChatProvider.
package anthropic

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/content-ranker/internal/adapter/observability"
	"github.com/fairyhunter13/content-ranker/internal/config"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	obsctx "github.com/fairyhunter13/content-ranker/internal/observability"
)

const (
	provider         = "anthropic"
	defaultMaxTokens = 1024
)

// Client answers consult requests. Calls are single-shot; there is no retry.
type Client struct {
	api   *anthropic.Client
	model string
	key   string
}

func New(cfg config.Config) *Client {
	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{
			Timeout:   cfg.AIRequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if cfg.AnthropicBaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.AnthropicBaseURL))
	}
	return &Client{
		api:   anthropic.NewClient(cfg.AnthropicAPIKey, opts...),
		model: cfg.AnthropicModel,
		key:   cfg.AnthropicAPIKey,
	}
}

// Chat sends req as a single user message and returns the first text block.
func (c *Client) Chat(ctx domain.Context, req domain.ChatRequest) (string, error) {
	if strings.TrimSpace(c.key) == "" {
		return "", fmt.Errorf("op=anthropic.Chat: %w: ANTHROPIC_API_KEY missing", domain.ErrInvalidArgument)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	prompt := req.Prompt

	start := time.Now()
	resp, err := c.api.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		System:    req.System,
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	observability.ObserveAIRequest(provider, "chat", time.Since(start))
	if err != nil {
		obsctx.LoggerFromContext(ctx).Warn("anthropic call failed", slog.String("provider", provider), slog.String("model", model), slog.Any("error", err))
		return "", fmt.Errorf("op=anthropic.Chat: %w: %v", domain.ErrUpstream, err)
	}
	observability.RecordAITokens(provider, "prompt", resp.Usage.InputTokens)
	observability.RecordAITokens(provider, "completion", resp.Usage.OutputTokens)

	text, ok := textOf(resp)
	if !ok {
		return "", fmt.Errorf("op=anthropic.Chat: %w: no text block", domain.ErrMalformedResponse)
	}
	return strings.TrimSpace(text), nil
}

func textOf(resp anthropic.MessagesResponse) (string, bool) {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, true
		}
	}
	return "", false
}
