// Package real implements the evaluation AI client backed by an OpenAI-compatible API.
package real

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/content-ranker/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/content-ranker/internal/adapter/observability"
	"github.com/fairyhunter13/content-ranker/internal/config"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	obsctx "github.com/fairyhunter13/content-ranker/internal/observability"
)

const (
	provider = "openai"

	// EvaluatorSystemPrompt is the system message of every rubric call.
	EvaluatorSystemPrompt = "You are an evaluator."

	snippetBytes = 512
)

// Client implements domain.LLMClient and domain.ChatProvider against an OpenAI-compatible
// chat completions endpoint.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	retry   config.AIRetryConfig
	counter *tokencount.Counter
}

// New constructs a client whose transport is traced with otelhttp.
func New(cfg config.Config) *Client {
	return &Client{
		cfg: cfg,
		hc: &http.Client{
			Timeout:   cfg.AIRequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retry:   cfg.GetAIRetryConfig(),
		counter: tokencount.DefaultCounter,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete sends one evaluation prompt with the evaluator system message and returns the
// trimmed answer. Rate-limited calls are retried; everything else fails immediately.
func (c *Client) Complete(ctx domain.Context, prompt string) (string, error) {
	out, err := c.do(ctx, "complete", domain.ChatRequest{
		Model:     c.cfg.OpenAIEvalModel,
		System:    EvaluatorSystemPrompt,
		Prompt:    prompt,
		MaxTokens: c.cfg.AIMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("op=real.Complete: %w", err)
	}
	return out, nil
}

// Chat sends a free-form request. An empty model falls back to the consult model.
func (c *Client) Chat(ctx domain.Context, req domain.ChatRequest) (string, error) {
	if req.Model == "" {
		req.Model = c.cfg.OpenAIConsultModel
	}
	out, err := c.do(ctx, "chat", req)
	if err != nil {
		return "", fmt.Errorf("op=real.Chat: %w", err)
	}
	return out, nil
}

// scheduleBackOff waits cfg.Wait(n) after the n-th failed attempt and stops once
// MaxAttempts calls were made.
type scheduleBackOff struct {
	cfg config.AIRetryConfig
	n   int
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	b.n++
	if b.n >= max(b.cfg.MaxAttempts, 1) {
		return backoff.Stop
	}
	return b.cfg.Wait(b.n)
}

func (b *scheduleBackOff) Reset() { b.n = 0 }

// sleep blocks for d or until ctx is done.
func sleep(ctx domain.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) do(ctx domain.Context, operation string, req domain.ChatRequest) (string, error) {
	lg := obsctx.LoggerFromContext(ctx)
	if strings.TrimSpace(c.cfg.OpenAIAPIKey) == "" {
		lg.Error("OpenAI API key missing", slog.String("provider", provider))
		return "", fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	body, err := json.Marshal(chatCompletionRequest{Model: req.Model, Messages: messages, MaxTokens: req.MaxTokens})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", domain.ErrInternal, err)
	}
	endpoint := strings.TrimRight(c.cfg.OpenAIBaseURL, "/") + "/chat/completions"

	var out chatCompletionResponse
	attempt := 0
	op := func() error {
		attempt++
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: build request: %v", domain.ErrInternal, err))
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.ObserveAIRequest(provider, operation, time.Since(start))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", domain.ErrUpstream, err))
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: read body: %v", domain.ErrUpstream, err))
		}

		if isRateLimited(resp.StatusCode, raw) {
			observability.RecordRateLimited(provider)
			lg.Warn("ai provider rate limited",
				slog.String("provider", provider),
				slog.String("op", operation),
				slog.Int("attempt", attempt),
				slog.Int("status", resp.StatusCode),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("%w: status %d", domain.ErrRateLimited, resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lg.Error("ai provider non-2xx",
				slog.String("provider", provider),
				slog.String("op", operation),
				slog.Int("status", resp.StatusCode),
				slog.String("model", req.Model),
				slog.String("body", snippet(raw)))
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", domain.ErrUpstream, resp.StatusCode, errorMessage(raw)))
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			lg.Error("ai provider decode error", slog.String("provider", provider), slog.String("op", operation), slog.Any("error", err))
			return backoff.Permanent(fmt.Errorf("%w: decode: %v", domain.ErrMalformedResponse, err))
		}
		return nil
	}

	notify := func(err error, wait time.Duration) {
		lg.Info("retrying ai provider call", slog.String("provider", provider), slog.Int("attempt", attempt), slog.Duration("wait", wait), slog.Any("error", err))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(&scheduleBackOff{cfg: c.retry}, ctx), notify); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			// The last attempt is followed by its wait too, so the caller never retries early.
			if serr := sleep(ctx, c.retry.Wait(attempt)); serr != nil {
				return "", serr
			}
			lg.Error("ai provider rate limit retries exhausted", slog.String("provider", provider), slog.Int("attempts", attempt))
			return "", fmt.Errorf("%w after %d attempts: %w", domain.ErrMaxRetriesExceeded, attempt, err)
		}
		return "", err
	}

	if len(out.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", domain.ErrMalformedResponse)
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	c.recordUsage(req, content, out)
	return content, nil
}

func (c *Client) recordUsage(req domain.ChatRequest, content string, out chatCompletionResponse) {
	if out.Usage != nil {
		observability.RecordAITokens(provider, "prompt", out.Usage.PromptTokens)
		observability.RecordAITokens(provider, "completion", out.Usage.CompletionTokens)
		return
	}
	usage := c.counter.CalculateUsage(req.System, req.Prompt, content, req.Model, provider)
	observability.RecordAITokens(provider, "prompt", usage.PromptTokens)
	observability.RecordAITokens(provider, "completion", usage.CompletionTokens)
}

// isRateLimited classifies a response as rate limited on HTTP 429 or when the error
// message mentions a rate limit.
func isRateLimited(status int, body []byte) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	if status >= 200 && status < 300 {
		return false
	}
	return strings.Contains(strings.ToLower(errorMessage(body)), "rate limit")
}

func errorMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error.Message != "" {
		return er.Error.Message
	}
	return snippet(body)
}

func snippet(b []byte) string {
	if len(b) > snippetBytes {
		b = b[:snippetBytes]
	}
	return string(b)
}
