package usecase

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/content-ranker/internal/domain"
	obsctx "github.com/fairyhunter13/content-ranker/internal/observability"
)

const (
	// DefaultConsultPrompt is sent when the caller gives none.
	DefaultConsultPrompt = "It's okay, we'll get through this together."

	consultSystemPrompt    = "You are a helpful assistant."
	openAIConsultTokens    = 100
	anthropicConsultTokens = 1024
)

// ConsultService asks the same prompt to two providers and joins the answers.
type ConsultService struct {
	OpenAI    domain.ChatProvider
	Anthropic domain.ChatProvider
}

// NewConsultService constructs a ConsultService.
func NewConsultService(openAI, anthropic domain.ChatProvider) ConsultService {
	return ConsultService{OpenAI: openAI, Anthropic: anthropic}
}

// Consult queries both providers concurrently. A provider error is reported inline in
// that provider's slot and never fails the call.
func (s ConsultService) Consult(ctx domain.Context, prompt string) string {
	if prompt == "" {
		prompt = DefaultConsultPrompt
	}
	lg := obsctx.LoggerFromContext(ctx)

	var gpt, claude string
	var g errgroup.Group
	g.Go(func() error {
		out, err := s.ask(ctx, s.OpenAI, domain.ChatRequest{System: consultSystemPrompt, Prompt: prompt, MaxTokens: openAIConsultTokens})
		if err != nil {
			lg.Warn("openai consult failed", slog.Any("error", err))
			out = fmt.Sprintf("OpenAI API error: %v", err)
		}
		gpt = out
		return nil
	})
	g.Go(func() error {
		out, err := s.ask(ctx, s.Anthropic, domain.ChatRequest{Prompt: prompt, MaxTokens: anthropicConsultTokens})
		if err != nil {
			lg.Warn("anthropic consult failed", slog.Any("error", err))
			out = fmt.Sprintf("Anthropic API error: %v", err)
		}
		claude = out
		return nil
	})
	_ = g.Wait()
	return fmt.Sprintf("ChatGPT: %s\n\nClaude: %s", gpt, claude)
}

func (s ConsultService) ask(ctx domain.Context, p domain.ChatProvider, req domain.ChatRequest) (string, error) {
	if p == nil {
		return "", fmt.Errorf("%w: provider not configured", domain.ErrInvalidArgument)
	}
	return p.Chat(ctx, req)
}
