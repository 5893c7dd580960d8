package rubric

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fairyhunter13/content-ranker/internal/domain"
	obsctx "github.com/fairyhunter13/content-ranker/internal/observability"
)

// Score scales of the absolute rubrics.
const (
	MinScore          = 1
	MaxScore12        = 12
	MaxCoherenceScore = 5
)

// ParsePolicy decides what the evaluator does with an answer it cannot parse. It covers
// the grammar list, pairwise verdicts and story scores. Absolute scores always fail.
type ParsePolicy int

const (
	// DegradeOnMalformed logs a warning and falls back: an empty mistake list, no game for
	// the verdict, no story score.
	DegradeOnMalformed ParsePolicy = iota
	// FailOnMalformed returns the parse error, failing the job.
	FailOnMalformed
)

// Evaluator runs the rubric prompts through an LLM client.
type Evaluator struct {
	llm     domain.LLMClient
	catalog *Catalog
	policy  ParsePolicy
}

type Option func(*Evaluator)

func WithCatalog(c *Catalog) Option { return func(e *Evaluator) { e.catalog = c } }

func WithParsePolicy(p ParsePolicy) Option {
	return func(e *Evaluator) { e.policy = p }
}

// NewEvaluator builds an evaluator over the embedded catalog unless WithCatalog is given.
func NewEvaluator(llm domain.LLMClient, opts ...Option) *Evaluator {
	e := &Evaluator{llm: llm, policy: DegradeOnMalformed}
	for _, o := range opts {
		o(e)
	}
	if e.catalog == nil {
		e.catalog = DefaultCatalog()
	}
	return e
}

func (e *Evaluator) ask(ctx domain.Context, tpl string, data PromptData) (string, error) {
	prompt, err := e.catalog.Render(tpl, data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	return e.llm.Complete(ctx, prompt)
}

func (e *Evaluator) score(ctx domain.Context, tpl, text string, hi int) (int, error) {
	raw, err := e.ask(ctx, tpl, PromptData{Text: text})
	if err != nil {
		return 0, fmt.Errorf("op=rubric.%s: %w", tpl, err)
	}
	n, err := ExtractNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("op=rubric.%s: %w", tpl, err)
	}
	if n < MinScore || n > hi {
		obsctx.LoggerFromContext(ctx).Warn("rubric score out of scale, clamping",
			slog.String("rubric", tpl), slog.Int("score", n), slog.Int("max", hi))
		n = min(max(n, MinScore), hi)
	}
	return n, nil
}

// Creativity returns 1..12.
func (e *Evaluator) Creativity(ctx domain.Context, text string) (int, error) {
	return e.score(ctx, TplCreativity, text, MaxScore12)
}

// Depth returns 1..12.
func (e *Evaluator) Depth(ctx domain.Context, text string) (int, error) {
	return e.score(ctx, TplDepth, text, MaxScore12)
}

// Coherence returns 1..5.
func (e *Evaluator) Coherence(ctx domain.Context, text string) (int, error) {
	return e.score(ctx, TplCoherence, text, MaxCoherenceScore)
}

// GrammarMistakes lists the grammar mistakes of text. Parse failures follow the policy.
func (e *Evaluator) GrammarMistakes(ctx domain.Context, text string) ([]domain.GrammarMistake, error) {
	raw, err := e.ask(ctx, TplGrammarMistakes, PromptData{Text: text})
	if err != nil {
		return nil, fmt.Errorf("op=rubric.GrammarMistakes: %w", err)
	}
	mistakes, err := ParseGrammarMistakes(raw)
	if err == nil {
		return mistakes, nil
	}
	if e.policy == FailOnMalformed {
		return nil, fmt.Errorf("op=rubric.GrammarMistakes: %w", err)
	}
	obsctx.LoggerFromContext(ctx).Warn("grammar mistakes unparsable, using empty list",
		slog.Any("error", err), slog.String("response", clip(raw)))
	return []domain.GrammarMistake{}, nil
}

func (e *Evaluator) compare(ctx domain.Context, tpl string, data PromptData) (Verdict, error) {
	raw, err := e.ask(ctx, tpl, data)
	if err != nil {
		return "", fmt.Errorf("op=rubric.%s: %w", tpl, err)
	}
	v, err := ParseVerdict(raw)
	if err == nil {
		return v, nil
	}
	if e.policy == FailOnMalformed {
		return "", fmt.Errorf("op=rubric.%s: %w", tpl, err)
	}
	obsctx.LoggerFromContext(ctx).Warn("verdict unparsable, skipping game",
		slog.String("rubric", tpl), slog.String("response", clip(raw)))
	return VerdictNone, nil
}

func (e *Evaluator) CompareCreativity(ctx domain.Context, a, b string) (Verdict, error) {
	return e.compare(ctx, TplCompareCreativity, PromptData{TextA: a, TextB: b})
}

func (e *Evaluator) CompareDepth(ctx domain.Context, a, b string) (Verdict, error) {
	return e.compare(ctx, TplCompareDepth, PromptData{TextA: a, TextB: b})
}

func (e *Evaluator) CompareCoherence(ctx domain.Context, a, b string) (Verdict, error) {
	return e.compare(ctx, TplCompareCoherence, PromptData{TextA: a, TextB: b})
}

// CompareGrammar also shows the model both mistake lists, JSON-encoded.
func (e *Evaluator) CompareGrammar(ctx domain.Context, a string, mistakesA []domain.GrammarMistake, b string, mistakesB []domain.GrammarMistake) (Verdict, error) {
	return e.compare(ctx, TplCompareGrammar, PromptData{
		TextA:     a,
		TextB:     b,
		MistakesA: mistakesJSON(mistakesA),
		MistakesB: mistakesJSON(mistakesB),
	})
}

func mistakesJSON(m []domain.GrammarMistake) string {
	if m == nil {
		m = []domain.GrammarMistake{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Plagiarism asks for a LOW/MEDIUM/HIGH label. It never fails on the answer's shape.
func (e *Evaluator) Plagiarism(ctx domain.Context, text string) (Plagiarism, error) {
	raw, err := e.ask(ctx, TplPlagiarism, PromptData{Text: text})
	if err != nil {
		return Plagiarism{}, fmt.Errorf("op=rubric.Plagiarism: %w", err)
	}
	return ParsePlagiarism(raw), nil
}

// StoryLikeness returns 0..100 in steps of 10. An answer without a number keeps its raw
// text with Scored false, unless the policy is FailOnMalformed.
func (e *Evaluator) StoryLikeness(ctx domain.Context, text string) (Story, error) {
	raw, err := e.ask(ctx, TplStory, PromptData{Text: text})
	if err != nil {
		return Story{}, fmt.Errorf("op=rubric.StoryLikeness: %w", err)
	}
	st := Story{Raw: strings.TrimSpace(raw)}
	n, err := ParseStoryScore(raw)
	if err == nil {
		st.Score, st.Scored = n, true
		return st, nil
	}
	if e.policy == FailOnMalformed {
		return Story{}, fmt.Errorf("op=rubric.StoryLikeness: %w", err)
	}
	obsctx.LoggerFromContext(ctx).Warn("story score unparsable, keeping raw answer",
		slog.String("response", clip(raw)))
	return st, nil
}
