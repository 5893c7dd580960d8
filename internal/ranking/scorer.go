package ranking

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/content-ranker/internal/domain"
	obsctx "github.com/fairyhunter13/content-ranker/internal/observability"
)

// AbsoluteEvaluator scores a single text. Implemented by *rubric.Evaluator.
type AbsoluteEvaluator interface {
	Creativity(ctx domain.Context, text string) (int, error)
	Depth(ctx domain.Context, text string) (int, error)
	Coherence(ctx domain.Context, text string) (int, error)
	GrammarMistakes(ctx domain.Context, text string) ([]domain.GrammarMistake, error)
}

// Scorer runs the initial scoring pass.
type Scorer struct {
	ev    AbsoluteEvaluator
	limit int
}

// NewScorer returns a scorer. limit caps concurrent calls; 0 means unbounded.
func NewScorer(ev AbsoluteEvaluator, limit int) *Scorer {
	return &Scorer{ev: ev, limit: limit}
}

// Score asks the four absolute rubrics for every entry concurrently and seeds the Elo
// ratings. The first failure cancels the rest and fails the whole batch. The input is
// not modified.
func (s *Scorer) Score(ctx domain.Context, entries []domain.StudentEntry) ([]domain.StudentEntry, error) {
	out := domain.CloneEntries(entries)
	scores := make([]domain.RubricScores, len(out))

	g, gctx := errgroup.WithContext(ctx)
	if s.limit > 0 {
		g.SetLimit(s.limit)
	}
	for i := range out {
		text := out[i].Answer
		rs := &scores[i]
		g.Go(func() (err error) {
			rs.CreativityScore, err = s.ev.Creativity(gctx, text)
			return err
		})
		g.Go(func() (err error) {
			rs.DepthScore, err = s.ev.Depth(gctx, text)
			return err
		})
		g.Go(func() (err error) {
			rs.CoherenceScore, err = s.ev.Coherence(gctx, text)
			return err
		})
		g.Go(func() (err error) {
			rs.GrammarMistakes, err = s.ev.GrammarMistakes(gctx, text)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("op=ranking.Score: %w", err)
	}

	for i := range out {
		rs := scores[i]
		rs.GrammarMistakeCount = len(rs.GrammarMistakes)
		elo := Seed(rs)
		out[i].RubricScores = &rs
		out[i].EloRatings = &elo
	}
	obsctx.LoggerFromContext(ctx).Debug("initial scoring done", slog.Int("entries", len(out)))
	return out, nil
}
