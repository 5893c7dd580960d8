package usecase

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/content-ranker/internal/adapter/observability"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	obsctx "github.com/fairyhunter13/content-ranker/internal/observability"
	"github.com/fairyhunter13/content-ranker/internal/ranking"
	"github.com/fairyhunter13/content-ranker/internal/similarity"
)

// RankPipeline runs the content_rank job: initial scoring, the Elo tournament and the
// lexical similarity pass.
type RankPipeline struct {
	Scorer     *ranking.Scorer
	Tournament *ranking.Tournament
	Threshold  float64
}

// NewRankPipeline wires the scoring pass and the tournament around one evaluator.
// limit caps concurrent LLM calls per stage; 0 means unbounded.
func NewRankPipeline(ev interface {
	ranking.AbsoluteEvaluator
	ranking.Comparator
}, limit int, threshold float64) RankPipeline {
	return RankPipeline{
		Scorer:     ranking.NewScorer(ev, limit),
		Tournament: ranking.NewTournament(ev, limit),
		Threshold:  threshold,
	}
}

// Runner returns the RunFunc for one submission. A nil folds uses the recommended
// number of rounds for the batch size.
func (p RankPipeline) Runner(folds *int) RunFunc {
	return func(ctx domain.Context, entries []domain.StudentEntry) ([]domain.StudentEntry, error) {
		return p.Run(ctx, entries, folds)
	}
}

// Run executes the three stages in order.
func (p RankPipeline) Run(ctx domain.Context, entries []domain.StudentEntry, folds *int) ([]domain.StudentEntry, error) {
	lg := obsctx.LoggerFromContext(ctx)
	n := ranking.RecommendedFolds(len(entries))
	if folds != nil {
		n = *folds
	}

	sctx, end := observability.StartStage(ctx, "rank.score", attribute.Int("entries", len(entries)))
	scored, err := p.Scorer.Score(sctx, entries)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.RankRun: %w", err)
	}
	lg.Info("initial scoring done", slog.Int("entries", len(scored)))

	tctx, end := observability.StartStage(ctx, "rank.tournament", attribute.Int("folds", n))
	ranked, err := p.Tournament.Run(tctx, scored, n)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.RankRun: %w", err)
	}
	for _, e := range ranked {
		observability.ObserveEloRatings(e.EloCreativity, e.EloDepth, e.EloCoherence, e.EloGrammar)
	}
	lg.Info("tournament done", slog.Int("folds", n))

	_, end = observability.StartStage(ctx, "rank.similarity")
	out := similarity.CrossCheck(ranked, p.Threshold)
	end(nil)
	return out, nil
}
