package usecase

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/content-ranker/internal/adapter/observability"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/internal/rubric"
	"github.com/fairyhunter13/content-ranker/internal/similarity"
)

// AnalysisEvaluator is the part of the rubric evaluator used by the analysis job.
type AnalysisEvaluator interface {
	Plagiarism(ctx domain.Context, text string) (rubric.Plagiarism, error)
	StoryLikeness(ctx domain.Context, text string) (rubric.Story, error)
}

// AnalysisPipeline runs the additional_analysis job: a plagiarism and story-likeness
// fan-out followed by the lexical similarity pass.
type AnalysisPipeline struct {
	Evaluator AnalysisEvaluator
	Limit     int
	Threshold float64
}

// Runner returns the RunFunc for one submission. A nil threshold uses the pipeline default.
func (p AnalysisPipeline) Runner(threshold *float64) RunFunc {
	th := p.Threshold
	if threshold != nil {
		th = *threshold
	}
	return func(ctx domain.Context, entries []domain.StudentEntry) ([]domain.StudentEntry, error) {
		return p.Run(ctx, entries, th)
	}
}

// Run asks both rubrics for every entry concurrently. Any failure fails the batch.
func (p AnalysisPipeline) Run(ctx domain.Context, entries []domain.StudentEntry, threshold float64) ([]domain.StudentEntry, error) {
	out := domain.CloneEntries(entries)
	scores := make([]domain.AnalysisScores, len(out))

	sctx, end := observability.StartStage(ctx, "analysis.rubrics", attribute.Int("entries", len(out)))
	g, gctx := errgroup.WithContext(sctx)
	if p.Limit > 0 {
		g.SetLimit(p.Limit)
	}
	for i := range out {
		text := out[i].Answer
		as := &scores[i]
		g.Go(func() error {
			pl, err := p.Evaluator.Plagiarism(gctx, text)
			if err != nil {
				return err
			}
			as.PlagiarismScore, as.PlagiarismLevel, as.PlagiarismSource = pl.Raw, pl.Level, pl.Source
			return nil
		})
		g.Go(func() error {
			st, err := p.Evaluator.StoryLikeness(gctx, text)
			if err != nil {
				return err
			}
			as.StoryLabel = st.Raw
			if st.Scored {
				n := st.Score
				as.StoryScore = &n
			}
			return nil
		})
	}
	err := g.Wait()
	end(err)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.AnalysisRun: %w", err)
	}
	for i := range out {
		out[i].AnalysisScores = &scores[i]
	}

	_, end = observability.StartStage(ctx, "analysis.similarity")
	out = similarity.CrossCheck(out, threshold)
	end(nil)
	return out, nil
}
