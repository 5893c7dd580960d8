package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/internal/rubric"
	"github.com/fairyhunter13/content-ranker/internal/usecase"
)

func TestAnalysisPipeline_Run(t *testing.T) {
	llm := &scriptedLLM{rules: defaultRules()}
	p := usecase.AnalysisPipeline{Evaluator: rubric.NewEvaluator(llm), Threshold: 0.2}

	in := entries("the cat sat on the mat", "the cat sat on a mat", "dogs bark loudly at night")
	out, err := p.Run(context.Background(), in, 0.2)
	require.NoError(t, err)
	require.Len(t, out, 3)

	for _, e := range out {
		require.NotNil(t, e.AnalysisScores)
		assert.Equal(t, "MEDIUM: Aesop", e.PlagiarismScore)
		assert.Equal(t, domain.PlagiarismMedium, e.PlagiarismLevel)
		assert.Equal(t, "Aesop", e.PlagiarismSource)
		require.NotNil(t, e.StoryScore)
		assert.Equal(t, 30, *e.StoryScore)
		assert.Equal(t, "30", e.StoryLabel)
		assert.Nil(t, e.RubricScores)
		assert.Nil(t, e.EloRatings)
	}
	assert.Equal(t, "b", out[0].BestSimilarityID)
	assert.True(t, out[0].LikelyCopied)
	assert.False(t, out[2].LikelyCopied)
	assert.Equal(t, int32(6), llm.calls.Load())
	assert.Nil(t, in[0].AnalysisScores)
}

func TestAnalysisPipeline_RunnerThreshold(t *testing.T) {
	llm := &scriptedLLM{rules: defaultRules()}
	p := usecase.AnalysisPipeline{Evaluator: rubric.NewEvaluator(llm), Limit: 1, Threshold: 0.2}
	strict := 0.99

	out, err := p.Runner(&strict)(context.Background(), entries("the cat sat on the mat", "the cat sat on a mat"))
	require.NoError(t, err)
	assert.False(t, out[0].LikelyCopied)

	out, err = p.Runner(nil)(context.Background(), entries("the cat sat on the mat", "the cat sat on a mat"))
	require.NoError(t, err)
	assert.True(t, out[0].LikelyCopied)
}

func TestAnalysisPipeline_SingleEntryHasNoSimilarity(t *testing.T) {
	p := usecase.AnalysisPipeline{Evaluator: rubric.NewEvaluator(&scriptedLLM{rules: defaultRules()}), Threshold: 0.2}
	out, err := p.Run(context.Background(), entries("alone"), 0.2)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotNil(t, out[0].AnalysisScores)
	assert.Nil(t, out[0].SimilarityMatch)
}

func TestAnalysisPipeline_StoryWithoutNumberKeepsLabel(t *testing.T) {
	llm := &scriptedLLM{rules: withRule(defaultRules(), rule{
		prefix: "Consider the following text and make an informed guess on whether this reads as a story",
		answer: "it is a story",
	})}
	p := usecase.AnalysisPipeline{Evaluator: rubric.NewEvaluator(llm), Threshold: 0.2}
	out, err := p.Run(context.Background(), entries("a b", "c d"), 0.2)
	require.NoError(t, err)
	for _, e := range out {
		require.NotNil(t, e.AnalysisScores)
		assert.Nil(t, e.StoryScore)
		assert.Equal(t, "it is a story", e.StoryLabel)
	}
}

func TestAnalysisPipeline_StrictStoryFailsBatch(t *testing.T) {
	llm := &scriptedLLM{rules: withRule(defaultRules(), rule{
		prefix: "Consider the following text and make an informed guess on whether this reads as a story",
		answer: "it is a story",
	})}
	p := usecase.AnalysisPipeline{Evaluator: rubric.NewEvaluator(llm, rubric.WithParsePolicy(rubric.FailOnMalformed)), Threshold: 0.2}
	_, err := p.Run(context.Background(), entries("a b", "c d"), 0.2)
	require.ErrorIs(t, err, domain.ErrMalformedResponse)
	assert.Contains(t, err.Error(), "op=usecase.AnalysisRun")
}
