package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/internal/rubric"
)

func TestSeed_Exact(t *testing.T) {
	tests := []struct {
		name   string
		scores domain.RubricScores
		want   domain.EloRatings
	}{
		{
			name:   "minimum scores, no mistakes",
			scores: domain.RubricScores{CreativityScore: 1, DepthScore: 1, CoherenceScore: 1},
			want:   domain.EloRatings{EloCreativity: 600, EloDepth: 600, EloCoherence: 600, EloGrammar: 1600},
		},
		{
			name:   "maximum scores, ten mistakes",
			scores: domain.RubricScores{CreativityScore: 12, DepthScore: 12, CoherenceScore: 5, GrammarMistakeCount: 10},
			want:   domain.EloRatings{EloCreativity: 1700, EloDepth: 1700, EloCoherence: 1000, EloGrammar: 600},
		},
		{
			name:   "grammar rating below zero is kept",
			scores: domain.RubricScores{CreativityScore: 7, DepthScore: 3, CoherenceScore: 4, GrammarMistakeCount: 17},
			want:   domain.EloRatings{EloCreativity: 1200, EloDepth: 800, EloCoherence: 900, EloGrammar: -100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Seed(tt.scores))
		})
	}
}

func TestUpdate_ZeroSum(t *testing.T) {
	ratings := [][2]float64{{600, 600}, {800, 1200}, {1700, -100}, {1000.5, 999.25}}
	for _, r := range ratings {
		for _, v := range []rubric.Verdict{rubric.VerdictA, rubric.VerdictB, rubric.VerdictDraw} {
			a, b := Update(r[0], r[1], v, K)
			assert.InDelta(t, r[0]+r[1], a+b, 1e-9, "ratings %v verdict %s", r, v)
		}
	}
}

func TestUpdate_DrawBetweenEqualsIsNoop(t *testing.T) {
	a, b := Update(1100, 1100, rubric.VerdictDraw, K)
	assert.Equal(t, 1100.0, a)
	assert.Equal(t, 1100.0, b)
}

func TestUpdate_UnreadVerdictIsNoGame(t *testing.T) {
	for _, v := range []rubric.Verdict{rubric.VerdictNone, ""} {
		a, b := Update(800, 1200, v, K)
		assert.Equal(t, 800.0, a)
		assert.Equal(t, 1200.0, b)
	}
}

func TestUpdate_WinBetweenEqualsMovesHalfK(t *testing.T) {
	a, b := Update(1000, 1000, rubric.VerdictA, K)
	assert.InDelta(t, 1016, a, 1e-9)
	assert.InDelta(t, 984, b, 1e-9)

	a, b = Update(1000, 1000, rubric.VerdictB, K)
	assert.InDelta(t, 984, a, 1e-9)
	assert.InDelta(t, 1016, b, 1e-9)
}

func TestExpected(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(700, 700), 1e-12)
	assert.InDelta(t, 1/(1+0.1), Expected(1100, 700), 1e-12)
	assert.InDelta(t, 1.0, Expected(1100, 700)+Expected(700, 1100), 1e-12)
}

func TestRecommendedFolds(t *testing.T) {
	tests := map[int]int{0: 1, 1: 1, 2: 1, 3: 1, 4: 2, 8: 2, 16: 3, 64: 5, 500: 7}
	for n, want := range tests {
		assert.Equal(t, want, RecommendedFolds(n), "n=%d", n)
	}
}

func TestDimension_String(t *testing.T) {
	assert.Equal(t, "creativity", Creativity.String())
	assert.Equal(t, "grammar", Grammar.String())
	assert.Equal(t, "unknown", Dimension(9).String())
}
