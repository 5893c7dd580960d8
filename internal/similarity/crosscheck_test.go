package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/content-ranker/internal/domain"
)

func TestCrossCheck(t *testing.T) {
	in := []domain.StudentEntry{
		{ID: "s1", Answer: "the cat sat on the mat"},
		{ID: "s2", Answer: "the cat sat on a mat"},
		{ID: "s3", Answer: "dogs bark loudly at night"},
	}
	out := CrossCheck(in, DefaultThreshold)
	require.Len(t, out, 3)

	assert.Equal(t, "s2", out[0].BestSimilarityID)
	assert.True(t, out[0].LikelyCopied)
	assert.Equal(t, "s1", out[1].BestSimilarityID)
	assert.True(t, out[1].LikelyCopied)
	assert.Equal(t, "s1", out[2].BestSimilarityID)
	assert.False(t, out[2].LikelyCopied)

	for _, e := range out {
		assert.NotEqual(t, e.ID, e.BestSimilarityID)
	}
	assert.Nil(t, in[0].SimilarityMatch, "input must not be mutated")
}

func TestCrossCheck_ThresholdIsInclusive(t *testing.T) {
	in := []domain.StudentEntry{
		{ID: "a", Answer: "same words"},
		{ID: "b", Answer: "same words"},
	}
	out := CrossCheck(in, 1.0-1e-9)
	assert.True(t, out[0].LikelyCopied)

	out = CrossCheck(in, 1.5)
	assert.False(t, out[0].LikelyCopied)
}

func TestCrossCheck_SingleEntryHasNoMatch(t *testing.T) {
	out := CrossCheck([]domain.StudentEntry{{ID: "solo", Answer: "text"}}, DefaultThreshold)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].SimilarityMatch)
}
