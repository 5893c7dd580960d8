package similarity

import (
	"github.com/fairyhunter13/content-ranker/internal/domain"
)

// DefaultThreshold is the score at and above which a pair is flagged as likely copied.
const DefaultThreshold = 0.2

// CrossCheck returns a copy of entries with a SimilarityMatch attached to each one.
// With fewer than two entries nothing is attached.
func CrossCheck(entries []domain.StudentEntry, threshold float64) []domain.StudentEntry {
	out := domain.CloneEntries(entries)
	docs := make([]string, len(out))
	for i := range out {
		docs[i] = out[i].Answer
	}
	for i, m := range BestMatches(docs) {
		out[i].SimilarityMatch = &domain.SimilarityMatch{
			BestSimilarityID:    out[m.Index].ID,
			BestSimilarityScore: m.Score,
			LikelyCopied:        m.Score >= threshold,
		}
	}
	return out
}
