// Package ranking seeds per-dimension Elo ratings from absolute rubric scores and refines
// them with rounds of nearest-opponent pairwise comparisons.
package ranking

import (
	"math"

	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/internal/rubric"
)

// K is the Elo update factor.
const K = 32.0

const (
	seedBase = 600.0
	seedStep = 100.0
	// grammarSeedPivot is the mistake count that maps to seedBase.
	grammarSeedPivot = 10
)

// Dimension is one of the four rated aspects.
type Dimension int

const (
	Creativity Dimension = iota
	Depth
	Coherence
	Grammar
)

// Dimensions lists every dimension in a fixed order.
var Dimensions = [...]Dimension{Creativity, Depth, Coherence, Grammar}

func (d Dimension) String() string {
	switch d {
	case Creativity:
		return "creativity"
	case Depth:
		return "depth"
	case Coherence:
		return "coherence"
	case Grammar:
		return "grammar"
	}
	return "unknown"
}

func (d Dimension) rating(r *domain.EloRatings) *float64 {
	switch d {
	case Creativity:
		return &r.EloCreativity
	case Depth:
		return &r.EloDepth
	case Coherence:
		return &r.EloCoherence
	default:
		return &r.EloGrammar
	}
}

// Expected is the expected score of a player rated ra against one rated rb.
func Expected(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, (rb-ra)/400))
}

// Update applies one game between a and b. Both expectations use the ratings before
// the game, so the total rating is preserved. Any verdict other than A, B or DRAW is no
// game and leaves both ratings as they were.
func Update(ra, rb float64, v rubric.Verdict, k float64) (float64, float64) {
	var sa float64
	switch v {
	case rubric.VerdictA:
		sa = 1
	case rubric.VerdictB:
		sa = 0
	case rubric.VerdictDraw:
		sa = 0.5
	default:
		return ra, rb
	}
	ea, eb := Expected(ra, rb), Expected(rb, ra)
	return ra + k*(sa-ea), rb + k*((1-sa)-eb)
}

// SeedScore maps an absolute rubric score (1-based) to its starting rating.
func SeedScore(score int) float64 {
	return seedBase + float64(score-1)*seedStep
}

// SeedGrammar maps a mistake count to its starting rating. More than ten mistakes
// yields a rating below 600, possibly negative.
func SeedGrammar(mistakes int) float64 {
	return seedBase + float64(grammarSeedPivot-mistakes)*seedStep
}

// Seed builds the four starting ratings from rubric scores.
func Seed(s domain.RubricScores) domain.EloRatings {
	return domain.EloRatings{
		EloCreativity: SeedScore(s.CreativityScore),
		EloDepth:      SeedScore(s.DepthScore),
		EloCoherence:  SeedScore(s.CoherenceScore),
		EloGrammar:    SeedGrammar(s.GrammarMistakeCount),
	}
}

// RecommendedFolds is max(1, round(log2(n)*0.8)).
func RecommendedFolds(n int) int {
	if n < 2 {
		return 1
	}
	return max(1, int(math.Round(math.Log2(float64(n))*0.8)))
}

// distance is the sum of absolute rating differences over all dimensions.
func distance(a, b *domain.EloRatings) float64 {
	return math.Abs(a.EloCreativity-b.EloCreativity) +
		math.Abs(a.EloDepth-b.EloDepth) +
		math.Abs(a.EloCoherence-b.EloCoherence) +
		math.Abs(a.EloGrammar-b.EloGrammar)
}
