package ranking

import (
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/content-ranker/internal/domain"
	obsctx "github.com/fairyhunter13/content-ranker/internal/observability"
	"github.com/fairyhunter13/content-ranker/internal/rubric"
)

// Comparator judges two texts per dimension. Implemented by *rubric.Evaluator.
type Comparator interface {
	CompareCreativity(ctx domain.Context, a, b string) (rubric.Verdict, error)
	CompareDepth(ctx domain.Context, a, b string) (rubric.Verdict, error)
	CompareCoherence(ctx domain.Context, a, b string) (rubric.Verdict, error)
	CompareGrammar(ctx domain.Context, a string, mistakesA []domain.GrammarMistake, b string, mistakesB []domain.GrammarMistake) (rubric.Verdict, error)
}

// Tournament runs fold rounds of nearest-opponent Elo games.
type Tournament struct {
	cmp   Comparator
	limit int
	k     float64
}

// NewTournament returns a tournament with K=32. limit caps concurrent calls; 0 means unbounded.
func NewTournament(cmp Comparator, limit int) *Tournament {
	return &Tournament{cmp: cmp, limit: limit, k: K}
}

// pairing is the opponent chosen for the entry at index self in sorted order.
type pairing struct {
	self, opp int
	verdicts  [len(Dimensions)]rubric.Verdict
}

// RoundHook is called after every finished round with the 1-based round number.
type RoundHook func(round int, entries []domain.StudentEntry)

// Run plays folds rounds over scored entries and returns them in the order of the last
// round's sort. Every entry must carry rubric scores and Elo ratings. The input is not
// modified.
func (t *Tournament) Run(ctx domain.Context, entries []domain.StudentEntry, folds int, hooks ...RoundHook) ([]domain.StudentEntry, error) {
	out := domain.CloneEntries(entries)
	for i := range out {
		if out[i].EloRatings == nil || out[i].RubricScores == nil {
			return nil, fmt.Errorf("op=ranking.Run: %w: entry %q is not scored", domain.ErrInvalidArgument, out[i].ID)
		}
	}
	lg := obsctx.LoggerFromContext(ctx)
	for round := 1; round <= folds; round++ {
		if err := t.round(ctx, out); err != nil {
			return nil, fmt.Errorf("op=ranking.Run: round %d: %w", round, err)
		}
		lg.Debug("tournament round done", slog.Int("round", round), slog.Int("folds", folds))
		for _, h := range hooks {
			h(round, out)
		}
	}
	return out, nil
}

func (t *Tournament) round(ctx domain.Context, entries []domain.StudentEntry) error {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].EloRatings.Mean() < entries[j].EloRatings.Mean()
	})

	// Opponents are fixed for the whole round before any rating moves.
	pairs := make([]*pairing, 0, len(entries))
	for i := range entries {
		if j, ok := SelectOpponent(entries, i); ok {
			pairs = append(pairs, &pairing{self: i, opp: j})
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if t.limit > 0 {
		g.SetLimit(t.limit)
	}
	for _, p := range pairs {
		a, b := &entries[p.self], &entries[p.opp]
		g.Go(func() (err error) {
			p.verdicts[Creativity], err = t.cmp.CompareCreativity(gctx, a.Answer, b.Answer)
			return err
		})
		g.Go(func() (err error) {
			p.verdicts[Depth], err = t.cmp.CompareDepth(gctx, a.Answer, b.Answer)
			return err
		})
		g.Go(func() (err error) {
			p.verdicts[Coherence], err = t.cmp.CompareCoherence(gctx, a.Answer, b.Answer)
			return err
		})
		g.Go(func() (err error) {
			p.verdicts[Grammar], err = t.cmp.CompareGrammar(gctx, a.Answer, a.GrammarMistakes, b.Answer, b.GrammarMistakes)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Applied in sorted order; a mutual pair therefore plays twice, once from each side.
	for _, p := range pairs {
		a, b := entries[p.self].EloRatings, entries[p.opp].EloRatings
		for _, d := range Dimensions {
			ra, rb := d.rating(a), d.rating(b)
			*ra, *rb = Update(*ra, *rb, p.verdicts[d], t.k)
		}
	}
	return nil
}

// SelectOpponent returns the index of the entry with a different id whose ratings are
// closest to entries[i] by summed absolute difference. Ties go to the lowest index.
func SelectOpponent(entries []domain.StudentEntry, i int) (int, bool) {
	best, bestDist := -1, 0.0
	for j := range entries {
		if j == i || entries[j].ID == entries[i].ID {
			continue
		}
		d := distance(entries[i].EloRatings, entries[j].EloRatings)
		if best == -1 || d < bestDist {
			best, bestDist = j, d
		}
	}
	return best, best != -1
}
