package usecase_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/content-ranker/internal/adapter/repo/memory"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/internal/usecase"
)

type rule struct {
	prefix string
	answer string
	err    error
}

// scriptedLLM answers by the first rule whose prefix starts the prompt.
type scriptedLLM struct {
	rules []rule
	calls atomic.Int32
}

func (s *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	s.calls.Add(1)
	for _, r := range s.rules {
		if strings.HasPrefix(prompt, r.prefix) {
			return r.answer, r.err
		}
	}
	return "", errors.New("unexpected prompt: " + prompt[:min(len(prompt), 40)])
}

func defaultRules() []rule {
	return []rule{
		{prefix: "Evaluate the creativity", answer: "7"},
		{prefix: "Evaluate the depth", answer: "5"},
		{prefix: "Evaluate the coherence", answer: "4"},
		{prefix: "List only strict grammatical mistakes", answer: `[{"start_idx":0,"end_idx":3,"original_text":"teh","corrected_text":"the","mistake_category":"spelling"}]`},
		{prefix: "Compare", answer: "DRAW"},
		{prefix: "Consider the following text and make an informed guess on whether this reads as a plagiarized", answer: "MEDIUM: Aesop"},
		{prefix: "Consider the following text and make an informed guess on whether this reads as a story", answer: "30"},
	}
}

func withRule(rules []rule, r rule) []rule {
	return append([]rule{r}, rules...)
}

func entries(answers ...string) []domain.StudentEntry {
	out := make([]domain.StudentEntry, len(answers))
	for i, a := range answers {
		out[i] = domain.StudentEntry{ID: string(rune('a' + i)), Answer: a}
	}
	return out
}

func waitTerminal(t *testing.T, tr *usecase.Tracker, id string) usecase.JobSnapshot {
	t.Helper()
	var snap usecase.JobSnapshot
	require.Eventually(t, func() bool {
		s, err := tr.Get(context.Background(), id)
		if err != nil {
			return false
		}
		snap = s
		return s.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

func newTracker(t *testing.T) *usecase.Tracker {
	t.Helper()
	tr := usecase.NewTracker(memory.NewJobRepo())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tr.Shutdown(ctx)
	})
	return tr
}

// blockingRun waits for release before returning its input unchanged.
type blockingRun struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newBlockingRun() *blockingRun {
	return &blockingRun{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingRun) Run(ctx context.Context, in []domain.StudentEntry) ([]domain.StudentEntry, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
		return in, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
