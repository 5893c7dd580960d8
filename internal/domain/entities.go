// Package domain holds the core types, ports and error taxonomy of the content ranker.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrRateLimited         = errors.New("rate limited")
	ErrMaxRetriesExceeded  = errors.New("max retries exceeded")
	ErrUpstream            = errors.New("upstream error")
	ErrMalformedResponse   = errors.New("malformed response")
	ErrNoNumericTokenFound = fmt.Errorf("%w: no numeric token found", ErrMalformedResponse)
	ErrInternal            = errors.New("internal error")
)

// Context is an alias to keep port signatures short.
type Context = context.Context

// GrammarMistake is one span flagged by the grammar rubric.
type GrammarMistake struct {
	StartIdx        int    `json:"start_idx"`
	EndIdx          int    `json:"end_idx"`
	OriginalText    string `json:"original_text"`
	CorrectedText   string `json:"corrected_text"`
	MistakeCategory string `json:"mistake_category"`
}

// RubricScores is attached by the initial scoring pass.
type RubricScores struct {
	CreativityScore     int              `json:"creativity_score"`
	DepthScore          int              `json:"depth_score"`
	CoherenceScore      int              `json:"coherence_score"`
	GrammarMistakes     []GrammarMistake `json:"grammar_mistakes"`
	GrammarMistakeCount int              `json:"grammar_mistake_count"`
}

// EloRatings is seeded by the initial scoring pass and updated by the tournament.
type EloRatings struct {
	EloCreativity float64 `json:"elo_creativity"`
	EloDepth      float64 `json:"elo_depth"`
	EloCoherence  float64 `json:"elo_coherence"`
	EloGrammar    float64 `json:"elo_grammar"`
}

// Mean returns the average of the four ratings.
func (r EloRatings) Mean() float64 {
	return (r.EloCreativity + r.EloDepth + r.EloCoherence + r.EloGrammar) / 4
}

// Plagiarism levels as labelled by the plagiarism rubric.
const (
	PlagiarismLow     = "LOW"
	PlagiarismMedium  = "MEDIUM"
	PlagiarismHigh    = "HIGH"
	PlagiarismUnknown = "UNKNOWN"
)

// AnalysisScores is attached by the plagiarism/story fan-out. StoryScore is nil when the
// story answer carried no number; StoryLabel keeps the answer as given.
type AnalysisScores struct {
	PlagiarismScore  string `json:"plagiarism_score"`
	PlagiarismLevel  string `json:"plagiarism_level"`
	PlagiarismSource string `json:"plagiarism_source,omitempty"`
	StoryScore       *int   `json:"story_score"`
	StoryLabel       string `json:"story_label,omitempty"`
}

// SimilarityMatch records the lexically closest other entry of the batch.
type SimilarityMatch struct {
	BestSimilarityID    string  `json:"best_similarity_id"`
	BestSimilarityScore float64 `json:"best_similarity_score"`
	LikelyCopied        bool    `json:"likely_copied"`
}

// StudentEntry is one submitted text. Each pipeline stage populates exactly one of the
// embedded groups; groups left nil are omitted from JSON.
// Invariant: ID is unique within a batch (caller responsibility).
type StudentEntry struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
	*RubricScores
	*EloRatings
	*AnalysisScores
	*SimilarityMatch
}

// Clone returns a deep copy of the entry.
func (e StudentEntry) Clone() StudentEntry {
	out := StudentEntry{ID: e.ID, Answer: e.Answer}
	if e.RubricScores != nil {
		rs := *e.RubricScores
		if e.RubricScores.GrammarMistakes != nil {
			rs.GrammarMistakes = append([]GrammarMistake(nil), e.RubricScores.GrammarMistakes...)
		}
		out.RubricScores = &rs
	}
	if e.EloRatings != nil {
		er := *e.EloRatings
		out.EloRatings = &er
	}
	if e.AnalysisScores != nil {
		as := *e.AnalysisScores
		if as.StoryScore != nil {
			n := *as.StoryScore
			as.StoryScore = &n
		}
		out.AnalysisScores = &as
	}
	if e.SimilarityMatch != nil {
		sm := *e.SimilarityMatch
		out.SimilarityMatch = &sm
	}
	return out
}

// CloneEntries deep-copies a batch.
func CloneEntries(in []StudentEntry) []StudentEntry {
	if in == nil {
		return nil
	}
	out := make([]StudentEntry, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

// JobKind distinguishes the two job route groups.
type JobKind string

const (
	JobKindContentRank        JobKind = "content_rank"
	JobKindAdditionalAnalysis JobKind = "additional_analysis"
)

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Job is the tracked state of one asynchronous batch.
// Lifecycle: queued -> running -> completed|failed. Terminal states are final.
type Job struct {
	ID        string
	Kind      JobKind
	Status    JobStatus
	CreatedAt time.Time
	StartTime *time.Time
	EndTime   *time.Time
	Result    []StudentEntry
	Error     string
}

// Elapsed returns end-start when finished, now-start while running, and false if never started.
func (j Job) Elapsed(now time.Time) (time.Duration, bool) {
	if j.StartTime == nil {
		return 0, false
	}
	if j.EndTime != nil {
		return j.EndTime.Sub(*j.StartTime), true
	}
	return now.Sub(*j.StartTime), true
}

// Clone returns a deep copy safe to hand to readers.
func (j Job) Clone() Job {
	out := j
	if j.StartTime != nil {
		t := *j.StartTime
		out.StartTime = &t
	}
	if j.EndTime != nil {
		t := *j.EndTime
		out.EndTime = &t
	}
	out.Result = CloneEntries(j.Result)
	return out
}

// Ports

// JobRepository stores job state for the tracker.
type JobRepository interface {
	Create(ctx Context, j Job) error
	MarkRunning(ctx Context, id string, at time.Time) error
	Complete(ctx Context, id string, result []StudentEntry, at time.Time) error
	Fail(ctx Context, id string, errMsg string, at time.Time) error
	Get(ctx Context, id string) (Job, error)
	List(ctx Context, kind JobKind) ([]Job, error)
}

// LLMClient sends one evaluation prompt and returns the raw model text.
type LLMClient interface {
	Complete(ctx Context, prompt string) (string, error)
}

// ChatRequest is a free-form chat call used by the consult path.
type ChatRequest struct {
	Model     string
	System    string
	Prompt    string
	MaxTokens int
}

// ChatProvider answers a free-form chat request.
type ChatProvider interface {
	Chat(ctx Context, req ChatRequest) (string, error)
}
