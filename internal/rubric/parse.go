package rubric

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fairyhunter13/content-ranker/internal/adapter/ai"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/pkg/textx"
)

// Verdict is the outcome of a pairwise comparison.
type Verdict string

const (
	VerdictA    Verdict = "A"
	VerdictB    Verdict = "B"
	VerdictDraw Verdict = "DRAW"
	// VerdictNone marks a comparison whose answer could not be read; no game is played.
	VerdictNone Verdict = "NONE"
)

// ExtractNumber returns the first whitespace-delimited token made only of ASCII digits.
func ExtractNumber(text string) (int, error) {
	for _, tok := range strings.Fields(text) {
		if !isDigits(tok) {
			continue
		}
		n, err := strconv.Atoi(tok)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", domain.ErrMalformedResponse, tok, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w in %q", domain.ErrNoNumericTokenFound, clip(text))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ParseVerdict accepts A, B or DRAW, tolerating case, quotes and trailing punctuation.
// When the whole answer is not a verdict, the first token that is one wins.
func ParseVerdict(raw string) (Verdict, error) {
	if v, ok := verdictToken(raw); ok {
		return v, nil
	}
	for _, tok := range strings.Fields(raw) {
		if v, ok := verdictToken(tok); ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unrecognized verdict %q", domain.ErrMalformedResponse, clip(raw))
}

func verdictToken(s string) (Verdict, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.Trim(s, "\"'`*.,:;!()[]")
	switch Verdict(s) {
	case VerdictA, VerdictB, VerdictDraw:
		return Verdict(s), true
	}
	return "", false
}

// Plagiarism is the parsed answer of the plagiarism rubric.
type Plagiarism struct {
	Raw    string
	Level  string
	Source string
}

// ParsePlagiarism splits "LEVEL[: source]". Unrecognized answers keep the raw text with
// level UNKNOWN.
func ParsePlagiarism(raw string) Plagiarism {
	p := Plagiarism{Raw: strings.TrimSpace(raw), Level: domain.PlagiarismUnknown}
	head, source, _ := strings.Cut(p.Raw, ":")
	level := strings.ToUpper(strings.Trim(strings.TrimSpace(head), "\"'`*."))
	switch level {
	case domain.PlagiarismLow, domain.PlagiarismMedium, domain.PlagiarismHigh:
		p.Level = level
		p.Source = strings.Trim(strings.TrimSpace(source), "\"'`*")
	}
	return p
}

// Story is the parsed answer of the story-likeness rubric.
type Story struct {
	Raw    string
	Score  int
	Scored bool
}

var digitsRe = regexp.MustCompile(`\d+`)

// ParseStoryScore reads the first number of the answer, clamps it to 0..100 and snaps it
// to the nearest multiple of 10.
func ParseStoryScore(raw string) (int, error) {
	m := digitsRe.FindString(raw)
	if m == "" {
		return 0, fmt.Errorf("%w: no story score in %q", domain.ErrMalformedResponse, clip(raw))
	}
	n, err := strconv.Atoi(m)
	if err != nil || n > 100 {
		n = 100
	}
	return (n + 5) / 10 * 10, nil
}

// GrammarParseError reports an answer that stayed invalid JSON after cleaning.
type GrammarParseError struct {
	Raw     string
	Cleaned string
	Err     error
}

func (e *GrammarParseError) Error() string {
	return fmt.Sprintf("grammar mistakes: invalid JSON after cleaning: %v", e.Err)
}

// Unwrap makes errors.Is(err, domain.ErrMalformedResponse) hold.
func (e *GrammarParseError) Unwrap() []error { return []error{domain.ErrMalformedResponse, e.Err} }

var cleaner = ai.NewResponseCleaner()

// ParseGrammarMistakes decodes the grammar rubric answer into a non-nil list.
func ParseGrammarMistakes(raw string) ([]domain.GrammarMistake, error) {
	cleaned := cleaner.CleanJSONArray(raw)
	var out []domain.GrammarMistake
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return nil, &GrammarParseError{Raw: raw, Cleaned: cleaned, Err: err}
	}
	if out == nil {
		out = []domain.GrammarMistake{}
	}
	return out, nil
}

func clip(s string) string { return textx.Clip(s, 80) }
