package httpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/pkg/textx"
)

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// entryID accepts a JSON string, number or null.
type entryID string

func (id *entryID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = entryID(strings.TrimSpace(s))
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("id must be a string or a number: %w", err)
		}
		*id = entryID(n.String())
	}
	return nil
}

type textEntryDTO struct {
	ID     entryID `json:"id"`
	Answer string  `json:"answer" validate:"required"`
}

type submitRankRequest struct {
	Texts    []textEntryDTO `json:"texts" validate:"required,min=1,dive"`
	NumFolds *int           `json:"num_folds" validate:"omitempty,min=0,max=100"`
}

type submitAnalysisRequest struct {
	Texts               []textEntryDTO `json:"texts" validate:"required,min=1,dive"`
	SimilarityThreshold *float64       `json:"similarity_threshold" validate:"omitempty,min=0,max=1"`
}

// validateRequest runs the struct rules after answers are sanitized and checks the batch
// limit. The returned details map field names to the failed rule.
func validateRequest(req any, texts []textEntryDTO, maxBatch int) (map[string]string, error) {
	for i := range texts {
		texts[i].Answer = textx.SanitizeText(texts[i].Answer)
	}
	if err := getValidator().Struct(req); err != nil {
		verrs := map[string]string{}
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				verrs[fieldPath(fe)] = fe.Tag()
			}
		}
		return verrs, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
	}
	if maxBatch > 0 && len(texts) > maxBatch {
		return map[string]string{"texts": "max=" + strconv.Itoa(maxBatch)},
			fmt.Errorf("%w: at most %d texts per job", domain.ErrInvalidArgument, maxBatch)
	}
	return nil, nil
}

// fieldPath turns "submitRankRequest.Texts[2].Answer" into "texts[2].answer".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

// toEntries converts request rows to domain entries. A missing id becomes the 1-based
// position of the row, or the next free number when a caller already uses that value.
func toEntries(texts []textEntryDTO) []domain.StudentEntry {
	taken := make(map[string]bool, len(texts))
	for _, t := range texts {
		if t.ID != "" {
			taken[string(t.ID)] = true
		}
	}
	out := make([]domain.StudentEntry, len(texts))
	for i, t := range texts {
		id := string(t.ID)
		if id == "" {
			n := i + 1
			for taken[strconv.Itoa(n)] {
				n++
			}
			id = strconv.Itoa(n)
			taken[id] = true
		}
		out[i] = domain.StudentEntry{ID: id, Answer: t.Answer}
	}
	return out
}
