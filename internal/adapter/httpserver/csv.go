package httpserver

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/content-ranker/internal/domain"
)

// answerColumns are the accepted header names of the text column, matched case-insensitively.
var answerColumns = []string{"student text", "answer", "text"}

func allowedCSVMIME(m string) bool {
	m = strings.ToLower(m)
	return strings.HasPrefix(m, "text/csv") || strings.HasPrefix(m, "text/plain")
}

// parseEntriesCSV reads an uploaded CSV with a header row. The id column is optional.
func parseEntriesCSV(data []byte) ([]textEntryDTO, error) {
	if mt := mimetype.Detect(data); !allowedCSVMIME(mt.String()) {
		return nil, fmt.Errorf("%w: unsupported media type %s", domain.ErrInvalidArgument, mt.String())
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	rd := csv.NewReader(bytes.NewReader(data))
	rd.FieldsPerRecord = -1
	header, err := rd.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: csv header: %v", domain.ErrInvalidArgument, err)
	}
	idCol, ansCol := -1, -1
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "id" && idCol < 0 {
			idCol = i
		}
		for _, c := range answerColumns {
			if h == c && ansCol < 0 {
				ansCol = i
			}
		}
	}
	if ansCol < 0 {
		return nil, fmt.Errorf("%w: csv needs a %q or %q column", domain.ErrInvalidArgument, "Student Text", "answer")
	}

	var out []textEntryDTO
	for line := 2; ; line++ {
		rec, err := rd.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: csv line %d: %v", domain.ErrInvalidArgument, line, err)
		}
		var row textEntryDTO
		if ansCol < len(rec) {
			row.Answer = rec[ansCol]
		}
		if idCol >= 0 && idCol < len(rec) {
			row.ID = entryID(strings.TrimSpace(rec[idCol]))
		}
		if strings.TrimSpace(row.Answer) == "" && row.ID == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// writeEntriesCSV exports a result. Column groups appear when at least one entry has them.
func writeEntriesCSV(w io.Writer, entries []domain.StudentEntry) error {
	var hasRubric, hasElo, hasAnalysis, hasSim bool
	for _, e := range entries {
		hasRubric = hasRubric || e.RubricScores != nil
		hasElo = hasElo || e.EloRatings != nil
		hasAnalysis = hasAnalysis || e.AnalysisScores != nil
		hasSim = hasSim || e.SimilarityMatch != nil
	}

	header := []string{"id", "answer"}
	if hasRubric {
		header = append(header, "creativity_score", "depth_score", "coherence_score", "grammar_mistake_count")
	}
	if hasElo {
		header = append(header, "elo_creativity", "elo_depth", "elo_coherence", "elo_grammar")
	}
	if hasAnalysis {
		header = append(header, "plagiarism_score", "plagiarism_level", "plagiarism_source", "story_score")
	}
	if hasSim {
		header = append(header, "best_similarity_id", "best_similarity_score", "likely_copied")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		row := []string{e.ID, e.Answer}
		if hasRubric {
			if rs := e.RubricScores; rs != nil {
				row = append(row, strconv.Itoa(rs.CreativityScore), strconv.Itoa(rs.DepthScore), strconv.Itoa(rs.CoherenceScore), strconv.Itoa(rs.GrammarMistakeCount))
			} else {
				row = append(row, "", "", "", "")
			}
		}
		if hasElo {
			if er := e.EloRatings; er != nil {
				row = append(row, ftoa(er.EloCreativity), ftoa(er.EloDepth), ftoa(er.EloCoherence), ftoa(er.EloGrammar))
			} else {
				row = append(row, "", "", "", "")
			}
		}
		if hasAnalysis {
			if as := e.AnalysisScores; as != nil {
				row = append(row, as.PlagiarismScore, as.PlagiarismLevel, as.PlagiarismSource, storyCell(as))
			} else {
				row = append(row, "", "", "", "")
			}
		}
		if hasSim {
			if sm := e.SimilarityMatch; sm != nil {
				row = append(row, sm.BestSimilarityID, ftoa(sm.BestSimilarityScore), strconv.FormatBool(sm.LikelyCopied))
			} else {
				row = append(row, "", "", "")
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// storyCell is the story score, or the raw answer when it carried no number.
func storyCell(as *domain.AnalysisScores) string {
	if as.StoryScore == nil {
		return as.StoryLabel
	}
	return strconv.Itoa(*as.StoryScore)
}
