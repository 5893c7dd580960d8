package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/content-ranker/internal/config"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/internal/usecase"
)

// ReadinessCheck is one named probe of /readyz. Optional checks are reported but never
// make the service unready.
type ReadinessCheck struct {
	Name     string
	Optional bool
	Check    func(ctx context.Context) error
}

// Server aggregates handlers dependencies.
type Server struct {
	Cfg      config.Config
	Jobs     *usecase.Tracker
	Rank     usecase.RankPipeline
	Analysis usecase.AnalysisPipeline
	Consult  usecase.ConsultService
	Checks   []ReadinessCheck
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, jobs *usecase.Tracker, rank usecase.RankPipeline, analysis usecase.AnalysisPipeline, consult usecase.ConsultService, checks ...ReadinessCheck) *Server {
	return &Server{Cfg: cfg, Jobs: jobs, Rank: rank, Analysis: analysis, Consult: consult, Checks: checks}
}

func (s *Server) maxBodyBytes() int64 {
	mb := s.Cfg.MaxUploadMB
	if mb <= 0 {
		mb = 10
	}
	return mb * 1024 * 1024
}

// RootHandler greets API clients.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to the Fast-LLM API!"})
	}
}

// SubmitRankHandler queues a content_rank job from a JSON body.
func (s *Server) SubmitRankHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
		var req submitRankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if verrs, err := validateRequest(&req, req.Texts, s.Cfg.MaxBatchSize); err != nil {
			writeError(w, r, err, verrs)
			return
		}
		s.submit(w, r, domain.JobKindContentRank, toEntries(req.Texts), s.Rank.Runner(req.NumFolds))
	}
}

// SubmitRankCSVHandler queues a content_rank job from a multipart CSV upload in field
// "file", with an optional "num_folds" form value.
func (s *Server) SubmitRankCSVHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.maxBodyBytes()
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) || strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorEnvelope{Error: apiError{
					Code: "INVALID_ARGUMENT", Message: "payload too large", Details: map[string]any{"max_mb": s.Cfg.MaxUploadMB},
				}})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file required", domain.ErrInvalidArgument), map[string]string{"field": "file"})
			return
		}
		defer func() { _ = f.Close() }()
		data, err := io.ReadAll(f)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: file read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		texts, err := parseEntriesCSV(data)
		if err != nil {
			writeError(w, r, err, map[string]string{"field": "file"})
			return
		}

		req := submitRankRequest{Texts: texts}
		if v := strings.TrimSpace(r.FormValue("num_folds")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: num_folds must be an integer", domain.ErrInvalidArgument), map[string]string{"num_folds": "int"})
				return
			}
			req.NumFolds = &n
		}
		if verrs, err := validateRequest(&req, req.Texts, s.Cfg.MaxBatchSize); err != nil {
			writeError(w, r, err, verrs)
			return
		}
		s.submit(w, r, domain.JobKindContentRank, toEntries(req.Texts), s.Rank.Runner(req.NumFolds))
	}
}

// SubmitAnalysisHandler queues an additional_analysis job.
func (s *Server) SubmitAnalysisHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
		var req submitAnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if verrs, err := validateRequest(&req, req.Texts, s.Cfg.MaxBatchSize); err != nil {
			writeError(w, r, err, verrs)
			return
		}
		s.submit(w, r, domain.JobKindAdditionalAnalysis, toEntries(req.Texts), s.Analysis.Runner(req.SimilarityThreshold))
	}
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, kind domain.JobKind, entries []domain.StudentEntry, run usecase.RunFunc) {
	id, err := s.Jobs.Submit(r.Context(), kind, entries, run)
	if err != nil {
		writeError(w, r, fmt.Errorf("submit: %w", err), nil)
		return
	}
	LoggerFrom(r).Info("job submitted", slog.String("job_id", id), slog.String("kind", string(kind)), slog.Int("entries", len(entries)))
	writeJSON(w, http.StatusOK, submitResponse{JobID: id, Status: queuedMessage})
}

// lookup loads the job named by the {job_id} URL param. It writes the not-found payload
// itself and reports false when the caller should stop.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request, kind domain.JobKind) (usecase.JobSnapshot, bool) {
	id := chi.URLParam(r, "job_id")
	snap, err := s.Jobs.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) || (err == nil && snap.Kind != kind) {
		LoggerFrom(r).Warn("job not found", slog.String("job_id", id), slog.String("kind", string(kind)))
		writeJSON(w, http.StatusOK, jobNotFound)
		return usecase.JobSnapshot{}, false
	}
	if err != nil {
		writeError(w, r, err, nil)
		return usecase.JobSnapshot{}, false
	}
	return snap, true
}

func (s *Server) createdAt(snap usecase.JobSnapshot) *string {
	if snap.StartedAt == nil {
		return nil
	}
	layout := s.Cfg.CreatedAtLayout
	if layout == "" {
		layout = time.RFC3339
	}
	v := snap.StartedAt.Local().Format(layout)
	return &v
}

func elapsedSeconds(snap usecase.JobSnapshot) *float64 {
	if snap.Elapsed == nil {
		return nil
	}
	v := snap.Elapsed.Seconds()
	return &v
}

func (s *Server) statusView(snap usecase.JobSnapshot) jobStatusView {
	return jobStatusView{
		Status:      snap.Status,
		CreatedAt:   s.createdAt(snap),
		ElapsedTime: elapsedSeconds(snap),
	}
}

// JobStatusListHandler returns job_id -> status for every job of kind.
func (s *Server) JobStatusListHandler(kind domain.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snaps, err := s.Jobs.List(r.Context(), kind)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		out := make(map[string]jobStatusView, len(snaps))
		for _, snap := range snaps {
			out[snap.ID] = s.statusView(snap)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// JobStatusHandler returns the status of one job. Finished jobs carry their entries or
// failure text under result.
func (s *Server) JobStatusHandler(kind domain.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.lookup(w, r, kind)
		if !ok {
			return
		}
		v := s.statusView(snap)
		v.JobID = snap.ID
		switch snap.Status {
		case domain.JobCompleted:
			v.Result = snap.Result
		case domain.JobFailed:
			v.Result = snap.Error
		}
		writeJSON(w, http.StatusOK, v)
	}
}

// JobResultHandler returns the result of a completed job, or its status otherwise.
func (s *Server) JobResultHandler(kind domain.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.lookup(w, r, kind)
		if !ok {
			return
		}
		if snap.Status == domain.JobCompleted {
			writeJSON(w, http.StatusOK, jobResultView{
				JobID:       snap.ID,
				Result:      snap.Result,
				CreatedAt:   s.createdAt(snap),
				ElapsedTime: elapsedSeconds(snap),
			})
			return
		}
		v := s.statusView(snap)
		v.JobID = snap.ID
		writeJSON(w, http.StatusOK, v)
	}
}

// JobResultCSVHandler downloads a completed result as CSV. Unfinished jobs get the
// status payload.
func (s *Server) JobResultCSVHandler(kind domain.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, ok := s.lookup(w, r, kind)
		if !ok {
			return
		}
		if snap.Status != domain.JobCompleted {
			v := s.statusView(snap)
			v.JobID = snap.ID
			writeJSON(w, http.StatusOK, v)
			return
		}
		var buf bytes.Buffer
		if err := writeEntriesCSV(&buf, snap.Result); err != nil {
			writeError(w, r, fmt.Errorf("%w: csv export: %v", domain.ErrInternal, err), nil)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="job_result_%s.csv"`, snap.ID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}

// ConsultHandler asks both chat providers the same prompt.
func (s *Server) ConsultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prompt := strings.TrimSpace(r.URL.Query().Get("prompt"))
		writeJSON(w, http.StatusOK, map[string]string{"response": s.Consult.Consult(r.Context(), prompt)})
	}
}

// ReadyzHandler runs the readiness checks.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name     string `json:"name"`
		OK       bool   `json:"ok"`
		Optional bool   `json:"optional,omitempty"`
		Details  string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make([]check, 0, len(s.Checks))
		ready := true
		for _, c := range s.Checks {
			res := check{Name: c.Name, OK: true, Optional: c.Optional}
			if err := c.Check(ctx); err != nil {
				res.OK = false
				res.Details = err.Error()
				if !c.Optional {
					ready = false
				}
			}
			checks = append(checks, res)
		}
		st := http.StatusOK
		if !ready {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
