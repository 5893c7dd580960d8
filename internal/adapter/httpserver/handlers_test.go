package httpserver_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/fairyhunter13/content-ranker/internal/adapter/httpserver"
	"github.com/fairyhunter13/content-ranker/internal/adapter/repo/memory"
	"github.com/fairyhunter13/content-ranker/internal/config"
	"github.com/fairyhunter13/content-ranker/internal/domain"
	"github.com/fairyhunter13/content-ranker/internal/rubric"
	"github.com/fairyhunter13/content-ranker/internal/usecase"
)

// fakeLLM answers every rubric prompt by its opening words.
type fakeLLM struct{}

func (fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "Compare"):
		return "A", nil
	case strings.HasPrefix(prompt, "Evaluate the creativity"):
		return "8", nil
	case strings.HasPrefix(prompt, "Evaluate the depth"):
		return "6", nil
	case strings.HasPrefix(prompt, "Evaluate the coherence"):
		return "5", nil
	case strings.HasPrefix(prompt, "List only strict"):
		return "```json\n[]\n```", nil
	case strings.Contains(prompt, "plagiarized"):
		return "LOW", nil
	case strings.Contains(prompt, "story-like"):
		return "70", nil
	}
	return "", errors.New("unexpected prompt")
}

type chatStub string

func (c chatStub) Chat(context.Context, domain.ChatRequest) (string, error) { return string(c), nil }

func testConfig() config.Config {
	return config.Config{
		AppEnv:          "test",
		MaxBatchSize:    10,
		MaxUploadMB:     1,
		CreatedAtLayout: "2006년 1월 2일 15:04",
	}
}

// downLLM fails every call like an unreachable provider.
type downLLM struct{}

func (downLLM) Complete(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: status 500: boom", domain.ErrUpstream)
}

func newServer(t *testing.T, checks ...httpserver.ReadinessCheck) (*httpserver.Server, http.Handler) {
	t.Helper()
	return newServerWith(t, fakeLLM{}, checks...)
}

func newServerWith(t *testing.T, llm domain.LLMClient, checks ...httpserver.ReadinessCheck) (*httpserver.Server, http.Handler) {
	t.Helper()
	tr := usecase.NewTracker(memory.NewJobRepo())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tr.Shutdown(ctx)
	})
	ev := rubric.NewEvaluator(llm)
	srv := httpserver.NewServer(testConfig(), tr,
		usecase.NewRankPipeline(ev, 0, 0.2),
		usecase.AnalysisPipeline{Evaluator: ev, Threshold: 0.2},
		usecase.NewConsultService(chatStub("gpt says hi"), chatStub("claude says hi")),
		checks...,
	)

	r := chi.NewRouter()
	r.Use(httpserver.RequestID())
	r.Get("/", srv.RootHandler())
	r.Get("/random/consult", srv.ConsultHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Route("/content-rank", func(cr chi.Router) {
		cr.Post("/submit-job", srv.SubmitRankHandler())
		cr.Post("/submit-csv", srv.SubmitRankCSVHandler())
		cr.Get("/job-status", srv.JobStatusListHandler(domain.JobKindContentRank))
		cr.Get("/job-status/{job_id}", srv.JobStatusHandler(domain.JobKindContentRank))
		cr.Get("/job-result/{job_id}", srv.JobResultHandler(domain.JobKindContentRank))
		cr.Get("/job-result/{job_id}/csv", srv.JobResultCSVHandler(domain.JobKindContentRank))
	})
	r.Route("/additional-analysis", func(ar chi.Router) {
		ar.Post("/submit-job", srv.SubmitAnalysisHandler())
		ar.Get("/job-status/{job_id}", srv.JobStatusHandler(domain.JobKindAdditionalAnalysis))
		ar.Get("/job-result/{job_id}", srv.JobResultHandler(domain.JobKindAdditionalAnalysis))
	})
	return srv, r
}

func do(t *testing.T, h http.Handler, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func submit(t *testing.T, h http.Handler, path, body string) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, path, []byte(body), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	m := decode(t, rec)
	assert.Equal(t, "Job has been queued", m["status"])
	id, _ := m["job_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func waitCompleted(t *testing.T, h http.Handler, path string) map[string]any {
	t.Helper()
	var out map[string]any
	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, path, nil, "")
		var m map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
			return false
		}
		out = m
		_, done := m["result"]
		return done
	}, 5*time.Second, 10*time.Millisecond)
	return out
}

func TestRoot(t *testing.T) {
	_, h := newServer(t)
	rec := do(t, h, http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to the Fast-LLM API!", decode(t, rec)["message"])
}

func TestSubmitRank_ThenPollResult(t *testing.T) {
	_, h := newServer(t)
	id := submit(t, h, "/content-rank/submit-job",
		`{"texts":[{"id":"s1","answer":"I went to the beach."},{"id":2,"answer":"The beach was sunny and warm."},{"answer":"Dogs bark at night."}],"num_folds":1}`)

	res := waitCompleted(t, h, "/content-rank/job-result/"+id)
	assert.Equal(t, id, res["job_id"])
	assert.NotNil(t, res["created_at"])
	assert.Contains(t, res["created_at"], "년")
	assert.NotNil(t, res["elapsed_time"])

	result := res["result"].([]any)
	require.Len(t, result, 3)
	ids := map[string]bool{}
	for _, raw := range result {
		e := raw.(map[string]any)
		ids[e["id"].(string)] = true
		for _, k := range []string{
			"answer", "creativity_score", "depth_score", "coherence_score", "grammar_mistakes", "grammar_mistake_count",
			"elo_creativity", "elo_depth", "elo_coherence", "elo_grammar",
			"best_similarity_id", "best_similarity_score", "likely_copied",
		} {
			assert.Contains(t, e, k)
		}
		assert.NotContains(t, e, "story_score")
		assert.NotEqual(t, e["id"], e["best_similarity_id"])
		assert.Equal(t, float64(8), e["creativity_score"])
	}
	assert.Equal(t, map[string]bool{"s1": true, "2": true, "3": true}, ids)

	status := decode(t, do(t, h, http.MethodGet, "/content-rank/job-status/"+id, nil, ""))
	assert.Equal(t, "completed", status["status"])
	assert.Equal(t, id, status["job_id"])

	list := decode(t, do(t, h, http.MethodGet, "/content-rank/job-status", nil, ""))
	require.Contains(t, list, id)
	entry := list[id].(map[string]any)
	assert.Equal(t, "completed", entry["status"])
	assert.NotContains(t, entry, "job_id")
}

func TestSubmitAnalysis_ThenPollResult(t *testing.T) {
	_, h := newServer(t)
	id := submit(t, h, "/additional-analysis/submit-job",
		`{"texts":[{"id":"a","answer":"the cat sat on the mat"},{"id":"b","answer":"the cat sat on a mat"}],"similarity_threshold":0.5}`)

	res := waitCompleted(t, h, "/additional-analysis/job-result/"+id)
	result := res["result"].([]any)
	require.Len(t, result, 2)
	first := result[0].(map[string]any)
	assert.Equal(t, "LOW", first["plagiarism_level"])
	assert.Equal(t, float64(70), first["story_score"])
	assert.Equal(t, "b", first["best_similarity_id"])
	assert.Equal(t, true, first["likely_copied"])
	assert.NotContains(t, first, "elo_creativity")
}

func TestUnknownJob_ReturnsPayload(t *testing.T) {
	_, h := newServer(t)
	for _, path := range []string{
		"/content-rank/job-status/does-not-exist",
		"/content-rank/job-result/does-not-exist",
		"/content-rank/job-result/does-not-exist/csv",
		"/additional-analysis/job-result/does-not-exist",
	} {
		rec := do(t, h, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"error":"Job not found"}`, rec.Body.String(), path)
	}
}

func TestFailedJob_ReportsFailureUnderResult(t *testing.T) {
	_, h := newServerWith(t, downLLM{})
	id := submit(t, h, "/content-rank/submit-job", `{"texts":[{"answer":"one"},{"answer":"two"}]}`)

	var status map[string]any
	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, "/content-rank/job-status/"+id, nil, "")
		var m map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
			return false
		}
		status = m
		return m["status"] == "failed"
	}, 5*time.Second, 10*time.Millisecond)

	assert.NotContains(t, status, "error")
	assert.Equal(t, id, status["job_id"])
	failure, ok := status["result"].(string)
	require.True(t, ok, "result should hold the failure text: %v", status)
	assert.Contains(t, failure, "upstream error")

	res := decode(t, do(t, h, http.MethodGet, "/content-rank/job-result/"+id, nil, ""))
	assert.NotContains(t, res, "error")
	assert.Equal(t, "failed", res["status"])
	assert.Equal(t, id, res["job_id"])

	csvRec := do(t, h, http.MethodGet, "/content-rank/job-result/"+id+"/csv", nil, "")
	assert.NotContains(t, decode(t, csvRec), "error")
}

func TestJobOfOtherKindIsNotFound(t *testing.T) {
	_, h := newServer(t)
	id := submit(t, h, "/additional-analysis/submit-job", `{"texts":[{"answer":"alone"}]}`)
	rec := do(t, h, http.MethodGet, "/content-rank/job-status/"+id, nil, "")
	assert.JSONEq(t, `{"error":"Job not found"}`, rec.Body.String())
}

func TestSubmit_InvalidRequests(t *testing.T) {
	_, h := newServer(t)
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "malformed json", path: "/content-rank/submit-job", body: `{"texts":`},
		{name: "no texts", path: "/content-rank/submit-job", body: `{"texts":[]}`},
		{name: "missing answer", path: "/content-rank/submit-job", body: `{"texts":[{"id":"1"}]}`},
		{name: "folds out of range", path: "/content-rank/submit-job", body: `{"texts":[{"answer":"a"}],"num_folds":500}`},
		{name: "threshold out of range", path: "/additional-analysis/submit-job", body: `{"texts":[{"answer":"a"}],"similarity_threshold":2}`},
		{name: "batch too large", path: "/content-rank/submit-job", body: `{"texts":[` + strings.Repeat(`{"answer":"a"},`, 10) + `{"answer":"a"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, []byte(tt.body), "application/json")
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			errObj := decode(t, rec)["error"].(map[string]any)
			assert.Equal(t, "INVALID_ARGUMENT", errObj["code"])
		})
	}
}

func csvUpload(t *testing.T, content string, folds string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "answers.csv")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if folds != "" {
		require.NoError(t, mw.WriteField("num_folds", folds))
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestSubmitCSV_ThenDownloadCSV(t *testing.T) {
	_, h := newServer(t)
	body, ct := csvUpload(t, "id,Student Text\n10,I like apples a lot.\n11,\"Apples are red, and sweet.\"\n", "0")
	rec := do(t, h, http.MethodPost, "/content-rank/submit-csv", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id := decode(t, rec)["job_id"].(string)

	waitCompleted(t, h, "/content-rank/job-result/"+id)

	rec = do(t, h, http.MethodGet, "/content-rank/job-result/"+id+"/csv", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), id)

	records, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])
	assert.Contains(t, records[0], "elo_grammar")
	// zero folds: seeds only, no pairwise calls
	assert.ElementsMatch(t, []string{"10", "11"}, []string{records[1][0], records[2][0]})
}

func TestSubmitCSV_Invalid(t *testing.T) {
	_, h := newServer(t)

	rec := do(t, h, http.MethodPost, "/content-rank/submit-csv", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct := csvUpload(t, "id,name\n1,bob\n", "")
	rec = do(t, h, http.MethodPost, "/content-rank/submit-csv", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = csvUpload(t, "answer\nhello\n", "many")
	rec = do(t, h, http.MethodPost, "/content-rank/submit-csv", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = csvUpload(t, "answer\n"+strings.Repeat("x", 2<<20)+"\n", "")
	rec = do(t, h, http.MethodPost, "/content-rank/submit-csv", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestConsult(t *testing.T) {
	_, h := newServer(t)
	rec := do(t, h, http.MethodGet, "/random/consult?prompt=hello", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ChatGPT: gpt says hi\n\nClaude: claude says hi", decode(t, rec)["response"])
}

func TestReadyz(t *testing.T) {
	ok := func(context.Context) error { return nil }
	bad := func(context.Context) error { return errors.New("not configured") }

	_, h := newServer(t,
		httpserver.ReadinessCheck{Name: "openai", Check: ok},
		httpserver.ReadinessCheck{Name: "anthropic", Optional: true, Check: bad},
	)
	rec := do(t, h, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")

	_, h = newServer(t, httpserver.ReadinessCheck{Name: "openai", Check: bad})
	rec = do(t, h, http.MethodGet, "/readyz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	_, h := newServer(t)
	rec := do(t, h, http.MethodGet, "/", nil, "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "fixed-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-Id"))
}
