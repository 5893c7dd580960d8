package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }))
	mw.ServeHTTP(rec, r)
	if rec.Result().StatusCode != 204 {
		t.Fatalf("want 204")
	}
}

func TestHTTPMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMetricsMiddleware)
	r.Get("/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/jobs/{id}", http.MethodGet, "OK"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/abc", nil))
	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/jobs/{id}", http.MethodGet, "OK"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestJobMetricsHelpers(t *testing.T) {
	InitMetrics()
	InitMetrics()
	EnqueueJob("content_rank")
	StartProcessingJob("content_rank")
	CompleteJob("content_rank")
	StartProcessingJob("content_rank")
	FailJob("content_rank")
	if got := testutil.ToFloat64(JobsProcessing.WithLabelValues("content_rank")); got != 0 {
		t.Fatalf("processing gauge = %v, want 0", got)
	}
	ObserveEloRatings(900, 1000, 1100, -50)
}

func TestAIMetricsHelpers(t *testing.T) {
	before := testutil.ToFloat64(AITokensTotal.WithLabelValues("openai", "prompt"))
	RecordAITokens("openai", "prompt", 42)
	RecordAITokens("openai", "prompt", 0)
	if got := testutil.ToFloat64(AITokensTotal.WithLabelValues("openai", "prompt")) - before; got != 42 {
		t.Fatalf("tokens delta = %v, want 42", got)
	}

	rl := testutil.ToFloat64(AIRateLimitedTotal.WithLabelValues("openai"))
	RecordRateLimited("openai")
	if got := testutil.ToFloat64(AIRateLimitedTotal.WithLabelValues("openai")) - rl; got != 1 {
		t.Fatalf("rate limited delta = %v, want 1", got)
	}

	ObserveAIRequest("openai", "complete", 150*time.Millisecond)
}
