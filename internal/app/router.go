// Package app wires the HTTP router and the service's readiness probes.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/content-ranker/internal/adapter/httpserver"
	"github.com/fairyhunter13/content-ranker/internal/adapter/observability"
	"github.com/fairyhunter13/content-ranker/internal/config"
	"github.com/fairyhunter13/content-ranker/internal/domain"
)

// ParseOrigins splits a comma-separated origin list, trimming spaces. Empty input means "*".
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	out := make([]string, 0, strings.Count(s, ",")+1)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// requestTimeout bounds every handler; job work runs outside the request.
const requestTimeout = 30 * time.Second

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.RequestID())
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/", srv.RootHandler())

	r.Route("/content-rank", func(cr chi.Router) {
		cr.Group(func(wr chi.Router) {
			wr.Use(submitLimiter(cfg))
			wr.Use(httpserver.TimeoutMiddleware(requestTimeout))
			wr.Post("/submit-job", srv.SubmitRankHandler())
			wr.Post("/submit-csv", srv.SubmitRankCSVHandler())
		})
		mountJobReads(cr, srv, domain.JobKindContentRank)
		cr.Get("/job-result/{job_id}/csv", srv.JobResultCSVHandler(domain.JobKindContentRank))
	})

	r.Route("/additional-analysis", func(ar chi.Router) {
		ar.Group(func(wr chi.Router) {
			wr.Use(submitLimiter(cfg))
			wr.Use(httpserver.TimeoutMiddleware(requestTimeout))
			wr.Post("/submit-job", srv.SubmitAnalysisHandler())
		})
		mountJobReads(ar, srv, domain.JobKindAdditionalAnalysis)
	})

	// consult waits on two providers, so it keeps only the HTTP server timeouts
	r.Get("/random/consult", srv.ConsultHandler())

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", srv.ReadyzHandler())
	r.Handle("/metrics", promhttp.Handler())

	return httpserver.SecurityHeaders(r)
}

func mountJobReads(r chi.Router, srv *httpserver.Server, kind domain.JobKind) {
	r.Group(func(rr chi.Router) {
		rr.Use(httpserver.TimeoutMiddleware(requestTimeout))
		rr.Get("/job-status", srv.JobStatusListHandler(kind))
		rr.Get("/job-status/{job_id}", srv.JobStatusHandler(kind))
		rr.Get("/job-result/{job_id}", srv.JobResultHandler(kind))
	})
}

func submitLimiter(cfg config.Config) func(http.Handler) http.Handler {
	if cfg.RateLimitPerMin <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute)
}
