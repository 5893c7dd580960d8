// Package httpserver contains HTTP handlers and middleware.
//
// It serves the content-rank and additional-analysis job routes, the consult route and
// the health endpoints. Handlers translate requests into usecase calls and map domain
// errors onto the JSON error envelope.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fairyhunter13/content-ranker/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	code := http.StatusInternalServerError
	codeStr := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		code = http.StatusBadRequest
		codeStr = "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
		codeStr = "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		code = http.StatusConflict
		codeStr = "CONFLICT"
	case errors.Is(err, domain.ErrMaxRetriesExceeded), errors.Is(err, domain.ErrRateLimited):
		code = http.StatusServiceUnavailable
		codeStr = "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, domain.ErrMalformedResponse):
		code = http.StatusBadGateway
		codeStr = "MALFORMED_RESPONSE"
	case errors.Is(err, domain.ErrUpstream):
		code = http.StatusBadGateway
		codeStr = "UPSTREAM"
	}
	if code >= 500 {
		LoggerFrom(r).Error("request failed", "error", err, "code", codeStr)
	}
	writeJSON(w, code, errorEnvelope{Error: apiError{Code: codeStr, Message: err.Error(), Details: details}})
}

// jobNotFound is returned with 200 for unknown job ids, matching the polling clients.
var jobNotFound = map[string]string{"error": "Job not found"}

type submitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

const queuedMessage = "Job has been queued"

// jobStatusView is the status payload. JobID is left empty inside the status map.
// Result holds the entries of a completed job or the failure text of a failed one, so the
// "error" key stays reserved for unknown jobs.
type jobStatusView struct {
	JobID       string           `json:"job_id,omitempty"`
	Status      domain.JobStatus `json:"status"`
	CreatedAt   *string          `json:"created_at"`
	ElapsedTime *float64         `json:"elapsed_time"`
	Result      any              `json:"result,omitempty"`
}

type jobResultView struct {
	JobID       string                `json:"job_id"`
	Result      []domain.StudentEntry `json:"result"`
	CreatedAt   *string               `json:"created_at"`
	ElapsedTime *float64              `json:"elapsed_time"`
}
