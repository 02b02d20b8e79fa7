// Package api serves the engine over HTTP. Errors are RFC 7807 problem
// documents; typed engine rejections map to 4xx statuses by kind.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ecoproof/ecoproof/pkg/contracts"
)

const problemBase = "https://ecoproof.dev/problems/"

const internalDetail = "An unexpected error occurred. Please try again later."

// ProblemDetail is an RFC 7807 problem document.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Kind     string `json:"kind,omitempty"` // engine error kind of a rejected operation
	Instance string `json:"instance,omitempty"`
	TraceID  string `json:"trace_id,omitempty"` // echoes X-Request-ID
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// problem builds a document for a plain HTTP status.
func problem(status int, title, detail string) *ProblemDetail {
	return &ProblemDetail{
		Type:   problemBase + strconv.Itoa(status),
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// at attaches the request path and the request id already set on w.
func (p *ProblemDetail) at(w http.ResponseWriter, r *http.Request) *ProblemDetail {
	p.Instance = r.URL.Path
	p.TraceID = w.Header().Get("X-Request-ID")
	return p
}

func (p *ProblemDetail) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes a problem document without request context.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	problem(status, title, detail).write(w)
}

// WriteErrorR is WriteError with instance and trace_id filled from r.
func WriteErrorR(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	problem(status, title, detail).at(w, r).write(w)
}

// StatusForKind maps an engine error kind to its HTTP status.
func StatusForKind(kind contracts.Kind) int {
	switch kind {
	case contracts.KindInvalidInput:
		return http.StatusBadRequest
	case contracts.KindNotAuthorized:
		return http.StatusForbidden
	case contracts.KindNotFound:
		return http.StatusNotFound
	case contracts.KindInvalidState:
		return http.StatusConflict
	case contracts.KindInsufficientBond, contracts.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// WriteEngineError writes err as a problem document. Typed rejections keep
// their detail; anything else is logged and answered with a bare 500.
func WriteEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := contracts.KindOf(err)
	if kind == "" {
		slog.ErrorContext(r.Context(), "internal server error", "error", err, "path", r.URL.Path)
		WriteErrorR(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), internalDetail)
		return
	}
	status := StatusForKind(kind)
	p := problem(status, http.StatusText(status), err.Error()).at(w, r)
	p.Type = problemBase + string(kind)
	p.Kind = string(kind)
	p.write(w)
}

func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized answers 401 with a Bearer challenge.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="ecoproof"`)
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

func WriteMethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, "Method Not Allowed", "method not supported on this route")
}

func WriteConflict(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusConflict, "Conflict", detail)
}

// WriteTooManyRequests answers 429 with Retry-After in seconds.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
}

// WriteInternal logs err and answers 500 without exposing it.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", internalDetail)
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
