package api_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/api"
	"github.com/ecoproof/ecoproof/pkg/contracts"
)

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) api.ProblemDetail {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p api.ProblemDetail
	require.NoError(t, json.NewDecoder(w.Body).Decode(&p))
	assert.Equal(t, w.Code, p.Status, "body status mirrors the response code")
	return p
}

func TestWriteHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		header [2]string
		detail string
	}{
		{"bad request", func(w http.ResponseWriter) { api.WriteBadRequest(w, "quantity is zero") }, http.StatusBadRequest, [2]string{}, "quantity is zero"},
		{"unauthorized default", func(w http.ResponseWriter) { api.WriteUnauthorized(w, "") }, http.StatusUnauthorized, [2]string{"WWW-Authenticate", `Bearer realm="ecoproof"`}, "Authentication required"},
		{"not found", func(w http.ResponseWriter) { api.WriteNotFound(w, "no route") }, http.StatusNotFound, [2]string{}, "no route"},
		{"method", api.WriteMethodNotAllowed, http.StatusMethodNotAllowed, [2]string{}, ""},
		{"conflict", func(w http.ResponseWriter) { api.WriteConflict(w, "window open") }, http.StatusConflict, [2]string{}, "window open"},
		{"rate limited", func(w http.ResponseWriter) { api.WriteTooManyRequests(w, 30) }, http.StatusTooManyRequests, [2]string{"Retry-After", "30"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)

			require.Equal(t, tt.status, w.Code)
			if tt.header[0] != "" {
				assert.Equal(t, tt.header[1], w.Header().Get(tt.header[0]))
			}
			p := decodeProblem(t, w)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, p.Detail)
			}
			assert.Equal(t, fmt.Sprintf("https://ecoproof.dev/problems/%d", tt.status), p.Type)
		})
	}
}

func TestWriteInternal_HidesCause(t *testing.T) {
	w := httptest.NewRecorder()
	api.WriteInternal(w, errors.New("pq: connection refused to host=10.0.0.1"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	p := decodeProblem(t, w)
	assert.NotContains(t, p.Detail, "10.0.0.1")
}

func TestWriteErrorR_CarriesRequestContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/actions/7", nil)
	w := httptest.NewRecorder()
	w.Header().Set("X-Request-ID", "req-123")

	api.WriteErrorR(w, req, http.StatusBadRequest, "Bad Request", "bad input")

	p := decodeProblem(t, w)
	assert.Equal(t, "/v1/actions/7", p.Instance)
	assert.Equal(t, "req-123", p.TraceID)
	assert.Equal(t, "bad input", p.Detail)
}

func TestWriteEngineError_MapsKinds(t *testing.T) {
	tests := []struct {
		kind   contracts.Kind
		status int
	}{
		{contracts.KindInvalidInput, http.StatusBadRequest},
		{contracts.KindNotAuthorized, http.StatusForbidden},
		{contracts.KindNotFound, http.StatusNotFound},
		{contracts.KindInvalidState, http.StatusConflict},
		{contracts.KindInsufficientBond, http.StatusUnprocessableEntity},
		{contracts.KindInsufficientBalance, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/actions/1/finalize", nil)
			w := httptest.NewRecorder()
			api.WriteEngineError(w, req, fmt.Errorf("wrapped: %w", contracts.Errorf(tt.kind, "finalize", "detail")))

			require.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.status, api.StatusForKind(tt.kind))
			p := decodeProblem(t, w)
			assert.Equal(t, string(tt.kind), p.Kind)
			assert.Equal(t, "https://ecoproof.dev/problems/"+string(tt.kind), p.Type)
			assert.Equal(t, "/v1/actions/1/finalize", p.Instance)
		})
	}
}

func TestWriteEngineError_HidesInfrastructureErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	w := httptest.NewRecorder()
	api.WriteEngineError(w, req, errors.New("sql: database is closed"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	p := decodeProblem(t, w)
	assert.Empty(t, p.Kind)
	assert.NotContains(t, p.Detail, "database is closed")
}
