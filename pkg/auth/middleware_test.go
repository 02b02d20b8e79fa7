package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecoproof/ecoproof/pkg/auth"
)

var testSecret = []byte("test-secret-0123456789abcdef")

func sign(t *testing.T, method jwt.SigningMethod, secret []byte, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func issue(t *testing.T, v *auth.JWTValidator, account string) string {
	t.Helper()
	token, err := v.Issue(account, time.Hour)
	require.NoError(t, err)
	return token
}

func TestMiddleware_AcceptsIssuedToken(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret)

	var p *auth.Principal
	handler := auth.NewMiddleware(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var err error
		p, err = auth.GetPrincipal(r.Context())
		require.NoError(t, err)
		assert.Equal(t, "acct:alice", auth.CallerFrom(r.Context()))
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req.Header.Set("Authorization", "Bearer "+issue(t, validator, "acct:alice"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, p)
	assert.Equal(t, auth.Issuer, p.Issuer)
	assert.False(t, p.ExpiresAt.IsZero())
}

func TestMiddleware_RejectsWrites(t *testing.T) {
	hourFromNow := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := time.Now().Add(-2 * time.Hour)
	stale := auth.NewJWTValidator(testSecret).WithClock(func() time.Time { return past })

	tests := []struct {
		name      string
		validator *auth.JWTValidator
		header    string
	}{
		{"missing header", auth.NewJWTValidator(testSecret), ""},
		{"wrong scheme", auth.NewJWTValidator(testSecret), "Basic YWxpY2U6cHc="},
		{"empty bearer", auth.NewJWTValidator(testSecret), "Bearer "},
		{"expired", auth.NewJWTValidator(testSecret), "Bearer " + issue(t, stale, "acct:alice")},
		{"foreign secret", auth.NewJWTValidator(testSecret), "Bearer " + issue(t, auth.NewJWTValidator([]byte("another-secret-entirely")), "acct:alice")},
		{"HS512", auth.NewJWTValidator(testSecret), "Bearer " + sign(t, jwt.SigningMethodHS512, testSecret, jwt.RegisteredClaims{Subject: "acct:alice", ExpiresAt: hourFromNow})},
		{"no subject", auth.NewJWTValidator(testSecret), "Bearer " + sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{ExpiresAt: hourFromNow})},
		{"no expiry", auth.NewJWTValidator(testSecret), "Bearer " + sign(t, jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{Subject: "acct:alice"})},
		{"no validator", nil, "Bearer some-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := auth.NewMiddleware(tt.validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler reached")
			}))
			req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestMiddleware_PublicRequests(t *testing.T) {
	handler := auth.NewMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, auth.CallerFrom(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	}))

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/v1/actions/1", nil),
		httptest.NewRequest(http.MethodHead, "/v1/params", nil),
		httptest.NewRequest(http.MethodPost, "/health", nil),
	} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusTeapot, w.Code, "%s %s", req.Method, req.URL.Path)
	}
}

func TestJWTValidator(t *testing.T) {
	assert.Nil(t, auth.NewJWTValidator(nil))

	var unset *auth.JWTValidator
	_, err := unset.Issue("acct:alice", time.Hour)
	assert.Error(t, err)
	_, err = unset.Validate("x")
	assert.Error(t, err)

	v := auth.NewJWTValidator(testSecret)
	_, err = v.Issue("", time.Hour)
	assert.Error(t, err)

	p, err := v.Validate(issue(t, v, "acct:carol"))
	require.NoError(t, err)
	assert.Equal(t, "acct:carol", p.Account)
}

func TestActorKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/actions", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "ip:10.1.2.3", auth.ActorKey(req))

	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{Account: "acct:bob"}))
	assert.Equal(t, "acct:acct:bob", auth.ActorKey(req))
}

func TestCORSMiddleware(t *testing.T) {
	handler := auth.CORSMiddleware([]string{"https://registry.example"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/actions", nil)
	req.Header.Set("Origin", "https://registry.example")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://registry.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")

	req = httptest.NewRequest(http.MethodGet, "/v1/actions", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	open := auth.CORSMiddleware(nil)(http.NotFoundHandler())
	req = httptest.NewRequest(http.MethodGet, "/v1/actions", nil)
	req.Header.Set("Origin", "https://anyone.example")
	w = httptest.NewRecorder()
	open.ServeHTTP(w, req)
	assert.Equal(t, "https://anyone.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDMiddleware(t *testing.T) {
	var got string
	handler := auth.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/actions", nil))
	require.NotEmpty(t, got)
	assert.Equal(t, got, w.Header().Get(auth.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/v1/actions", nil)
	req.Header.Set(auth.RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "req-42", got, "well-formed client ids are kept")

	for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("x", 129)} {
		req := httptest.NewRequest(http.MethodGet, "/v1/actions", nil)
		req.Header.Set(auth.RequestIDHeader, bad)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.NotEqual(t, bad, got)
		assert.NotEmpty(t, got)
		assert.Equal(t, got, w.Header().Get(auth.RequestIDHeader))
	}
}
