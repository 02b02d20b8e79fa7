package auth

import (
	"net/http"
	"strings"

	"github.com/ecoproof/ecoproof/pkg/api"
)

// Probes answer without a token whatever their method.
var probePaths = map[string]bool{
	"/health":    true,
	"/readiness": true,
}

// public reports whether r may pass anonymously. Reads carry no caller.
func public(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return probePaths[r.URL.Path]
}

// bearerToken extracts the token from the Authorization header. On failure
// it returns the detail for the 401 response.
func bearerToken(r *http.Request) (token, problem string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", "missing Authorization header"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", "expected 'Authorization: Bearer <token>'"
	}
	return token, ""
}

// NewMiddleware authenticates writes with a bearer JWT and stores the
// Principal in the request context. A nil validator rejects every write.
func NewMiddleware(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public(r) {
				next.ServeHTTP(w, r)
				return
			}
			token, problem := bearerToken(r)
			if problem != "" {
				api.WriteUnauthorized(w, problem)
				return
			}
			if validator == nil {
				api.WriteUnauthorized(w, "authentication is not configured")
				return
			}
			p, err := validator.Validate(token)
			if err != nil {
				Logger(r.Context()).DebugContext(r.Context(), "token rejected", "path", r.URL.Path, "error", err)
				api.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
