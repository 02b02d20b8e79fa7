package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ecoproof/ecoproof/pkg/engine"
	"github.com/ecoproof/ecoproof/pkg/observability"
)

const maxBodyBytes = 1 << 20

// Archiver exports an action dossier or a retirement certificate to the
// artifact archive and returns its content address.
type Archiver interface {
	ExportDossier(ctx context.Context, actionID uint64) (string, error)
	ExportRetirement(ctx context.Context, serial uint64) (string, error)
}

// Options wires the cross-cutting pieces around the handlers. Every field
// is optional.
type Options struct {
	// Middleware runs first, outermost first (request id, CORS).
	Middleware []func(http.Handler) http.Handler
	// Authenticate attaches the caller to the request context.
	Authenticate func(http.Handler) http.Handler
	// Caller reads the account attached by Authenticate.
	Caller func(ctx context.Context) string

	RateLimiter      *RateLimiter
	Idempotency      IdempotencyStorer
	IdempotencyScope KeyFunc

	Tracker  engine.Tracker
	SLO      *observability.SLOTracker
	Archiver Archiver
}

// Server exposes the engine as a JSON API under /v1.
type Server struct {
	engine *engine.Engine
	opts   Options
	logger *slog.Logger
}

// NewServer creates the API server.
func NewServer(e *engine.Engine, opts Options) *Server {
	if opts.Caller == nil {
		opts.Caller = func(context.Context) string { return "" }
	}
	return &Server{
		engine: e,
		opts:   opts,
		logger: slog.Default().With("component", "api"),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	for _, mw := range s.opts.Middleware {
		r.Use(mw)
	}
	if s.opts.Tracker != nil {
		r.Use(s.track)
	}
	if s.opts.Authenticate != nil {
		r.Use(s.opts.Authenticate)
	}
	if s.opts.RateLimiter != nil {
		r.Use(s.opts.RateLimiter.Middleware)
	}
	if s.opts.Idempotency != nil {
		r.Use(IdempotencyMiddleware(s.opts.Idempotency, s.opts.IdempotencyScope))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteMethodNotAllowed(w)
	})

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/actions", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleListActions)
			r.Get("/count", s.handleActionCount)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAction)
				r.Post("/oracle-reports", s.handleOracleReport)
				r.Post("/verify", s.handleVerify)
				r.Post("/finalize", s.handleFinalize)
				r.Put("/attestation", s.handleAttestation)
				r.Get("/challenges", s.handleListChallenges)
				r.Post("/challenges", s.handleChallenge)
				r.Post("/challenges/{index}/resolve", s.handleResolve)
				r.Get("/receipt", s.handleReceipt)
				r.Get("/journal", s.handleActionJournal)
				r.Get("/retired", s.handleRetired)
				r.Post("/export", s.handleExportDossier)
			})
		})

		r.Post("/bonds/deposit", s.handleBondMove(s.engine.DepositBond))
		r.Post("/bonds/withdraw", s.handleBondMove(s.engine.WithdrawBond))
		r.Post("/stakes/deposit", s.handleBondMove(s.engine.DepositStake))
		r.Post("/stakes/withdraw", s.handleBondMove(s.engine.WithdrawStake))
		r.Get("/accounts/{account}", s.handleAccount)
		r.Get("/token/supply", s.handleSupply)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handleSetConfig)
		r.Get("/admin", s.handleGetAdmin)
		r.Put("/admin", s.handleTransferAdmin)
		r.Get("/roles/{role}", s.handleMembers)
		r.Put("/roles/{role}/{account}", s.handleRoleChange(true))
		r.Delete("/roles/{role}/{account}", s.handleRoleChange(false))

		r.Get("/references", s.handleListReferences)
		r.Get("/references/{refID}", s.handleGetReference)
		r.Put("/references/{refID}", s.handleUpsertReference)

		r.Post("/retirements", s.handleRetire)
		r.Get("/retirements/{serial}", s.handleGetRetirement)
		r.Post("/retirements/{serial}/certificate", s.handleExportRetirement)

		r.Get("/journal", s.handleJournal)
		r.Get("/journal/verify", s.handleVerifyJournal)
		r.Get("/slo", s.handleSLO)
	})
	return r
}

// track wraps each request in a span. Metrics are labelled by resource
// group; the full route pattern is only known after routing and goes on
// the span.
func (s *Server) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, done := s.opts.Tracker.TrackOperation(r.Context(), "http.request", observability.HTTPOperation(r.Method, resourceGroup(r.URL.Path))...)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))
		if rctx := chi.RouteContext(ctx); rctx != nil {
			observability.AddSpanEvent(ctx, "routed",
				observability.AttrHTTPRoute.String(rctx.RoutePattern()),
				attribute.Int("http.response.status_code", rec.status))
		}
		var err error
		if rec.status >= http.StatusInternalServerError {
			err = &ProblemDetail{Title: http.StatusText(rec.status), Status: rec.status}
		}
		done(err)
	})
}

// resourceGroup keeps the first two path segments: /v1/actions/7/verify
// becomes /v1/actions.
func resourceGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) caller(r *http.Request) string {
	return s.opts.Caller(r.Context())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"journal_length": s.engine.Journal().Length(),
		"journal_head":   s.engine.Journal().Head(),
	})
}

// decodeJSON reads a bounded JSON body into v. Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func uintParam(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		WriteBadRequest(w, "invalid "+name+": must be an unsigned integer")
		return 0, false
	}
	return n, true
}

// page reads ?after=&limit= with a default limit of 100.
func page(w http.ResponseWriter, r *http.Request) (after uint64, limit int, ok bool) {
	limit = 100
	q := r.URL.Query()
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			WriteBadRequest(w, "invalid after")
			return 0, 0, false
		}
		after = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			WriteBadRequest(w, "limit must be between 1 and 1000")
			return 0, 0, false
		}
		limit = n
	}
	return after, limit, true
}
