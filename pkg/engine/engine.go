// Package engine is the action verification and settlement engine: the single
// entry point for every lifecycle, dispute, bond and admin operation.
//
// Calls are serialized by one mutex and read the clock once on entry. Every
// operation checks all of its preconditions before the first write, so a
// rejected call leaves no trace. Successful state changes are appended to the
// hash-chained journal last.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ecoproof/ecoproof/pkg/access"
	"github.com/ecoproof/ecoproof/pkg/admission"
	"github.com/ecoproof/ecoproof/pkg/bond"
	"github.com/ecoproof/ecoproof/pkg/contracts"
	"github.com/ecoproof/ecoproof/pkg/dispute"
	"github.com/ecoproof/ecoproof/pkg/ledger"
	"github.com/ecoproof/ecoproof/pkg/observability"
	"github.com/ecoproof/ecoproof/pkg/registry"
	"github.com/ecoproof/ecoproof/pkg/retirement"
	"github.com/ecoproof/ecoproof/pkg/settlement"
	"github.com/ecoproof/ecoproof/pkg/store"
	"github.com/ecoproof/ecoproof/pkg/token"
)

// EscrowAccount holds the credit tokens backing every stake balance.
const EscrowAccount = "ecoproof:stake-escrow"

// Tracker wraps an operation in a span and RED metrics.
// *observability.Provider satisfies it.
type Tracker interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

// Deps are the storage backends the engine runs on. Nil fields fall back to
// in-memory implementations and the wall clock.
type Deps struct {
	Actions     store.ActionStore
	Bonds       bond.Storage
	Tokens      token.Storage
	Roles       access.Storage
	References  registry.Backend
	Retirements retirement.Store
	Journal     *ledger.Journal
	Policy      *admission.Policy

	// Clock is read for genesis entries and on every call.
	Clock func() time.Time
}

// Genesis is applied the first time an engine opens a fresh store.
type Genesis struct {
	Admin     string
	Params    *contracts.Params
	Verifiers []string
	Oracles   []string
}

// Engine orchestrates the action lifecycle.
type Engine struct {
	mu      sync.Mutex
	clock   func() time.Time
	tracker Tracker
	logger  *slog.Logger

	actions     store.ActionStore
	bonds       *bond.Ledger
	tokens      *token.Ledger
	roles       *access.Control
	disputes    *dispute.Board
	settler     *settlement.Settler
	references  *registry.Registry
	retirements *retirement.Registry
	journal     *ledger.Journal
	policy      *admission.Policy

	params contracts.Params
}

// Open wires the engine over deps and applies g if the store has never been
// configured. On an existing store the persisted parameters win.
func Open(ctx context.Context, deps Deps, g Genesis) (*Engine, error) {
	if deps.Actions == nil {
		deps.Actions = store.NewMemoryStore()
	}
	if deps.Bonds == nil {
		deps.Bonds = bond.NewMemoryStorage()
	}
	if deps.Tokens == nil {
		deps.Tokens = token.NewMemoryStorage()
	}
	if deps.Roles == nil {
		deps.Roles = access.NewMemoryStorage()
	}
	if deps.References == nil {
		deps.References = registry.NewMemoryBackend()
	}
	if deps.Retirements == nil {
		deps.Retirements = retirement.NewMemoryStore()
	}
	if deps.Journal == nil {
		deps.Journal = ledger.NewJournal(nil)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	tokens := token.NewLedger(deps.Tokens)
	e := &Engine{
		clock:       deps.Clock,
		logger:      slog.Default().With("component", "engine"),
		actions:     deps.Actions,
		bonds:       bond.NewLedger(deps.Bonds),
		tokens:      tokens,
		roles:       access.NewControl(deps.Roles),
		disputes:    dispute.NewBoard(deps.Actions),
		settler:     settlement.NewSettler(tokens),
		references:  registry.New(deps.References),
		retirements: retirement.NewRegistry(deps.Retirements),
		journal:     deps.Journal,
		policy:      deps.Policy,
	}
	if err := e.bootstrap(ctx, g); err != nil {
		return nil, err
	}
	return e, nil
}

// WithClock overrides clock for testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// WithTracker instruments every operation.
func (e *Engine) WithTracker(t Tracker) *Engine {
	e.tracker = t
	return e
}

// Journal exposes the transition log for export and relaying.
func (e *Engine) Journal() *ledger.Journal {
	return e.journal
}

func (e *Engine) bootstrap(ctx context.Context, g Genesis) error {
	p, err := e.actions.LoadParams(ctx)
	if err == nil {
		e.params = p
		e.logger.InfoContext(ctx, "engine opened", "actions_configured", true)
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("engine: load params: %w", err)
	}

	p = contracts.DefaultParams()
	if g.Params != nil {
		p = *g.Params
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("engine: genesis params: %w", err)
	}
	if g.Admin == "" {
		return errors.New("engine: genesis admin is required")
	}
	if err := e.roles.Bootstrap(ctx, g.Admin); err != nil {
		return fmt.Errorf("engine: bootstrap admin: %w", err)
	}
	now := e.clock()
	grants := []struct {
		role     contracts.Role
		accounts []string
	}{
		{contracts.RoleVerifier, g.Verifiers},
		{contracts.RoleOracle, g.Oracles},
	}
	for _, gr := range grants {
		for _, acct := range gr.accounts {
			if acct == "" {
				continue
			}
			if err := e.roles.Grant(ctx, gr.role, acct); err != nil {
				return fmt.Errorf("engine: genesis grant: %w", err)
			}
			if err := e.record(ctx, contracts.EventRoleGranted, 0, g.Admin, now, roleChange{Role: gr.role, Account: acct}); err != nil {
				return err
			}
		}
	}
	if err := e.actions.SaveParams(ctx, p); err != nil {
		return fmt.Errorf("engine: save genesis params: %w", err)
	}
	e.params = p
	if err := e.record(ctx, contracts.EventConfigUpdated, 0, g.Admin, now, p); err != nil {
		return err
	}
	e.logger.InfoContext(ctx, "engine genesis applied",
		"admin", g.Admin,
		"verifiers", len(g.Verifiers),
		"oracles", len(g.Oracles),
		"instant_settlement", p.InstantSettlement,
	)
	return nil
}

// run serializes fn, samples the clock once and logs the outcome.
func (e *Engine) run(ctx context.Context, op, caller string, fn func(ctx context.Context, now time.Time) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	done := func(error) {}
	if e.tracker != nil {
		ctx, done = e.tracker.TrackOperation(ctx, "engine."+op, observability.AttrOperation.String(op))
	}
	err := fn(ctx, e.clock())
	done(err)

	if err != nil {
		if kind := contracts.KindOf(err); kind != "" {
			e.logger.DebugContext(ctx, "operation rejected", "op", op, "caller", caller, "kind", kind, "error", err)
		} else {
			e.logger.ErrorContext(ctx, "operation failed", "op", op, "caller", caller, "error", err)
		}
	}
	return err
}

// view serializes a read.
func (e *Engine) view(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

func (e *Engine) record(ctx context.Context, typ contracts.EventType, actionID uint64, actor string, at time.Time, data any) error {
	entry, err := e.journal.Append(ctx, typ, actionID, actor, at, data)
	if err != nil {
		return fmt.Errorf("engine: journal %s: %w", typ, err)
	}
	observability.AddSpanEvent(ctx, "journal.append", observability.JournalEvent(string(typ), entry.Sequence, actionID)...)
	return nil
}

func (e *Engine) loadAction(ctx context.Context, op string, id uint64) (*contracts.Action, error) {
	a, err := e.actions.GetAction(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, contracts.Errorf(contracts.KindNotFound, op, "no action %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("engine: load action %d: %w", id, err)
	}
	return a, nil
}

func (e *Engine) saveAction(ctx context.Context, a *contracts.Action) error {
	if err := e.actions.UpdateAction(ctx, a); err != nil {
		return fmt.Errorf("engine: update action %d: %w", a.ID, err)
	}
	return nil
}

func requireCaller(op, caller string) error {
	if caller == "" {
		return contracts.Errorf(contracts.KindNotAuthorized, op, "caller identity is required")
	}
	return nil
}

// journal payloads

type roleChange struct {
	Role    contracts.Role `json:"role"`
	Account string         `json:"account"`
}

type balanceChange struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
	Balance uint64 `json:"balance"`
}
