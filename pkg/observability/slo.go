package observability

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// SLOTarget is the latency and availability objective for one engine
// operation, evaluated over a trailing window.
type SLOTarget struct {
	SLOID       string        `json:"slo_id"`
	Name        string        `json:"name"`
	Operation   string        `json:"operation"`
	LatencyP99  time.Duration `json:"latency_p99"`
	SuccessRate float64       `json:"success_rate"` // 0-1
	WindowHours int           `json:"window_hours"`
}

func (t *SLOTarget) window() time.Duration {
	return time.Duration(t.WindowHours) * time.Hour
}

// SLOObservation is one completed call.
type SLOObservation struct {
	Operation string        `json:"operation"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// SLOStatus is served by GET /v1/slo.
type SLOStatus struct {
	SLOID            string  `json:"slo_id"`
	Operation        string  `json:"operation"`
	CurrentP99       float64 `json:"current_p99_ms"`
	CurrentSuccess   float64 `json:"current_success_rate"`
	InCompliance     bool    `json:"in_compliance"`
	BurnRate         float64 `json:"burn_rate"`         // above 1 the budget runs out before the window ends
	ErrorBudgetLeft  float64 `json:"error_budget_left"` // percent
	ObservationCount int     `json:"observation_count"`
}

// DefaultTargets are the objectives for the engine's write operations.
func DefaultTargets() []*SLOTarget {
	ops := []string{
		"engine.submit", "engine.verify", "engine.finalize",
		"engine.challenge", "engine.resolve_challenge", "engine.retire",
	}
	out := make([]*SLOTarget, 0, len(ops))
	for _, op := range ops {
		out = append(out, &SLOTarget{
			SLOID:       "slo-" + op,
			Name:        op + " availability",
			Operation:   op,
			LatencyP99:  250 * time.Millisecond,
			SuccessRate: 0.999,
			WindowHours: 24,
		})
	}
	return out
}

// series holds the observations of one operation in arrival order.
type series struct {
	target  *SLOTarget
	samples []SLOObservation
}

// trim drops samples at or before cutoff.
func (s *series) trim(cutoff time.Time) {
	i := sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].Timestamp.After(cutoff)
	})
	s.samples = s.samples[i:]
}

func (s *series) summarize() *SLOStatus {
	st := &SLOStatus{
		SLOID:            s.target.SLOID,
		Operation:        s.target.Operation,
		InCompliance:     true,
		ErrorBudgetLeft:  100,
		ObservationCount: len(s.samples),
	}
	if len(s.samples) == 0 {
		return st
	}

	ok := 0
	millis := make([]float64, len(s.samples))
	for i, o := range s.samples {
		if o.Success {
			ok++
		}
		millis[i] = float64(o.Latency.Milliseconds())
	}
	st.CurrentSuccess = float64(ok) / float64(len(s.samples))
	st.CurrentP99 = p99(millis)
	st.BurnRate, st.ErrorBudgetLeft = budget(s.target.SuccessRate, st.CurrentSuccess)
	st.InCompliance = st.CurrentP99 <= float64(s.target.LatencyP99.Milliseconds()) &&
		st.CurrentSuccess >= s.target.SuccessRate
	return st
}

func p99(values []float64) float64 {
	slices.Sort(values)
	idx := min(int(float64(len(values))*0.99), len(values)-1)
	return values[idx]
}

// budget returns the burn rate and the percent of error budget left for an
// observed success rate against an objective.
func budget(objective, observed float64) (burn, left float64) {
	allowed := 1 - objective
	failed := 1 - observed
	if allowed <= 0 {
		if failed > 0 {
			return 0, 0
		}
		return 0, 100
	}
	burn = failed / allowed
	return burn, max(0, 100*(1-burn))
}

// SLOTracker keeps a trailing window of observations per operation. Windows
// are trimmed on write and on read.
type SLOTracker struct {
	mu    sync.Mutex
	byOp  map[string]*series
	clock func() time.Time
}

// NewSLOTracker creates a tracker with the given targets.
func NewSLOTracker(targets ...*SLOTarget) *SLOTracker {
	t := &SLOTracker{byOp: make(map[string]*series), clock: time.Now}
	for _, target := range targets {
		t.byOp[target.Operation] = &series{target: target}
	}
	return t
}

// WithClock overrides clock for testing.
func (t *SLOTracker) WithClock(clock func() time.Time) *SLOTracker {
	t.clock = clock
	return t
}

// SetTarget installs or replaces the objective for target.Operation.
// Existing observations are kept.
func (t *SLOTracker) SetTarget(target *SLOTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.byOp[target.Operation]; ok {
		s.target = target
		return
	}
	t.byOp[target.Operation] = &series{target: target}
}

// Record stores an observation. Operations without a target are ignored.
func (t *SLOTracker) Record(obs SLOObservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byOp[obs.Operation]
	if !ok {
		return
	}
	now := t.clock()
	if obs.Timestamp.IsZero() {
		obs.Timestamp = now
	}
	s.trim(now.Add(-s.target.window()))
	s.samples = append(s.samples, obs)
}

// Operations lists the operations with a target, sorted.
func (t *SLOTracker) Operations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.byOp))
	for op := range t.byOp {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

// Status reports compliance for operation over its current window.
func (t *SLOTracker) Status(operation string) (*SLOStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byOp[operation]
	if !ok {
		return nil, fmt.Errorf("no SLO target for operation %q", operation)
	}
	s.trim(t.clock().Add(-s.target.window()))
	return s.summarize(), nil
}
