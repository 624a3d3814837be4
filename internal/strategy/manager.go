package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stockpulse/stockpulse/internal/domain"
	"github.com/stockpulse/stockpulse/internal/telemetry"
)

// errRingSize bounds the per-strategy error history kept by the manager.
const errRingSize = 10

// SettingsStore persists strategy active flags across restarts.
type SettingsStore interface {
	StrategyActive(ctx context.Context, name string) (active bool, found bool, err error)
	SetStrategyActive(ctx context.Context, name string, active bool) error
}

// ErrorRecord is one entry in a strategy's error ring buffer.
type ErrorRecord struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Status is the observable state of one registered strategy.
type Status struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Active      bool          `json:"active"`
	Metrics     Report        `json:"metrics"`
	Errors      []ErrorRecord `json:"errors,omitempty"`
}

type registered struct {
	strategy Strategy
	active   bool
	errs     []ErrorRecord
}

// Manager owns the strategy registry. Runs iterate only active strategies
// and isolate failures: one broken strategy never aborts a run.
type Manager struct {
	mu       sync.Mutex
	order    []string
	entries  map[string]*registered
	settings SettingsStore
	metrics  *telemetry.Metrics
	log      zerolog.Logger
}

// NewManager builds an empty registry. settings may be nil, in which case
// active flags are process-local.
func NewManager(settings SettingsStore, metrics *telemetry.Metrics, log zerolog.Logger) *Manager {
	return &Manager{
		entries:  make(map[string]*registered),
		settings: settings,
		metrics:  metrics,
		log:      log.With().Str("component", "strategy_manager").Logger(),
	}
}

// Register adds a strategy. A persisted active flag, when present, wins over
// the caller's default. Duplicate names are a configuration error.
func (m *Manager) Register(ctx context.Context, s Strategy, active bool) error {
	name := s.Name()

	if m.settings != nil {
		persisted, found, err := m.settings.StrategyActive(ctx, name)
		if err != nil {
			return fmt.Errorf("load active flag for %s: %w", name, err)
		}
		if found {
			active = persisted
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.entries[name]; dup {
		return fmt.Errorf("strategy %s already registered", name)
	}
	m.entries[name] = &registered{strategy: s, active: active}
	m.order = append(m.order, name)
	m.log.Info().Str("strategy", name).Bool("active", active).Msg("strategy registered")
	return nil
}

// SetActive flips a strategy's active flag, persisting it when a settings
// store is wired.
func (m *Manager) SetActive(ctx context.Context, name string, active bool) error {
	m.mu.Lock()
	entry, ok := m.entries[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("strategy %s not registered", name)
	}
	was := entry.active
	entry.active = active
	m.mu.Unlock()

	if m.settings != nil {
		if err := m.settings.SetStrategyActive(ctx, name, active); err != nil {
			return fmt.Errorf("persist active flag for %s: %w", name, err)
		}
	}
	m.log.Info().Str("strategy", name).Bool("from", was).Bool("to", active).Msg("strategy active flag changed")
	return nil
}

// RunAll runs every active strategy over snap and returns the combined
// drafts sorted by confidence, highest first. Errors and panics are recorded
// against the failing strategy and the run continues.
func (m *Manager) RunAll(ctx context.Context, snap *domain.Snapshot) []domain.Draft {
	m.mu.Lock()
	names := make([]string, 0, len(m.order))
	for _, name := range m.order {
		if m.entries[name].active {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	var all []domain.Draft
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		m.mu.Lock()
		s := m.entries[name].strategy
		m.mu.Unlock()

		drafts, err := m.analyzeSafely(s, snap)
		if err != nil {
			m.recordError(name, err)
			m.metrics.StrategyRuns.WithLabelValues(name, "error").Inc()
			m.metrics.StrategyErrors.WithLabelValues(name).Inc()
			m.log.Error().Err(err).Str("strategy", name).Msg("strategy run failed")
			continue
		}
		m.metrics.StrategyRuns.WithLabelValues(name, "ok").Inc()
		for _, d := range drafts {
			m.metrics.Drafts.WithLabelValues(name, string(d.Action)).Inc()
		}
		all = append(all, drafts...)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Confidence > all[j].Confidence })
	return all
}

// analyzeSafely converts a panicking strategy into an error.
func (m *Manager) analyzeSafely(s Strategy, snap *domain.Snapshot) (drafts []domain.Draft, err error) {
	defer func() {
		if r := recover(); r != nil {
			drafts = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Analyze(snap)
}

// Status reports every registered strategy in registration order. A strategy
// that panics while computing its own metrics gets a synthetic Error status
// instead of taking the report down.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Status, 0, len(m.order))
	for _, name := range m.order {
		entry := m.entries[name]
		st := Status{
			Name:   name,
			Active: entry.active,
			Errors: append([]ErrorRecord(nil), entry.errs...),
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					st.Description = "Error"
					st.Metrics = Report{LastError: fmt.Sprintf("status panic: %v", r)}
				}
			}()
			st.Description = entry.strategy.Description()
			st.Metrics = entry.strategy.Metrics()
		}()
		out = append(out, st)
	}
	return out
}

func (m *Manager) recordError(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.entries[name]
	entry.errs = append(entry.errs, ErrorRecord{At: time.Now(), Message: err.Error()})
	if len(entry.errs) > errRingSize {
		entry.errs = entry.errs[len(entry.errs)-errRingSize:]
	}
}
