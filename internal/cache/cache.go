package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pfrederiksen/shuttle-schedule/internal/freshness"
	"github.com/pfrederiksen/shuttle-schedule/internal/logger"
	"github.com/pfrederiksen/shuttle-schedule/internal/schedule"
)

var (
	// ErrNoDataAvailable means no bundled, live or cached schedule exists
	ErrNoDataAvailable = errors.New("no schedule data available")

	// ErrEmptySnapshot is returned when accepting a snapshot without records
	ErrEmptySnapshot = errors.New("snapshot has no records")

	// ErrNoLiveSource is returned by Refresh when no live source is configured
	ErrNoLiveSource = errors.New("no live source configured")
)

// Store persists snapshots by generation. Loading a missing generation returns nil, nil.
type Store interface {
	Load(ctx context.Context, gen schedule.Generation) (*schedule.Snapshot, error)
	Save(ctx context.Context, gen schedule.Generation, snap *schedule.Snapshot) error
}

// BundleSource provides the pre-fetched snapshot, nil when there is none
type BundleSource interface {
	LoadBundle(ctx context.Context) (*schedule.Snapshot, error)
}

// LiveSource acquires a snapshot from upstream
type LiveSource interface {
	AcquireLive(ctx context.Context) (*schedule.Snapshot, error)
}

// Source tells where a materialized snapshot came from
type Source string

const (
	SourceBundled Source = "bundled"
	SourceLive    Source = "live"
	SourceCache   Source = "cache"
)

// Result is the outcome of MaterializeCurrent.
// Err carries the acquisition failure when a cached snapshot was served instead.
type Result struct {
	Snapshot *schedule.Snapshot
	Source   Source
	Stale    bool
	Err      error
}

// Manager coordinates acquisition and owns the cached generations
type Manager struct {
	mu     sync.Mutex
	state  schedule.State
	loaded bool

	store     Store
	bundle    BundleSource
	live      LiveSource
	evaluator freshness.Evaluator
	now       func() time.Time
	log       *logger.Logger
	metrics   *logger.Metrics
}

// NewManager creates a Manager. bundle and live may be nil.
func NewManager(store Store, bundle BundleSource, live LiveSource, evaluator freshness.Evaluator) *Manager {
	return &Manager{
		store:     store,
		bundle:    bundle,
		live:      live,
		evaluator: evaluator,
		now:       time.Now,
		log:       logger.Nop(),
		metrics:   logger.DefaultMetrics(),
	}
}

// WithLogger sets the logger
func (m *Manager) WithLogger(l *logger.Logger) *Manager {
	m.log = l
	return m
}

// WithMetrics sets the metrics tracker
func (m *Manager) WithMetrics(mt *logger.Metrics) *Manager {
	m.metrics = mt
	return m
}

// WithClock overrides the time source used for freshness checks
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Bootstrap loads both generations from the store into memory
func (m *Manager) Bootstrap(ctx context.Context) (schedule.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bootstrapLocked(ctx)
}

// bootstrapLocked loads each generation independently, once. A generation that
// fails to load is left empty while the other is kept, and the failures are
// returned from that first call.
func (m *Manager) bootstrapLocked(ctx context.Context) (schedule.State, error) {
	if m.loaded {
		return m.state, nil
	}

	current, curErr := m.store.Load(ctx, schedule.Current)
	if curErr != nil {
		curErr = fmt.Errorf("loading current generation: %w", curErr)
	}
	previous, prevErr := m.store.Load(ctx, schedule.Previous)
	if prevErr != nil {
		prevErr = fmt.Errorf("loading previous generation: %w", prevErr)
	}

	m.state = schedule.State{Current: current, Previous: previous}
	m.loaded = true
	if err := errors.Join(curErr, prevErr); err != nil {
		return m.state, err
	}

	m.log.Debug("Cache loaded", logger.Fields{
		"current":  forDateOf(current),
		"previous": forDateOf(previous),
	})
	return m.state, nil
}

// State returns the in-memory generations
func (m *Manager) State() schedule.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SelectView returns the snapshot of the requested generation, or nil
func (m *Manager) SelectView(gen schedule.Generation) *schedule.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Get(gen)
}

// MaterializeCurrent produces today's schedule. A fresh bundled snapshot wins,
// then a live acquisition, then the cached current generation whatever its age.
// Only when none of these exist does it fail with ErrNoDataAvailable.
func (m *Manager) MaterializeCurrent(ctx context.Context) (*Result, error) {
	if _, err := m.Bootstrap(ctx); err != nil {
		// An unreadable cache must not block live data
		m.log.Warn("Failed to load cache", nil, err)
	}

	if snap := m.freshBundle(ctx); snap != nil {
		if _, err := m.Accept(ctx, snap); err != nil {
			m.log.Warn("Failed to persist bundled snapshot", nil, err)
			return &Result{Snapshot: snap, Source: SourceBundled, Err: err}, nil
		}
		return &Result{Snapshot: snap, Source: SourceBundled}, nil
	}

	liveErr := ErrNoLiveSource
	if m.live != nil {
		res, err := m.Refresh(ctx)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		liveErr = err
		m.log.Warn("Live acquisition failed, falling back to cache", nil, err)
	}

	if cached := m.SelectView(schedule.Current); cached != nil {
		return &Result{
			Snapshot: cached,
			Source:   SourceCache,
			Stale:    m.evaluator.SnapshotIsStale(cached, m.now()),
			Err:      liveErr,
		}, nil
	}

	return nil, fmt.Errorf("%w: %w", ErrNoDataAvailable, liveErr)
}

// Refresh forces a live acquisition and accepts its result
func (m *Manager) Refresh(ctx context.Context) (*Result, error) {
	if m.live == nil {
		return nil, ErrNoLiveSource
	}

	snap, err := m.live.AcquireLive(ctx)
	if err != nil {
		return nil, err
	}
	if snap.IsEmpty() {
		return nil, ErrEmptySnapshot
	}

	if _, err := m.Accept(ctx, snap); err != nil {
		m.log.Warn("Failed to persist live snapshot", nil, err)
		return &Result{Snapshot: snap, Source: SourceLive, Err: err}, nil
	}
	return &Result{Snapshot: snap, Source: SourceLive}, nil
}

// freshBundle returns the bundled snapshot if it exists, has records and is not stale
func (m *Manager) freshBundle(ctx context.Context) *schedule.Snapshot {
	if m.bundle == nil {
		return nil
	}

	snap, err := m.bundle.LoadBundle(ctx)
	if err != nil {
		m.log.Warn("Failed to load bundled snapshot", nil, err)
		return nil
	}
	if snap.IsEmpty() {
		return nil
	}
	if m.evaluator.SnapshotIsStale(snap, m.now()) {
		m.log.Debug("Bundled snapshot is stale", logger.Fields{
			"generated_at": snap.CapturedAt,
			"for_date":     snap.ForDate,
		})
		return nil
	}
	return snap
}

// Accept installs candidate as the current generation, archiving the old
// current into previous when the declared date changed. Both generations are
// persisted before the in-memory state is replaced. Returns whether archival happened.
func (m *Manager) Accept(ctx context.Context, candidate *schedule.Snapshot) (bool, error) {
	if candidate.IsEmpty() {
		return false, ErrEmptySnapshot
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.bootstrapLocked(ctx); err != nil {
		m.log.Warn("Accepting with partial cache", logger.Fields{
			"current":  forDateOf(m.state.Current),
			"previous": forDateOf(m.state.Previous),
		}, err)
	}

	next, archived := schedule.Promote(m.state, candidate)

	// previous is only written when it changes
	if next.Previous != m.state.Previous {
		if err := m.store.Save(ctx, schedule.Previous, next.Previous); err != nil {
			return false, fmt.Errorf("persisting previous generation: %w", err)
		}
	}
	if err := m.store.Save(ctx, schedule.Current, next.Current); err != nil {
		if next.Previous != m.state.Previous {
			if rbErr := m.store.Save(ctx, schedule.Previous, m.state.Previous); rbErr != nil {
				m.log.Error("Failed to restore previous generation", nil, rbErr)
			}
		}
		return false, fmt.Errorf("persisting current generation: %w", err)
	}

	m.state = next
	m.metrics.IncrCounter("cache.accepts")
	m.metrics.SetGauge("cache.current_records", float64(len(candidate.Records)))

	fields := logger.Fields{
		"for_date": candidate.ForDate,
		"records":  len(candidate.Records),
	}
	if archived {
		m.metrics.IncrCounter("cache.archivals")
		fields["archived"] = next.Previous.ForDate
	}
	m.log.Info("Accepted snapshot", fields)

	return archived, nil
}

func forDateOf(s *schedule.Snapshot) string {
	if s == nil {
		return ""
	}
	return s.ForDate
}
