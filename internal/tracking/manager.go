package tracking

import (
	"context"
	"errors"
	"log"
	"sync"

	"backend-miletrack/internal/detection"
	"backend-miletrack/internal/position"
)

// ManagerConfig bundles the per-engine tunables with the driving
// auto-detection settings.
type ManagerConfig struct {
	Tracker                Config
	EnableDrivingDetection bool
	Detection              detection.Config
}

// Manager holds one tracking engine per user and enforces the two global
// rules: a user has at most one open trip, and the user's position feed is
// owned by either the engine or the driving detector, never both.
type Manager struct {
	cfg         ManagerConfig
	feeds       *position.Registry
	checkpoints CheckpointStore
	sink        Sink
	notify      func(userID string, st State)
	onDetected  func(userID string)

	mu        sync.Mutex
	engines   map[string]*Tracker
	detectors map[string]*detection.Detector
}

func NewManager(cfg ManagerConfig, feeds *position.Registry, checkpoints CheckpointStore, sink Sink, notify func(string, State), onDetected func(string)) *Manager {
	return &Manager{
		cfg:         cfg,
		feeds:       feeds,
		checkpoints: checkpoints,
		sink:        sink,
		notify:      notify,
		onDetected:  onDetected,
		engines:     map[string]*Tracker{},
		detectors:   map[string]*detection.Detector{},
	}
}

func (m *Manager) Start(ctx context.Context, userID string, purpose Purpose) (State, error) {
	t, err := m.engine(userID, false)
	if err != nil {
		return State{}, err
	}

	// The detector must release the feed before the engine watches it.
	m.stopDetection(userID)

	st, err := t.Start(ctx, purpose)
	if err != nil {
		m.resumeDetection(userID)
		return State{}, err
	}
	return st, nil
}

func (m *Manager) Pause(ctx context.Context, userID string) (State, error) {
	t, ok := m.existing(userID)
	if !ok {
		return State{}, nil
	}
	return t.Pause(ctx)
}

func (m *Manager) Resume(ctx context.Context, userID string) (State, error) {
	t, ok := m.existing(userID)
	if !ok {
		return State{}, ErrInvalidState
	}
	m.stopDetection(userID)
	return t.Resume(ctx)
}

func (m *Manager) Stop(ctx context.Context, userID string) (*Trip, error) {
	t, ok := m.existing(userID)
	if !ok {
		return nil, ErrInvalidState
	}
	return t.Stop(ctx)
}

func (m *Manager) Cancel(ctx context.Context, userID string) error {
	t, ok := m.existing(userID)
	if !ok {
		return ErrInvalidState
	}
	return t.Cancel(ctx)
}

func (m *Manager) State(ctx context.Context, userID string) State {
	t, ok := m.existing(userID)
	if !ok {
		return State{}
	}
	return t.State(ctx)
}

// Detected reports whether the user's driving detector has signaled since
// its last reset.
func (m *Manager) Detected(userID string) bool {
	m.mu.Lock()
	det := m.detectors[userID]
	m.mu.Unlock()
	return det != nil && det.Detected()
}

// Recover rebuilds an engine from a checkpoint left by a previous process.
// The recovered trip comes back paused; the feed is created eagerly since
// the device may not have reconnected yet.
func (m *Manager) Recover(ctx context.Context, userID string) (State, error) {
	t, err := m.engine(userID, true)
	if err != nil {
		return State{}, err
	}
	return t.Recover(ctx)
}

// DeviceConnected starts driving auto-detection for a user whose device just
// attached its position feed, unless a trip is already open.
func (m *Manager) DeviceConnected(userID string) {
	if t, ok := m.existing(userID); ok {
		if t.State(context.Background()).IsTracking {
			return
		}
	}
	m.resumeDetection(userID)
}

// Close tears down every engine and detector. Open trips stay checkpointed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.engines {
		t.Close()
	}
	for _, det := range m.detectors {
		det.Stop()
	}
}

func (m *Manager) existing(userID string) (*Tracker, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.engines[userID]
	return t, ok
}

func (m *Manager) engine(userID string, attach bool) (*Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.engines[userID]; ok {
		return t, nil
	}

	var feed *position.Feed
	if attach {
		feed = m.feeds.Attach(userID)
	} else {
		var err error
		feed, err = m.feeds.Lookup(userID)
		if err != nil {
			return nil, err
		}
	}

	var notify func(State)
	if m.notify != nil {
		notify = func(st State) { m.notify(userID, st) }
	}

	t := NewTracker(userID, m.cfg.Tracker, feed, m.checkpoints, m.sink, notify, func() {
		m.resumeDetection(userID)
	})
	m.engines[userID] = t
	return t, nil
}

// resumeDetection is safe to call from an engine's run loop; it never sends
// the engine a command.
func (m *Manager) resumeDetection(userID string) {
	if !m.cfg.EnableDrivingDetection {
		return
	}
	feed, err := m.feeds.Lookup(userID)
	if err != nil {
		return
	}

	m.mu.Lock()
	det, ok := m.detectors[userID]
	if !ok {
		var signal func()
		if m.onDetected != nil {
			signal = func() { m.onDetected(userID) }
		}
		det = detection.New(m.cfg.Detection, feed, signal)
		m.detectors[userID] = det
	}
	m.mu.Unlock()

	if err := det.Start(context.Background()); err != nil && !errors.Is(err, position.ErrWatchBusy) {
		log.Printf("driving detection start failed for %s: %v", userID, err)
	}
}

func (m *Manager) stopDetection(userID string) {
	m.mu.Lock()
	det := m.detectors[userID]
	m.mu.Unlock()
	if det != nil {
		det.Stop()
	}
}
