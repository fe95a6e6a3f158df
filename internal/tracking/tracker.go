package tracking

import (
	"context"
	"log"
	"time"

	"backend-miletrack/internal/position"
	"backend-miletrack/internal/shared/geo"

	"github.com/google/uuid"
)

// Config carries one engine's tunables. Durations of zero fall back to the
// production defaults, except AutoStop and SyncInterval where zero disables
// the behavior.
type Config struct {
	UpdateInterval   time.Duration
	MinimumAccuracyM float64
	MinimumDistanceM float64
	AutoStop         time.Duration
	SyncInterval     time.Duration
	FixTimeout       time.Duration
	TickInterval     time.Duration
	Thresholds       Thresholds
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.FixTimeout <= 0 {
		c.FixTimeout = 15 * time.Second
	}
	c.Thresholds = c.Thresholds.withDefaults()
	return c
}

// CheckpointStore persists in-progress state for crash recovery.
// Writes are last-write-wins; the engine is the only writer for its user.
type CheckpointStore interface {
	Save(ctx context.Context, userID string, st State) error
	Load(ctx context.Context, userID string) (*State, error)
	Remove(ctx context.Context, userID string) error
}

// Sink receives finalized trips and best-effort partial state. SubmitTrip
// implementations queue the record durably on storage failure; the engine
// never retries a finalized trip itself.
type Sink interface {
	SubmitTrip(ctx context.Context, t Trip) error
	SubmitPartial(ctx context.Context, userID string, st State) error
}

// Tracker owns one user's trip lifecycle. All state lives on a single
// run-loop goroutine: commands, fixes, and timer ticks are loop events that
// execute to completion, so no mutation ever interleaves with another.
type Tracker struct {
	userID      string
	cfg         Config
	source      position.Source
	checkpoints CheckpointStore
	sink        Sink
	notify      func(State)
	onIdle      func()

	cmds chan command

	// Loop-owned. Never touched off the run goroutine.
	state         State
	tempStopped   bool
	lastMovement  time.Time
	rejectedFixes uint64
	fixes         <-chan position.Fix
	watchCancel   func()
	tick          *time.Ticker
	syncTick      *time.Ticker
	autoStop      *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdPause
	cmdResume
	cmdStop
	cmdCancel
	cmdState
	cmdRecover
)

type command struct {
	kind    cmdKind
	purpose Purpose
	reply   chan result
}

type result struct {
	state State
	trip  *Trip
	err   error
}

// NewTracker starts the engine's run loop. notify (may be nil) receives a
// state snapshot after every published change; onIdle (may be nil) fires on
// every transition back to idle, including auto-stop.
func NewTracker(userID string, cfg Config, source position.Source, checkpoints CheckpointStore, sink Sink, notify func(State), onIdle func()) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		userID:      userID,
		cfg:         cfg.withDefaults(),
		source:      source,
		checkpoints: checkpoints,
		sink:        sink,
		notify:      notify,
		onIdle:      onIdle,
		cmds:        make(chan command),
		ctx:         ctx,
		cancel:      cancel,
	}
	go t.run()
	return t
}

// Close tears the engine down. Any open trip stays checkpointed for recovery.
func (t *Tracker) Close() {
	t.cancel()
}

func (t *Tracker) Start(ctx context.Context, purpose Purpose) (State, error) {
	res := t.send(ctx, command{kind: cmdStart, purpose: purpose})
	return res.state, res.err
}

func (t *Tracker) Pause(ctx context.Context) (State, error) {
	res := t.send(ctx, command{kind: cmdPause})
	return res.state, res.err
}

func (t *Tracker) Resume(ctx context.Context) (State, error) {
	res := t.send(ctx, command{kind: cmdResume})
	return res.state, res.err
}

func (t *Tracker) Stop(ctx context.Context) (*Trip, error) {
	res := t.send(ctx, command{kind: cmdStop})
	return res.trip, res.err
}

func (t *Tracker) Cancel(ctx context.Context) error {
	return t.send(ctx, command{kind: cmdCancel}).err
}

func (t *Tracker) State(ctx context.Context) State {
	return t.send(ctx, command{kind: cmdState}).state
}

// Recover loads a checkpointed trip left by a previous process. A recovered
// trip resumes paused; the caller decides when to resume the watch.
func (t *Tracker) Recover(ctx context.Context) (State, error) {
	res := t.send(ctx, command{kind: cmdRecover})
	return res.state, res.err
}

func (t *Tracker) send(ctx context.Context, cmd command) result {
	cmd.reply = make(chan result, 1)
	select {
	case t.cmds <- cmd:
	case <-ctx.Done():
		return result{err: ctx.Err()}
	case <-t.ctx.Done():
		return result{err: ErrInvalidState}
	}
	select {
	case res := <-cmd.reply:
		return res
	case <-t.ctx.Done():
		return result{err: ErrInvalidState}
	}
}

func (t *Tracker) run() {
	for {
		var tickC, syncC, autoC <-chan time.Time
		if t.tick != nil {
			tickC = t.tick.C
		}
		if t.syncTick != nil {
			syncC = t.syncTick.C
		}
		if t.autoStop != nil {
			autoC = t.autoStop.C
		}

		select {
		case <-t.ctx.Done():
			t.stopWatch()
			return
		case cmd := <-t.cmds:
			t.handle(cmd)
		case fix, ok := <-t.fixes:
			if !ok {
				t.fixes = nil
				continue
			}
			t.onFix(fix)
		case <-tickC:
			t.onTick()
		case <-syncC:
			t.onSyncTick()
		case <-autoC:
			t.autoStop = nil
			t.onAutoStopFired()
		}
	}
}

func (t *Tracker) handle(cmd command) {
	var res result
	switch cmd.kind {
	case cmdStart:
		res.err = t.handleStart(cmd.purpose)
	case cmdPause:
		t.handlePause()
	case cmdResume:
		res.err = t.handleResume()
	case cmdStop:
		res.trip, res.err = t.handleStop(false)
	case cmdCancel:
		res.err = t.handleCancel()
	case cmdRecover:
		res.err = t.handleRecover()
	}
	res.state = t.snapshot()
	cmd.reply <- res
}

func (t *Tracker) handleStart(purpose Purpose) error {
	if t.state.IsTracking {
		return ErrInvalidState
	}

	first, err := t.source.Current(t.ctx, t.cfg.FixTimeout)
	if err != nil {
		return err
	}

	now := nowMs()
	t.state = State{
		TripID:          uuid.NewString(),
		Purpose:         purpose,
		IsTracking:      true,
		RoutePoints:     []position.Fix{first},
		CurrentPosition: &first,
		StartTime:       now,
		LastUpdate:      now,
		SpeedMph:        geo.MetersPerSecondToMph(first.SpeedMps),
	}
	t.tempStopped = false
	t.lastMovement = time.Now()

	if err := t.startWatch(); err != nil {
		t.state = State{}
		return err
	}
	t.tick = time.NewTicker(t.cfg.TickInterval)
	if t.cfg.SyncInterval > 0 {
		t.syncTick = time.NewTicker(t.cfg.SyncInterval)
	}

	t.persist()
	t.publish()
	return nil
}

// handlePause is a no-op unless actively tracking, so a double pause leaves
// the state untouched.
func (t *Tracker) handlePause() {
	if !t.state.IsTracking || t.state.IsPaused {
		return
	}
	t.stopWatch()
	t.state.IsPaused = true
	t.state.LastUpdate = nowMs()
	t.persist()
	t.publish()
}

func (t *Tracker) handleResume() error {
	if !t.state.IsTracking || !t.state.IsPaused {
		return ErrInvalidState
	}
	if err := t.startWatch(); err != nil {
		return err
	}
	t.tick = time.NewTicker(t.cfg.TickInterval)
	if t.cfg.SyncInterval > 0 {
		t.syncTick = time.NewTicker(t.cfg.SyncInterval)
	}
	t.state.IsPaused = false
	t.state.LastUpdate = nowMs()
	t.tempStopped = false
	t.lastMovement = time.Now()
	t.persist()
	t.publish()
	return nil
}

func (t *Tracker) handleStop(auto bool) (*Trip, error) {
	if !t.state.IsTracking {
		return nil, ErrInvalidState
	}

	// Best-effort final fix; on failure the last route point is the end point.
	if fix, err := t.source.Current(t.ctx, t.cfg.FixTimeout); err == nil {
		last := t.state.RoutePoints[len(t.state.RoutePoints)-1]
		if Acceptable(fix, t.cfg.MinimumAccuracyM) && ShouldRecord(last, fix, t.cfg.MinimumDistanceM) {
			t.state.DistanceMiles += geo.DistanceMiles(last.Lat, last.Lng, fix.Lat, fix.Lng)
			t.state.RoutePoints = append(t.state.RoutePoints, fix)
		}
	}

	finalized := t.finalize(auto)
	t.stopWatch()

	if err := t.sink.SubmitTrip(t.ctx, finalized); err != nil {
		log.Printf("trip %s submit failed: %v", finalized.ID, err)
	}

	t.resetIdle()
	return &finalized, nil
}

func (t *Tracker) handleCancel() error {
	if !t.state.IsTracking {
		return ErrInvalidState
	}
	t.stopWatch()
	t.resetIdle()
	return nil
}

func (t *Tracker) handleRecover() error {
	if t.state.IsTracking {
		return ErrInvalidState
	}
	cp, err := t.checkpoints.Load(t.ctx, t.userID)
	if err != nil {
		return err
	}
	if cp == nil || !cp.IsTracking {
		return nil
	}

	now := nowMs()
	if gap := (now - cp.LastUpdate) / 1000; gap > 0 {
		cp.ElapsedSec += gap
	}
	cp.IsPaused = true
	cp.LastUpdate = now
	t.state = *cp
	t.tempStopped = false
	t.persist()
	t.publish()
	return nil
}

// onFix drives the classifier and filter for one raw fix. Only called while
// actively tracking; the filter's decision for fix N always sees the state
// left by fix N-1.
func (t *Tracker) onFix(fix position.Fix) {
	if !t.state.IsTracking || t.state.IsPaused {
		return
	}
	if !Acceptable(fix, t.cfg.MinimumAccuracyM) {
		t.rejectedFixes++
		return
	}

	last := t.state.RoutePoints[len(t.state.RoutePoints)-1]
	now := nowMs()
	changed := false

	switch Classify(last, fix, t.cfg.Thresholds) {
	case MovementDriving:
		t.state.SpeedMph = geo.MetersPerSecondToMph(fix.SpeedMps)
		if ShouldRecord(last, fix, t.cfg.MinimumDistanceM) {
			t.state.DistanceMiles += geo.DistanceMiles(last.Lat, last.Lng, fix.Lat, fix.Lng)
			t.state.RoutePoints = append(t.state.RoutePoints, fix)
		}
		t.state.CurrentPosition = &fix
		t.state.LastUpdate = now
		t.movementSeen()
		changed = true

	case MovementMinimal:
		t.state.SpeedMph = geo.MetersPerSecondToMph(fix.SpeedMps)
		t.state.CurrentPosition = &fix
		t.state.LastUpdate = now
		t.movementSeen()
		changed = true

	case MovementStopped:
		if t.state.SpeedMph != 0 {
			t.state.SpeedMph = 0
			t.state.LastUpdate = now
			changed = true
		}
		if !t.tempStopped {
			t.tempStopped = true
			t.scheduleAutoStop()
			changed = true
		}
	}

	if changed {
		t.persist()
		t.publish()
	}
}

func (t *Tracker) onTick() {
	if !t.state.IsTracking || t.state.IsPaused {
		return
	}
	t.state.ElapsedSec++
	t.state.LastUpdate = nowMs()
	t.persist()
	t.publish()
}

func (t *Tracker) onSyncTick() {
	if !t.state.IsTracking || t.state.IsPaused {
		return
	}
	if err := t.sink.SubmitPartial(t.ctx, t.userID, t.snapshot()); err != nil {
		log.Printf("partial sync failed for %s: %v", t.userID, err)
	}
}

func (t *Tracker) onAutoStopFired() {
	if !t.tempStopped || !t.state.IsTracking || t.state.IsPaused {
		return
	}
	if _, err := t.handleStop(true); err != nil {
		log.Printf("auto-stop failed for %s: %v", t.userID, err)
	}
}

func (t *Tracker) movementSeen() {
	t.lastMovement = time.Now()
	if t.tempStopped {
		t.tempStopped = false
		t.cancelAutoStop()
	}
}

func (t *Tracker) scheduleAutoStop() {
	if t.cfg.AutoStop <= 0 {
		return
	}
	t.cancelAutoStop()
	t.autoStop = time.NewTimer(t.cfg.AutoStop)
}

func (t *Tracker) cancelAutoStop() {
	if t.autoStop != nil {
		t.autoStop.Stop()
		t.autoStop = nil
	}
}

func (t *Tracker) startWatch() error {
	fixes, cancel, err := t.source.Watch(t.ctx, position.Options{
		HighAccuracy: true,
		MaxAge:       t.cfg.UpdateInterval,
	})
	if err != nil {
		return err
	}
	t.fixes = fixes
	t.watchCancel = cancel
	return nil
}

// stopWatch releases the subscription and all timers. Setting fixes to nil
// guarantees no queued fix mutates state after this returns.
func (t *Tracker) stopWatch() {
	if t.watchCancel != nil {
		t.watchCancel()
		t.watchCancel = nil
	}
	t.fixes = nil
	if t.tick != nil {
		t.tick.Stop()
		t.tick = nil
	}
	if t.syncTick != nil {
		t.syncTick.Stop()
		t.syncTick = nil
	}
	t.cancelAutoStop()
}

func (t *Tracker) finalize(auto bool) Trip {
	st := t.state
	avg := 0.0
	if st.ElapsedSec > 0 {
		avg = st.DistanceMiles / float64(st.ElapsedSec) * 3600
	}
	maxSpeed := 0.0
	for _, p := range st.RoutePoints {
		if mph := geo.MetersPerSecondToMph(p.SpeedMps); mph > maxSpeed {
			maxSpeed = mph
		}
	}
	return Trip{
		ID:            st.TripID,
		UserID:        t.userID,
		Purpose:       st.Purpose,
		StartedAt:     time.UnixMilli(st.StartTime),
		EndedAt:       time.Now(),
		DistanceMiles: st.DistanceMiles,
		DistanceKm:    geo.MilesToKm(st.DistanceMiles),
		DurationSec:   st.ElapsedSec,
		AvgSpeedMph:   avg,
		MaxSpeedMph:   maxSpeed,
		RoutePoints:   st.RoutePoints,
		AutoStopped:   auto,
	}
}

func (t *Tracker) resetIdle() {
	if err := t.checkpoints.Remove(t.ctx, t.userID); err != nil {
		log.Printf("checkpoint remove failed for %s: %v", t.userID, err)
	}
	t.state = State{}
	t.tempStopped = false
	t.publish()
	if t.onIdle != nil {
		t.onIdle()
	}
}

func (t *Tracker) persist() {
	if err := t.checkpoints.Save(t.ctx, t.userID, t.state); err != nil {
		log.Printf("checkpoint save failed for %s: %v", t.userID, err)
	}
}

func (t *Tracker) publish() {
	if t.notify != nil {
		t.notify(t.snapshot())
	}
}

func (t *Tracker) snapshot() State {
	st := t.state
	st.RoutePoints = append([]position.Fix(nil), t.state.RoutePoints...)
	if t.state.CurrentPosition != nil {
		cp := *t.state.CurrentPosition
		st.CurrentPosition = &cp
	}
	return st
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
