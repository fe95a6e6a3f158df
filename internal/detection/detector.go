package detection

import (
	"context"
	"sync"
	"time"

	"backend-miletrack/internal/position"
)

// Config tunes driving auto-detection. The speed threshold is deliberately
// higher than the in-trip driving classification: this watcher decides
// "just started driving", not "still moving".
type Config struct {
	SpeedThresholdMps float64
	Window            time.Duration
}

// Detector watches a position feed while no trip is open and signals once
// when the device has sustained driving speed for the configured window.
// Below-threshold fixes reset the window immediately.
type Detector struct {
	cfg    Config
	source position.Source
	signal func()

	mu                sync.Mutex
	running           bool
	cancelWatch       func()
	consecutivePoints int
	firstQualifiedMs  int64
	detected          bool
}

func New(cfg Config, source position.Source, signal func()) *Detector {
	return &Detector{cfg: cfg, source: source, signal: signal}
}

// Start begins watching. Returns position.ErrWatchBusy if the feed is owned
// by an active trip; the caller retries after the trip ends.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}

	fixes, cancel, err := d.source.Watch(ctx, position.Options{})
	if err != nil {
		return err
	}
	d.running = true
	d.cancelWatch = cancel
	d.consecutivePoints = 0
	d.firstQualifiedMs = 0
	d.detected = false

	go d.watch(fixes)
	return nil
}

// Stop releases the feed so the tracker can take it over.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	d.running = false
	d.cancelWatch()
	d.cancelWatch = nil
}

// Detected reports whether the one-shot signal has fired since the last
// reset.
func (d *Detector) Detected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detected
}

func (d *Detector) watch(fixes <-chan position.Fix) {
	for fix := range fixes {
		d.onFix(fix)
	}
}

func (d *Detector) onFix(fix position.Fix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}

	if fix.SpeedMps < d.cfg.SpeedThresholdMps {
		// No grace period on the negative side.
		d.consecutivePoints = 0
		d.firstQualifiedMs = 0
		d.detected = false
		return
	}

	d.consecutivePoints++
	if d.firstQualifiedMs == 0 {
		d.firstQualifiedMs = fix.Timestamp
		return
	}

	sustained := time.Duration(fix.Timestamp-d.firstQualifiedMs) * time.Millisecond
	if sustained >= d.cfg.Window && !d.detected {
		d.detected = true
		if d.signal != nil {
			d.signal()
		}
	}
}
