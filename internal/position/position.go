package position

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrLocationUnavailable means no fix could be obtained within the timeout.
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrPermissionDenied means the user has no registered position feed.
	ErrPermissionDenied = errors.New("position permission denied")
	// ErrWatchBusy means the feed already has an active watcher.
	ErrWatchBusy = errors.New("position watch already active")
)

// Fix is a single raw sample from a device's positioning subsystem.
// Accuracy is nil when the device did not report one; such fixes are
// treated as untrusted downstream.
type Fix struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	AltitudeM float64  `json:"altitude_m,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	SpeedMps  float64  `json:"speed_mps"`
	Heading   float64  `json:"heading,omitempty"`
	Timestamp int64    `json:"timestamp"` // epoch milliseconds
}

// Options tune a watch subscription.
type Options struct {
	HighAccuracy bool
	MaxAge       time.Duration
}

// Source yields position fixes for one device.
type Source interface {
	// Watch starts a subscription. The returned cancel func releases it and
	// is safe to call more than once. Fixes arrive in capture order.
	Watch(ctx context.Context, opts Options) (<-chan Fix, func(), error)
	// Current obtains a single fix, waiting up to timeout.
	Current(ctx context.Context, timeout time.Duration) (Fix, error)
}
