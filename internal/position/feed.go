package position

import (
	"context"
	"sync"
	"time"
)

// Feed is a Source fed by device pushes. The ingest socket calls Push for
// every fix the device reports; at most one watcher consumes the stream at
// a time, so the tracker and the driving detector never share a session.
type Feed struct {
	mu       sync.Mutex
	watcher  chan Fix
	waiters  []chan Fix
	lastFix  *Fix
	lastSeen time.Time
}

func NewFeed() *Feed {
	return &Feed{}
}

// Push delivers a device-reported fix to the active watcher and any
// one-shot waiters. Never blocks; a slow watcher drops fixes.
func (f *Feed) Push(fix Fix) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastFix = &fix
	f.lastSeen = time.Now()

	if f.watcher != nil {
		select {
		case f.watcher <- fix:
		default:
		}
	}

	for _, w := range f.waiters {
		select {
		case w <- fix:
		default:
		}
	}
	f.waiters = nil
}

func (f *Feed) Watch(ctx context.Context, _ Options) (<-chan Fix, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.watcher != nil {
		return nil, nil, ErrWatchBusy
	}

	ch := make(chan Fix, 64)
	f.watcher = ch

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if f.watcher == ch {
				f.watcher = nil
			}
			f.mu.Unlock()
			close(ch)
			close(done)
		})
	}

	// The watchdog exits on cancel too, so long-lived contexts do not pin a
	// goroutine per watch cycle.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

func (f *Feed) Current(ctx context.Context, timeout time.Duration) (Fix, error) {
	f.mu.Lock()
	if f.lastFix != nil && time.Since(f.lastSeen) <= timeout {
		fix := *f.lastFix
		f.mu.Unlock()
		return fix, nil
	}

	waiter := make(chan Fix, 1)
	f.waiters = append(f.waiters, waiter)
	f.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fix := <-waiter:
		return fix, nil
	case <-timer.C:
		return Fix{}, ErrLocationUnavailable
	case <-ctx.Done():
		return Fix{}, ErrLocationUnavailable
	}
}

// Registry maps user IDs to their device feed. A feed exists only after the
// device has connected its position socket; callers treat a missing feed as
// the permission-denied condition.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string]*Feed
}

func NewRegistry() *Registry {
	return &Registry{feeds: map[string]*Feed{}}
}

// Attach returns the user's feed, creating it on first connect.
func (r *Registry) Attach(userID string) *Feed {
	r.mu.Lock()
	defer r.mu.Unlock()

	feed, ok := r.feeds[userID]
	if !ok {
		feed = NewFeed()
		r.feeds[userID] = feed
	}
	return feed
}

// Lookup returns the user's feed or ErrPermissionDenied if the device has
// never connected.
func (r *Registry) Lookup(userID string) (*Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	feed, ok := r.feeds[userID]
	if !ok {
		return nil, ErrPermissionDenied
	}
	return feed, nil
}
