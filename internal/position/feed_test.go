package position

import (
	"context"
	"runtime"
	"testing"
	"time"
)

func TestFeedWatchReceivesPushes(t *testing.T) {
	feed := NewFeed()
	ch, cancel, err := feed.Watch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	feed.Push(Fix{Lat: 40.0, Lng: -75.0})

	select {
	case fix := <-ch:
		if fix.Lat != 40.0 {
			t.Fatalf("unexpected fix")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("timeout waiting for fix")
	}
}

func TestFeedSingleWatcher(t *testing.T) {
	feed := NewFeed()
	_, cancel, err := feed.Watch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	if _, _, err := feed.Watch(context.Background(), Options{}); err != ErrWatchBusy {
		t.Fatalf("expected ErrWatchBusy, got %v", err)
	}

	cancel()
	cancel() // idempotent

	_, cancel2, err := feed.Watch(context.Background(), Options{})
	if err != nil {
		t.Fatalf("watch after cancel: %v", err)
	}
	cancel2()
}

func TestFeedCurrentTimesOut(t *testing.T) {
	feed := NewFeed()
	if _, err := feed.Current(context.Background(), 20*time.Millisecond); err != ErrLocationUnavailable {
		t.Fatalf("expected ErrLocationUnavailable, got %v", err)
	}
}

func TestFeedCurrentReturnsRecentFix(t *testing.T) {
	feed := NewFeed()
	feed.Push(Fix{Lat: 1.0, Lng: 2.0})

	fix, err := feed.Current(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if fix.Lat != 1.0 || fix.Lng != 2.0 {
		t.Fatalf("unexpected fix")
	}
}

func TestFeedCurrentWaitsForPush(t *testing.T) {
	feed := NewFeed()

	go func() {
		time.Sleep(10 * time.Millisecond)
		feed.Push(Fix{Lat: 3.0})
	}()

	fix, err := feed.Current(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if fix.Lat != 3.0 {
		t.Fatalf("unexpected fix")
	}
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.Lookup("user-1"); err != ErrPermissionDenied {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}

	feed := reg.Attach("user-1")
	got, err := reg.Lookup("user-1")
	if err != nil || got != feed {
		t.Fatalf("expected registered feed")
	}

	if reg.Attach("user-1") != feed {
		t.Fatalf("expected attach to reuse feed")
	}
}

func TestFeedWatchReleasesWatchdog(t *testing.T) {
	feed := NewFeed()

	before := runtime.NumGoroutine()
	for i := 0; i < 200; i++ {
		_, cancel, err := feed.Watch(context.Background(), Options{})
		if err != nil {
			t.Fatalf("watch %d: %v", i, err)
		}
		cancel()
	}

	// let the released watchdogs finish
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if runtime.NumGoroutine() <= before+2 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("goroutines leaked: before=%d after=%d", before, runtime.NumGoroutine())
}
