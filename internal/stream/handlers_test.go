package stream

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-miletrack/internal/position"
	"backend-miletrack/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func testAuth(c *fiber.Ctx) error {
	c.Locals("user_id", "user-1")
	return c.Next()
}

func streamApp(t *testing.T) (*fiber.App, *Hub, *position.Registry, string) {
	t.Helper()

	feeds := position.NewRegistry()
	mgr := tracking.NewManager(tracking.ManagerConfig{}, feeds, nil, nil, nil, nil)
	t.Cleanup(mgr.Close)

	hub := NewHub(nil)
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, mgr, feeds, testAuth)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	t.Cleanup(func() { _ = app.Shutdown() })

	go func() {
		_ = app.Listener(ln)
	}()

	return app, hub, feeds, "ws://" + ln.Addr().String() + "/stream/ws"
}

func TestStreamUpgradeRequired(t *testing.T) {
	feeds := position.NewRegistry()
	mgr := tracking.NewManager(tracking.ManagerConfig{}, feeds, nil, nil, nil, nil)
	defer mgr.Close()

	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil), mgr, feeds, testAuth)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func TestStreamIngestsFixesAndBroadcastsState(t *testing.T) {
	_, hub, feeds, wsURL := streamApp(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	acc := 5.0
	fix := position.Fix{
		Lat:       34.05,
		Lng:       -118.24,
		Accuracy:  &acc,
		SpeedMps:  4.5,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, _ := json.Marshal(fix)
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write error: %v", err)
	}

	feed := feeds.Attach("user-1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := feed.Current(ctx, time.Minute)
	if err != nil {
		t.Fatalf("fix never reached feed: %v", err)
	}
	if got.Lat != fix.Lat || got.SpeedMps != fix.SpeedMps {
		t.Fatalf("unexpected fix %+v", got)
	}

	hub.Broadcast("user-1", []byte(`{"is_tracking":true}`))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != `{"is_tracking":true}` {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestStreamIgnoresMalformedMessages(t *testing.T) {
	_, hub, _, wsURL := streamApp(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	// connection stays usable after a bad frame
	time.Sleep(50 * time.Millisecond)
	hub.Broadcast("user-1", []byte("still here"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "still here" {
		t.Fatalf("unexpected message %q", msg)
	}
}
