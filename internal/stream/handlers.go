package stream

import (
	"encoding/json"

	"backend-miletrack/internal/position"
	"backend-miletrack/internal/tracking"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes wires the device socket. A connected device receives
// tracking state snapshots and pushes raw GPS fixes upstream on the same
// connection.
func RegisterRoutes(r fiber.Router, hub *Hub, mgr *tracking.Manager, feeds *position.Registry, authMiddleware fiber.Handler) {
	r.Get("/ws", authMiddleware, websocket.New(func(c *websocket.Conn) {
		userID, ok := c.Locals("user_id").(string)
		if !ok || userID == "" {
			return
		}

		client := hub.Register(userID)
		feed := feeds.Attach(userID)
		mgr.DeviceConnected(userID)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			var fix position.Fix
			if err := json.Unmarshal(msg, &fix); err != nil {
				continue
			}
			feed.Push(fix)
		}

		// Closing Send lets the writer goroutine drain and exit.
		hub.Unregister(client)
		<-done
	}))
}
