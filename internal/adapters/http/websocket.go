package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/ecoleta/internal/pkg/metrics"
)

// wsMessage is sent from client to drive the session it watches.
type wsMessage struct {
	Action string `json:"action"` // "toggle" | "refresh"
	IDs    []int  `json:"ids"`
}

// BrowserSocketGuard rejects non-upgrade requests and unknown sessions
// before the connection is hijacked.
func BrowserSocketGuard(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if _, err := deps.Browser.Get(c.Params("id")); err != nil {
			return writeError(c, err)
		}
		return c.Next()
	}
}

// BrowserSocketHandler pushes a browser session's snapshot on connect and
// after every change. Clients may send {"action":"toggle","ids":[1,2]} or
// {"action":"refresh"}; results arrive as pushed snapshots.
func BrowserSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		id := c.Params("id")
		log := slog.With("session", id, "remote", c.RemoteAddr().String())

		sess, err := deps.Browser.Get(id)
		if err != nil {
			return
		}

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()
		log.Info("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		updates, cancel := sess.Subscribe()
		defer cancel()

		if err := writeJSON(sess.Snapshot()); err != nil {
			return
		}

		// Relay snapshots and keep-alive pings until the session or the socket ends.
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case snap, ok := <-updates:
					if !ok {
						_ = writeJSON(map[string]string{"status": "session closed"})
						mu.Lock()
						_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
						mu.Unlock()
						return
					}
					if err := writeJSON(snap); err != nil {
						return
					}
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			// Outcomes are delivered through the subscription.
			ctx, stop := context.WithTimeout(context.Background(), 15*time.Second)
			switch m.Action {
			case "toggle":
				if len(m.IDs) == 0 {
					_ = writeJSON(map[string]string{"error": "ids must not be empty"})
				} else if _, err := sess.Toggle(ctx, m.IDs...); err != nil && !fetchFailure(err) {
					_ = writeJSON(classify(err))
				}
			case "refresh":
				if _, err := sess.Refresh(ctx); err != nil && !fetchFailure(err) {
					_ = writeJSON(classify(err))
				}
			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
			stop()
		}

		close(done)
		log.Info("ws client disconnected")
	}
}
