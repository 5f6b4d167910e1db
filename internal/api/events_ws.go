package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/driftbrowser/tabcore/internal/events"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// eventsHandler upgrades the connection and streams tab lifecycle events as
// JSON text frames. Delivery is best-effort: the broker drops events for
// slow subscribers, so a client always converges on the latest state.
func eventsHandler(broker *events.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			slog.Debug("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
			return
		}

		id, ch := broker.Subscribe()
		slog.Info("event stream client connected", "subscriber_id", id, "remote", r.RemoteAddr)

		done := make(chan struct{})
		// Reader goroutine: we ignore client frames but need to notice the
		// close handshake.
		go func() {
			defer close(done)
			for {
				if _, _, err := wsutil.ReadClientData(conn); err != nil {
					return
				}
			}
		}()

		defer func() {
			broker.Unsubscribe(id)
			if err := conn.Close(); err != nil {
				slog.Debug("event stream close failed", "subscriber_id", id, "error", err)
			}
			slog.Info("event stream client disconnected", "subscriber_id", id)
		}()

		for {
			select {
			case <-done:
				return
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				payload, err := json.Marshal(evt)
				if err != nil {
					slog.Debug("event marshal failed", "error", err)
					continue
				}
				if err := wsutil.WriteServerText(conn, payload); err != nil {
					slog.Debug("event write failed", "subscriber_id", id, "error", err)
					return
				}
			}
		}
	}
}
