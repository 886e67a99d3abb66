package ws

import (
	"log/slog"
	"net/http"

	"github.com/tradepost/messaging/internal/metrics"
	"github.com/tradepost/messaging/internal/service"
	"github.com/tradepost/messaging/internal/transport/http/middleware"
	"nhooyr.io/websocket"
)

// ServeWS returns an HTTP handler that upgrades to WebSocket.
// Auth is done via ?token=xxx query param (WebSocket can't send headers).
// The token subject is a raw handle and is resolved per connection.
func ServeWS(gateway Gateway, resolver *service.Resolver, registry *service.Registry, presence *service.Presence, jwtSecret string, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		handle, err := middleware.ParseSubject(tokenStr, jwtSecret)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		identity, err := resolver.Resolve(r.Context(), handle)
		if err != nil {
			http.Error(w, "unknown identity", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true, // Allow any origin (dev mode)
		})
		if err != nil {
			log.Warn("ws accept failed", "error", err)
			return
		}

		metrics.ConnectedClients.Inc()
		client := NewClient(conn, identity, gateway, registry, presence, log)
		go func() {
			<-client.done
			metrics.ConnectedClients.Dec()
		}()
		client.Start()
	}
}
