package client

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/httputil"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The agent binds to loopback; any local page may connect.
		return true
	},
}

// Handler returns an HTTP handler upgrading connections into hub clients.
// Clients identify with ?clientId= and report their page with ?pageUrl=.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := httputil.QueryString(r, "clientId", "client-"+uuid.New().String()[:8])
		pageURL := httputil.QueryString(r, "pageUrl", "")

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Errorf("websocket upgrade: %v", err)
			return
		}

		c := NewClient(conn, hub, clientID, pageURL)
		hub.register <- c

		go c.writePump()
		go c.readPump()
	}
}
