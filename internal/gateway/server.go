package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// heartbeatInterval is how often every connection is pinged; a
	// connection that cannot be pinged is dropped from the registry.
	heartbeatInterval = 30 * time.Second

	// pongWait must exceed heartbeatInterval so a healthy connection always
	// answers a ping before its read deadline expires.
	pongWait   = heartbeatInterval + 10*time.Second
	writeWait  = 10 * time.Second
	maxMsgSize = 4096

	// closeMissingRecipient is sent when the handshake carries no
	// recipientId query parameter.
	closeMissingRecipient = 4001
)

// Server upgrades HTTP requests to WebSocket connections and pushes realtime
// notifications to them.
type Server struct {
	registry *Registry
	upgrader websocket.Upgrader
}

// NewServer returns a Server backed by registry.
func NewServer(registry *Registry) *Server {
	return &Server{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from the web app's origin; the
			// handshake is authenticated upstream by the API gateway.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type connectedAck struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleWS is the GET /ws handler. The recipient is identified by the
// recipientId query parameter; connections without one are closed with a
// policy code before entering the registry.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	recipientID := r.URL.Query().Get("recipientId")
	if recipientID == "" {
		msg := websocket.FormatCloseMessage(closeMissingRecipient, "recipientId is required")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	client := &Client{conn: conn, recipientID: recipientID}
	s.registry.Register(client)
	slog.Info("websocket connected", "recipientId", recipientID, "connections", s.registry.ConnectionCount())

	ack, _ := json.Marshal(connectedAck{
		Type:      "connected",
		Message:   "Realtime notifications enabled",
		Timestamp: time.Now().UTC(),
	})
	if err := client.writeMessage(websocket.TextMessage, ack); err != nil {
		s.drop(client)
		return
	}

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Inbound frames are ignored; the read loop only notices disconnects
	// and keeps the pong handler running.
	go func() {
		defer s.drop(client)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Push writes payload to every open connection of the recipient. Recipients
// without connections are a silent no-op: the notification is already
// persisted and will be seen on the next poll.
func (s *Server) Push(recipientID string, payload []byte) {
	for _, client := range s.registry.Clients(recipientID) {
		if err := client.writeMessage(websocket.TextMessage, payload); err != nil {
			slog.Warn("websocket push failed, dropping connection",
				"recipientId", recipientID, "err", err)
			s.drop(client)
		}
	}
}

// RunHeartbeat pings every connection on a fixed interval until ctx is done.
// Connections that fail the ping are dropped; their client is expected to
// reconnect.
func (s *Server) RunHeartbeat(done <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.registry.ForEach(func(client *Client) {
				client.mu.Lock()
				err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				client.mu.Unlock()
				if err != nil {
					slog.Info("heartbeat failed, dropping connection",
						"recipientId", client.recipientID, "err", err)
					s.drop(client)
				}
			})
		}
	}
}

func (s *Server) drop(client *Client) {
	s.registry.Unregister(client)
	client.conn.Close()
}
