// Package gateway maintains the per-recipient WebSocket connection registry
// and pushes realtime notifications to every open connection of a recipient.
package gateway

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Client is one WebSocket connection bound to a recipient. Writes are
// serialized through mu because gorilla/websocket allows at most one
// concurrent writer per connection.
type Client struct {
	conn        *websocket.Conn
	recipientID string
	mu          sync.Mutex
}

// RecipientID returns the recipient this connection authenticated as.
func (c *Client) RecipientID() string { return c.recipientID }

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Registry tracks open connections grouped by recipient. A recipient may
// hold several connections (multiple tabs, devices); each is tracked
// independently and a push goes to all of them.
type Registry struct {
	mu          sync.RWMutex
	byRecipient map[string]map[*Client]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byRecipient: map[string]map[*Client]struct{}{}}
}

// Register adds a connection under its recipient.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byRecipient[c.recipientID]
	if !ok {
		set = map[*Client]struct{}{}
		r.byRecipient[c.recipientID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes a connection; the recipient's entry is dropped when its
// last connection goes. Unregistering an unknown client is a no-op.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byRecipient[c.recipientID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.byRecipient, c.recipientID)
	}
}

// Clients returns a snapshot of the recipient's open connections.
func (r *Registry) Clients(recipientID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byRecipient[recipientID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// ForEach calls fn for every registered connection, outside the lock.
func (r *Registry) ForEach(fn func(*Client)) {
	r.mu.RLock()
	all := make([]*Client, 0, len(r.byRecipient))
	for _, set := range r.byRecipient {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		fn(c)
	}
}

// ConnectionCount reports the number of open connections across recipients.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.byRecipient {
		n += len(set)
	}
	return n
}
