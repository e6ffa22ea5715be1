package notification

import "time"

// RealtimeNotification is the compact wire shape pushed to WebSocket clients.
type RealtimeNotification struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Time        time.Time `json:"time"`
	Read        bool      `json:"read"`
}

// Realtime projects the durable record onto the realtime wire shape.
func (n *Notification) Realtime() RealtimeNotification {
	return RealtimeNotification{
		ID:          n.ID,
		Type:        string(n.Type),
		Title:       n.Title,
		Description: n.Message,
		Time:        n.CreatedAt,
		Read:        n.IsRead,
	}
}
