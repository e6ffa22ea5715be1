// Package notification owns the durable notification record, its per-channel
// delivery state machine, and the Postgres-backed store with the read/unread
// query surface.
package notification

import "time"

// RecipientType distinguishes the two audiences notifications address.
type RecipientType string

const (
	RecipientSubscriber   RecipientType = "SUBSCRIBER"
	RecipientOrganization RecipientType = "ORGANIZATION"
)

// Type classifies what a notification is about.
type Type string

const (
	TypeJobMatch              Type = "JOB_MATCH"
	TypeSubscriptionActivated Type = "SUBSCRIPTION_ACTIVATED"
	TypeSubscriptionExpired   Type = "SUBSCRIPTION_EXPIRED"
	TypeProfileCreated        Type = "PROFILE_CREATED"
	TypeProfileUpdated        Type = "PROFILE_UPDATED"
)

// Priority of a notification.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
)

// Channel is a distinct delivery transport.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// ChannelDelivery tracks one channel's delivery attempt for a notification.
// Each channel appears at most once per notification.
type ChannelDelivery struct {
	Channel     Channel    `json:"channel"`
	Status      Status     `json:"status"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	MessageID   string     `json:"messageId,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retryCount"`
}

// Notification is the durable record of one delivered-or-attempted
// notification. ID is a fresh UUID per creation attempt; idempotency is
// carried by the store's (SourceEventID, RecipientID, Type) dedup key.
type Notification struct {
	ID             string            `json:"id"`
	RecipientID    string            `json:"recipientId"`
	RecipientType  RecipientType     `json:"recipientType"`
	RecipientEmail string            `json:"recipientEmail,omitempty"`
	Type           Type              `json:"type"`
	Title          string            `json:"title"`
	Message        string            `json:"message"`
	Data           map[string]any    `json:"data,omitempty"`
	Deliveries     []ChannelDelivery `json:"deliveries"`
	Priority       Priority          `json:"priority"`
	IsRead         bool              `json:"isRead"`
	ReadAt         *time.Time        `json:"readAt,omitempty"`
	SourceEventID  string            `json:"sourceEventId"`
	CreatedAt      time.Time         `json:"createdAt"`
}

// Delivery returns the delivery entry for a channel, or nil when the
// notification carries no such channel.
func (n *Notification) Delivery(ch Channel) *ChannelDelivery {
	for i := range n.Deliveries {
		if n.Deliveries[i].Channel == ch {
			return &n.Deliveries[i]
		}
	}
	return nil
}

// NewDelivery returns a fresh PENDING delivery entry for a channel.
func NewDelivery(ch Channel) ChannelDelivery {
	return ChannelDelivery{Channel: ch, Status: StatusPending}
}
