// Delivery state machine for a single channel of a notification.
//
// Valid status graph:
//
//	PENDING ──► SENT ──► DELIVERED ──► READ
//	    │         ▲
//	    ├─────────┴──► DELIVERED  (IN_APP store-and-forward jump)
//	    └──► FAILED
//
// FAILED and READ are terminal. There is no automatic retry loop:
// RetryCount is recorded on failure but not consumed by a scheduler.
package notification

import "fmt"

// Status values for a ChannelDelivery.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusSent      Status = "SENT"
	StatusFailed    Status = "FAILED"
	StatusDelivered Status = "DELIVERED"
	StatusRead      Status = "READ"
)

// validTransitions lists every allowed (from → to) pair. PENDING → DELIVERED
// exists for the in-app channel, where "delivered" means persisted and
// fan-out attempted, not that a live socket received it.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusSent, StatusFailed, StatusDelivered},
	StatusSent:      {StatusDelivered},
	StatusDelivered: {StatusRead},
	// FAILED and READ are terminal — no outgoing transitions
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusSent, StatusFailed, StatusDelivered, StatusRead:
		return st, nil
	}
	return "", fmt.Errorf("unknown delivery status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine. Status only ever moves forward.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal state — no outgoing transitions
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}
