package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors returned by the store.
var (
	ErrNotFound        = errors.New("notification not found")
	ErrChannelNotFound = errors.New("notification has no such delivery channel")
)

// ForbiddenTransitionError reports a delivery status mutation rejected by the
// state machine.
type ForbiddenTransitionError struct {
	From, To Status
}

func (e *ForbiddenTransitionError) Error() string {
	return fmt.Sprintf("delivery transition %s → %s is not allowed", e.From, e.To)
}

// Store persists notifications in Postgres. Delivery sub-documents live in a
// JSONB column and are mutated in place under a row lock, with every status
// change validated against the state machine.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a notification. Returns false when a notification for the
// same (sourceEventId, recipientId, type) already exists — re-processing a
// duplicate event neither creates a second record nor touches the delivery
// state of the existing one.
func (s *Store) Create(ctx context.Context, n *Notification) (bool, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(n.Data)
	if err != nil {
		return false, fmt.Errorf("marshal data: %w", err)
	}
	deliveries, err := json.Marshal(n.Deliveries)
	if err != nil {
		return false, fmt.Errorf("marshal deliveries: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO notifications
		   (id, recipient_id, recipient_type, recipient_email, type, title,
		    message, data, deliveries, priority, is_read, source_event_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, false, $11, $12)
		 ON CONFLICT (source_event_id, recipient_id, type) DO NOTHING`,
		n.ID, n.RecipientID, string(n.RecipientType), n.RecipientEmail,
		string(n.Type), n.Title, n.Message, string(data), string(deliveries),
		string(n.Priority), n.SourceEventID, n.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Get returns one page of a recipient's notifications (newest first), plus
// the recipient's total and unread counts.
func (s *Store) Get(ctx context.Context, recipientID string, limit, offset int, unreadOnly bool) ([]Notification, int, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, recipient_id, recipient_type, recipient_email, type, title,
	                 message, data, deliveries, priority, is_read, read_at,
	                 source_event_id, created_at
	          FROM notifications
	          WHERE recipient_id = $1`
	if unreadOnly {
		query += ` AND is_read = false`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, 0, err
		}
		items = append(items, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("iterate notifications: %w", err)
	}

	var total, unread int
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_read = false)
		 FROM notifications WHERE recipient_id = $1`,
		recipientID,
	).Scan(&total, &unread)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("count notifications: %w", err)
	}

	return items, total, unread, nil
}

// MarkRead flags one notification as read. Returns false when the
// notification does not exist. Channel delivery states are left untouched.
func (s *Store) MarkRead(ctx context.Context, notificationID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications
		 SET is_read = true, read_at = COALESCE(read_at, NOW())
		 WHERE id = $1`,
		notificationID,
	)
	if err != nil {
		return false, fmt.Errorf("markRead: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkAllRead flags every unread notification of a recipient as read and
// returns how many rows changed.
func (s *Store) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications
		 SET is_read = true, read_at = NOW()
		 WHERE recipient_id = $1 AND is_read = false`,
		recipientID,
	)
	if err != nil {
		return 0, fmt.Errorf("markAllRead: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UnreadCount returns how many unread notifications a recipient has.
func (s *Store) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = false`,
		recipientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("unreadCount: %w", err)
	}
	return count, nil
}

// UpdateDelivery mutates one channel's delivery entry under a row lock.
// The mutation's status change is validated against the state machine;
// a no-op status keeps the entry's other fields updatable (retry counts,
// error text).
func (s *Store) UpdateDelivery(ctx context.Context, notificationID string, ch Channel, mutate func(*ChannelDelivery)) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw []byte
	err = tx.QueryRow(ctx,
		`SELECT deliveries FROM notifications WHERE id = $1 FOR UPDATE`,
		notificationID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock deliveries: %w", err)
	}

	var deliveries []ChannelDelivery
	if err := json.Unmarshal(raw, &deliveries); err != nil {
		return fmt.Errorf("unmarshal deliveries: %w", err)
	}

	idx := -1
	for i := range deliveries {
		if deliveries[i].Channel == ch {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrChannelNotFound
	}

	from := deliveries[idx].Status
	mutate(&deliveries[idx])
	to := deliveries[idx].Status
	if to != from && !IsTransitionAllowed(from, to) {
		return &ForbiddenTransitionError{From: from, To: to}
	}

	updated, err := json.Marshal(deliveries)
	if err != nil {
		return fmt.Errorf("marshal deliveries: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE notifications SET deliveries = $1::jsonb WHERE id = $2`,
		string(updated), notificationID,
	); err != nil {
		return fmt.Errorf("update deliveries: %w", err)
	}
	return tx.Commit(ctx)
}

// MarkSent records a successful send on a channel.
func (s *Store) MarkSent(ctx context.Context, notificationID string, ch Channel, messageID string) error {
	now := time.Now().UTC()
	return s.UpdateDelivery(ctx, notificationID, ch, func(d *ChannelDelivery) {
		d.Status = StatusSent
		d.SentAt = &now
		d.MessageID = messageID
		d.Error = ""
	})
}

// MarkFailed records a failed send on a channel. FAILED is terminal.
func (s *Store) MarkFailed(ctx context.Context, notificationID string, ch Channel, sendErr error) error {
	return s.UpdateDelivery(ctx, notificationID, ch, func(d *ChannelDelivery) {
		d.Status = StatusFailed
		d.Error = sendErr.Error()
		d.RetryCount++
	})
}

// MarkDelivered records delivery on a channel. For IN_APP this happens
// immediately after Create: store-and-forward semantics, a recipient without
// a live connection still picks the notification up on the next poll.
func (s *Store) MarkDelivered(ctx context.Context, notificationID string, ch Channel) error {
	now := time.Now().UTC()
	return s.UpdateDelivery(ctx, notificationID, ch, func(d *ChannelDelivery) {
		d.Status = StatusDelivered
		d.DeliveredAt = &now
	})
}

// scanNotification reads one row from the full column list used by Get.
func scanNotification(rows pgx.Rows) (Notification, error) {
	var (
		n                         Notification
		recipientType, typ, prio  string
		dataRaw, deliveriesRaw    []byte
	)
	if err := rows.Scan(
		&n.ID, &n.RecipientID, &recipientType, &n.RecipientEmail, &typ, &n.Title,
		&n.Message, &dataRaw, &deliveriesRaw, &prio, &n.IsRead, &n.ReadAt,
		&n.SourceEventID, &n.CreatedAt,
	); err != nil {
		return Notification{}, fmt.Errorf("scan notification: %w", err)
	}
	n.RecipientType = RecipientType(recipientType)
	n.Type = Type(typ)
	n.Priority = Priority(prio)
	if len(dataRaw) > 0 {
		if err := json.Unmarshal(dataRaw, &n.Data); err != nil {
			return Notification{}, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	if len(deliveriesRaw) > 0 {
		if err := json.Unmarshal(deliveriesRaw, &n.Deliveries); err != nil {
			return Notification{}, fmt.Errorf("unmarshal deliveries: %w", err)
		}
	}
	return n, nil
}
