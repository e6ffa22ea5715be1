package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/model"
)

const (
	// Group is the consumer group shared by all consumer replicas.
	Group = "ja-notification"

	// DeadLetterStream receives envelopes that exhausted their retries.
	DeadLetterStream = "notifications.dead-letter"

	// eventField is the stream entry field carrying the JSON envelope.
	eventField = "event"

	readBlock = 5 * time.Second
	readCount = 16

	// claimMinIdle is how long an entry must sit in another consumer's
	// pending list before a replica may claim it. Long enough that an
	// actively retrying handler (maxRetries × backoff) is never raced.
	claimMinIdle = time.Minute
)

// Consumer reads the event log (one Redis stream per topic) through a
// consumer group and drives Handlers. Events are processed sequentially in
// stream order; a failed handler is retried with exponential backoff and
// finally dead-lettered, so one poisoned event never blocks the log.
type Consumer struct {
	rdb        *redis.Client
	handlers   *Handlers
	metrics    *Metrics
	name       string
	streams    []string
	maxRetries int
	backoff    time.Duration
}

// New returns a Consumer named name reading every pipeline topic. The name
// must be stable across restarts of the same replica (hostname, not a random
// id): entries a crashed replica read but never acked stay parked under its
// name in the group's pending list, and are recovered by the reclaim pass on
// the next start.
func New(rdb *redis.Client, handlers *Handlers, metrics *Metrics, name string, maxRetries int) *Consumer {
	return &Consumer{
		rdb:        rdb,
		handlers:   handlers,
		metrics:    metrics,
		name:       name,
		streams:    model.Topics,
		maxRetries: maxRetries,
		backoff:    200 * time.Millisecond,
	}
}

// Run blocks reading the event log until ctx is cancelled. Before reading
// new entries it reclaims anything left pending by a dead consumer, so a
// crash between read and ack delays an event rather than losing it.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroups(ctx); err != nil {
		return err
	}
	c.reclaimPending(ctx)
	slog.Info("event consumer started", "group", Group, "consumer", c.name, "streams", len(c.streams))

	// XREADGROUP wants stream names followed by one ">" cursor per stream.
	args := make([]string, 0, len(c.streams)*2)
	args = append(args, c.streams...)
	for range c.streams {
		args = append(args, ">")
	}

	for {
		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    Group,
			Consumer: c.name,
			Streams:  args,
			Count:    readCount,
			Block:    readBlock,
		}).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue // idle block elapsed
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("event log read failed", "err", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				c.process(ctx, stream.Stream, msg)
			}
		}
	}
}

// reclaimPending takes over entries that were delivered to a consumer but
// never acked and have sat idle past claimMinIdle — the leftovers of a
// crashed or shut-down replica — and runs them through the normal processing
// path. XAUTOCLAIM cursors through each stream's pending list until the
// cursor wraps to 0-0.
func (c *Consumer) reclaimPending(ctx context.Context) {
	for _, stream := range c.streams {
		start := "0-0"
		claimed := 0
		for {
			msgs, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   stream,
				Group:    Group,
				Consumer: c.name,
				MinIdle:  claimMinIdle,
				Start:    start,
				Count:    readCount,
			}).Result()
			if err != nil {
				slog.Warn("pending reclaim failed", "stream", stream, "err", err)
				break
			}
			for _, msg := range msgs {
				c.process(ctx, stream, msg)
				claimed++
			}
			if next == "0-0" {
				break
			}
			start = next
		}
		if claimed > 0 {
			slog.Info("reclaimed pending entries", "stream", stream, "count", claimed)
		}
	}
}

// ensureGroups creates the consumer group on every stream, tolerating both
// pre-existing groups and not-yet-created streams.
func (c *Consumer) ensureGroups(ctx context.Context) error {
	for _, stream := range c.streams {
		err := c.rdb.XGroupCreateMkStream(ctx, stream, Group, "$").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create group on %s: %w", stream, err)
		}
	}
	return nil
}

// process handles one stream entry end to end and always acks it: either
// the handler succeeded, or the envelope went to the dead-letter stream.
func (c *Consumer) process(ctx context.Context, stream string, msg redis.XMessage) {
	raw, ok := msg.Values[eventField].(string)
	if !ok {
		slog.Error("stream entry without event field", "stream", stream, "id", msg.ID)
		c.deadLetter(ctx, stream, fmt.Sprintf("%v", msg.Values), errors.New("missing event field"))
		c.ack(ctx, stream, msg.ID)
		return
	}

	var env model.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		slog.Error("undecodable envelope", "stream", stream, "id", msg.ID, "err", err)
		c.deadLetter(ctx, stream, raw, err)
		c.ack(ctx, stream, msg.ID)
		return
	}

	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.metrics.EventsRetried.Inc()
			select {
			case <-time.After(c.backoff << (attempt - 1)):
			case <-ctx.Done():
				return // not acked: stays pending, reclaimed on next start
			}
		}
		if err = c.handlers.Handle(ctx, env); err == nil {
			break
		}
		slog.Warn("event handler failed",
			"eventType", env.EventType, "eventId", env.EventID,
			"attempt", attempt+1, "err", err)
	}

	if err != nil {
		c.deadLetter(ctx, stream, raw, err)
		c.metrics.EventsProcessed.WithLabelValues(env.EventType, "error").Inc()
	} else {
		c.metrics.EventsProcessed.WithLabelValues(env.EventType, "ok").Inc()
	}
	c.ack(ctx, stream, msg.ID)
}

// deadLetter appends the raw envelope plus failure context to the
// dead-letter stream for offline inspection and replay.
func (c *Consumer) deadLetter(ctx context.Context, stream, raw string, cause error) {
	c.metrics.EventsDeadLettered.Inc()
	err := c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStream,
		Values: map[string]any{
			eventField: raw,
			"stream":   stream,
			"error":    cause.Error(),
			"failedAt": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		slog.Error("dead-letter append failed", "stream", stream, "err", err)
	}
}

func (c *Consumer) ack(ctx context.Context, stream, id string) {
	if err := c.rdb.XAck(ctx, stream, Group, id).Err(); err != nil {
		slog.Warn("ack failed", "stream", stream, "id", id, "err", err)
	}
}
