// Package consumer drives the notification pipeline: it reads domain events
// from the log, syncs the profile projection, runs matching, creates
// notification records, and fans delivery out per channel.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/identity"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/mailer"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/model"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/notification"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/projection"
)

// ─── Collaborator interfaces ─────────────────────────────────────────────────

// ProjectionStore is the slice of the projection store the handlers need.
type ProjectionStore interface {
	Upsert(ctx context.Context, p model.ProfileProjection) error
	Get(ctx context.Context, profileID string) (*model.ProfileProjection, error)
	SetPremiumBySubscriber(ctx context.Context, subscriberID string, isPremium bool, expiresAt *time.Time) (int64, error)
}

// NotificationStore persists notifications and delivery state.
type NotificationStore interface {
	Create(ctx context.Context, n *notification.Notification) (bool, error)
	MarkSent(ctx context.Context, notificationID string, ch notification.Channel, messageID string) error
	MarkFailed(ctx context.Context, notificationID string, ch notification.Channel, sendErr error) error
	MarkDelivered(ctx context.Context, notificationID string, ch notification.Channel) error
}

// Matcher finds subscriber profiles matching one job's criteria.
type Matcher interface {
	FindMatches(ctx context.Context, criteria model.MatchCriteria) ([]model.MatchResult, error)
}

// RecipientDirectory resolves recipient ids to identities.
type RecipientDirectory interface {
	LookupRecipient(ctx context.Context, id string) identity.Lookup
}

// Publisher fans a created notification out to gateway processes.
type Publisher interface {
	Publish(ctx context.Context, recipientID string, notification any) error
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// Handlers holds one handler per event type. Each handler tolerates
// at-least-once delivery: notification creation is deduplicated on
// (sourceEventId, recipientId, type) and projection sync is an upsert.
type Handlers struct {
	projections   ProjectionStore
	notifications NotificationStore
	matcher       Matcher
	directory     RecipientDirectory
	publisher     Publisher
	mail          mailer.Sender
	metrics       *Metrics
}

// NewHandlers wires the handler set.
func NewHandlers(
	projections ProjectionStore,
	notifications NotificationStore,
	matcher Matcher,
	directory RecipientDirectory,
	publisher Publisher,
	mail mailer.Sender,
	metrics *Metrics,
) *Handlers {
	return &Handlers{
		projections:   projections,
		notifications: notifications,
		matcher:       matcher,
		directory:     directory,
		publisher:     publisher,
		mail:          mail,
		metrics:       metrics,
	}
}

// Handle dispatches one envelope to its event-type handler. Unknown event
// types are logged and acked — they are not an error.
func (h *Handlers) Handle(ctx context.Context, env model.Envelope) error {
	switch env.EventType {
	case model.TopicJobCreated:
		return h.handleJobCreated(ctx, env)
	case model.TopicMatchingCompleted:
		return h.handleMatchingCompleted(ctx, env)
	case model.TopicSubscriptionActivated:
		return h.handleSubscriptionActivated(ctx, env)
	case model.TopicSubscriptionExpired:
		return h.handleSubscriptionExpired(ctx, env)
	case model.TopicProfileCreated, model.TopicProfileUpdated:
		return h.handleProfileEvent(ctx, env)
	default:
		slog.Warn("no handler for event type", "eventType", env.EventType, "eventId", env.EventID)
		return nil
	}
}

// handleJobCreated scores every eligible profile against the job's criteria
// and notifies each non-zero match.
func (h *Handlers) handleJobCreated(ctx context.Context, env model.Envelope) error {
	var payload model.JobCreatedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode job.created payload: %w", err)
	}

	criteria := payload.ToCriteria()
	matches, err := h.matcher.FindMatches(ctx, criteria)
	if err != nil {
		return fmt.Errorf("find matches for job %s: %w", payload.JobID, err)
	}
	slog.Info("matching complete", "jobId", payload.JobID, "matches", len(matches))

	for _, m := range matches {
		matchedJSON, _ := json.Marshal(m.Matched)
		h.notify(ctx, env, m.Profile.SubscriberID, notification.TypeJobMatch, notification.PriorityNormal,
			fmt.Sprintf("New job match: %s", payload.Title),
			fmt.Sprintf("%s at %s matches your search profile (%d%% match).",
				payload.Title, payload.CompanyName, m.MatchScore),
			map[string]any{
				"jobId":           payload.JobID,
				"companyId":       payload.CompanyID,
				"companyName":     payload.CompanyName,
				"matchScore":      m.MatchScore,
				"matchedCriteria": json.RawMessage(matchedJSON),
			},
		)
	}
	return nil
}

// handleMatchingCompleted notifies subscribers addressed by a cross-system
// matching result.
func (h *Handlers) handleMatchingCompleted(ctx context.Context, env model.Envelope) error {
	var payload model.MatchingCompletedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode matching.completed payload: %w", err)
	}

	for _, m := range payload.Matches {
		if !strings.EqualFold(m.MatchedEntityType, string(notification.RecipientSubscriber)) {
			continue
		}
		h.notify(ctx, env, m.MatchedEntityID, notification.TypeJobMatch, notification.PriorityNormal,
			"You have a new job match",
			fmt.Sprintf("A new opportunity matches your search profile (%d%% match).", m.MatchScore),
			map[string]any{
				"companyId":       payload.CompanyID,
				"matchScore":      m.MatchScore,
				"matchedCriteria": m.MatchedCriteria,
			},
		)
	}
	return nil
}

// handleSubscriptionActivated flips the projection's premium flag on and
// sends a high-priority confirmation.
func (h *Handlers) handleSubscriptionActivated(ctx context.Context, env model.Envelope) error {
	var payload model.SubscriptionActivatedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode subscription.created payload: %w", err)
	}

	expiresAt := &payload.EndDate
	if payload.EndDate.IsZero() {
		expiresAt = nil
	}

	// An activation can arrive before any profile event. When the event
	// embeds the search profile, seed the projection from it so the new
	// premium subscriber matches immediately. The event carries no profile
	// id, so the seed row is keyed by applicant id until a profile event
	// writes the real one; the notification dedup key keeps a job from
	// notifying the same subscriber twice across the two rows.
	if sp := payload.SearchProfile; sp != nil {
		seed := model.ProfileProjection{
			ProfileID:        payload.ApplicantID,
			SubscriberID:     payload.ApplicantID,
			DesiredRoles:     sp.DesiredRoles,
			SkillIDs:         sp.SkillIDs,
			SkillNames:       sp.SkillNames,
			ExperienceYears:  sp.ExperienceYears,
			DesiredLocations: sp.DesiredLocations,
			ExpectedSalary:   sp.ExpectedSalary,
			EmploymentTypes:  sp.EmploymentTypes,
			IsActive:         sp.IsActive,
			IsPremium:        true,
			PremiumExpiresAt: expiresAt,
		}
		if err := h.projections.Upsert(ctx, seed); err != nil {
			return fmt.Errorf("seed projection for %s: %w", payload.ApplicantID, err)
		}
	}

	if _, err := h.projections.SetPremiumBySubscriber(ctx, payload.ApplicantID, true, expiresAt); err != nil {
		return fmt.Errorf("activate premium for %s: %w", payload.ApplicantID, err)
	}

	h.notify(ctx, env, payload.ApplicantID, notification.TypeSubscriptionActivated, notification.PriorityHigh,
		"Premium subscription activated",
		fmt.Sprintf("Your %s subscription is active. Job matching is now enabled for your search profiles.",
			payload.SubscriptionTier),
		map[string]any{
			"subscriptionId":   payload.SubscriptionID,
			"subscriptionTier": payload.SubscriptionTier,
			"endDate":          payload.EndDate,
		},
	)
	return nil
}

// handleSubscriptionExpired flips the premium flag off and notifies.
func (h *Handlers) handleSubscriptionExpired(ctx context.Context, env model.Envelope) error {
	var payload model.SubscriptionExpiredPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode subscription.expired payload: %w", err)
	}

	if _, err := h.projections.SetPremiumBySubscriber(ctx, payload.ApplicantID, false, nil); err != nil {
		return fmt.Errorf("expire premium for %s: %w", payload.ApplicantID, err)
	}

	h.notify(ctx, env, payload.ApplicantID, notification.TypeSubscriptionExpired, notification.PriorityHigh,
		"Premium subscription expired",
		"Your premium subscription has expired. Renew to keep receiving job matches.",
		map[string]any{
			"subscriptionId": payload.SubscriptionID,
			"expiredAt":      payload.ExpiredAt,
		},
	)
	return nil
}

// handleProfileEvent upserts the projection for subscriber profiles and
// sends a confirmation listing what changed.
func (h *Handlers) handleProfileEvent(ctx context.Context, env model.Envelope) error {
	var payload model.ProfileEventPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return fmt.Errorf("decode profile payload: %w", err)
	}

	// This pipeline serves subscribers only; organization-side profile
	// events flow through a different consumer.
	if !isSubscriberUserType(payload.UserType) {
		return nil
	}

	look := h.directory.LookupRecipient(ctx, payload.UserID)
	if look.Outcome != identity.OutcomeFound {
		h.skipRecipient(payload.UserID, look.Outcome, env)
		return nil
	}

	projected := projectionFromPayload(payload, look.Recipient.Email)

	// Prefer the producer-computed diff; recompute field-by-field against
	// the current projection when the payload omits it.
	changed := payload.ChangedFields
	if len(changed) == 0 {
		old, err := h.projections.Get(ctx, payload.ProfileID)
		if err != nil {
			old = nil // first sight of this profile
		}
		changed = projection.ChangedFields(old, projected)
	}

	if err := h.projections.Upsert(ctx, projected); err != nil {
		return fmt.Errorf("sync projection %s: %w", payload.ProfileID, err)
	}

	typ := notification.TypeProfileCreated
	title := "Search profile created"
	message := "Your job search profile was created. Matching jobs will be sent to you."
	if env.EventType == model.TopicProfileUpdated {
		typ = notification.TypeProfileUpdated
		title = "Search profile updated"
		message = fmt.Sprintf("Your job search profile was updated (%s).", strings.Join(changed, ", "))
	}

	h.createAndFanOut(ctx, env, look.Recipient, typ, notification.PriorityNormal, title, message,
		map[string]any{
			"profileId":     payload.ProfileID,
			"changedFields": changed,
		},
	)
	return nil
}

// ─── Shared delivery path ────────────────────────────────────────────────────

// notify resolves the recipient and, when found, runs the shared
// create-and-fan-out path. Lookup misses and failures are handled
// identically: skip this recipient, keep the batch going.
func (h *Handlers) notify(
	ctx context.Context,
	env model.Envelope,
	recipientID string,
	typ notification.Type,
	priority notification.Priority,
	title, message string,
	data map[string]any,
) {
	look := h.directory.LookupRecipient(ctx, recipientID)
	if look.Outcome != identity.OutcomeFound {
		h.skipRecipient(recipientID, look.Outcome, env)
		return
	}
	h.createAndFanOut(ctx, env, look.Recipient, typ, priority, title, message, data)
}

// createAndFanOut creates the notification record and drives every channel:
// the store write completes before the bridge publish, so a connected client
// is never pushed a notification that is not yet queryable.
func (h *Handlers) createAndFanOut(
	ctx context.Context,
	env model.Envelope,
	recipient *identity.Recipient,
	typ notification.Type,
	priority notification.Priority,
	title, message string,
	data map[string]any,
) {
	deliveries := []notification.ChannelDelivery{notification.NewDelivery(notification.ChannelInApp)}
	if recipient.Email != "" {
		deliveries = append(deliveries, notification.NewDelivery(notification.ChannelEmail))
	}

	n := &notification.Notification{
		ID:             uuid.NewString(),
		RecipientID:    recipient.ID,
		RecipientType:  notification.RecipientSubscriber,
		RecipientEmail: recipient.Email,
		Type:           typ,
		Title:          title,
		Message:        message,
		Data:           data,
		Deliveries:     deliveries,
		Priority:       priority,
		SourceEventID:  env.EventID,
		CreatedAt:      time.Now().UTC(),
	}

	created, err := h.notifications.Create(ctx, n)
	if err != nil {
		slog.Error("create notification failed", "recipientId", recipient.ID, "type", typ, "err", err)
		return
	}
	if !created {
		slog.Info("duplicate notification suppressed",
			"sourceEventId", env.EventID, "recipientId", recipient.ID, "type", typ)
		h.metrics.NotificationsDeduped.Inc()
		return
	}
	h.metrics.NotificationsCreated.Inc()

	// Realtime fan-out (non-fatal: a missed push is picked up on next poll).
	if err := h.publisher.Publish(ctx, recipient.ID, n.Realtime()); err != nil {
		slog.Warn("bridge publish failed", "notificationId", n.ID, "err", err)
	}

	// In-app is store-and-forward: persisted + fan-out attempted = delivered.
	if err := h.notifications.MarkDelivered(ctx, n.ID, notification.ChannelInApp); err != nil {
		slog.Warn("mark in-app delivered failed", "notificationId", n.ID, "err", err)
	}

	if recipient.Email != "" {
		h.sendEmail(ctx, n)
	}
}

// sendEmail attempts the email channel synchronously and records the result
// on that channel only. A failed send never rolls back the notification.
func (h *Handlers) sendEmail(ctx context.Context, n *notification.Notification) {
	err := h.mail.Send(ctx, mailer.Message{
		To:      n.RecipientEmail,
		Subject: n.Title,
		Body:    n.Message,
	})
	if err != nil {
		slog.Warn("email send failed", "notificationId", n.ID, "err", err)
		h.metrics.EmailFailures.Inc()
		if markErr := h.notifications.MarkFailed(ctx, n.ID, notification.ChannelEmail, err); markErr != nil {
			slog.Warn("record email failure failed", "notificationId", n.ID, "err", markErr)
		}
		return
	}
	if err := h.notifications.MarkSent(ctx, n.ID, notification.ChannelEmail, ""); err != nil {
		slog.Warn("record email sent failed", "notificationId", n.ID, "err", err)
	}
}

func (h *Handlers) skipRecipient(recipientID string, outcome identity.Outcome, env model.Envelope) {
	slog.Warn("recipient did not resolve, skipping",
		"recipientId", recipientID, "outcome", outcome,
		"eventId", env.EventID, "eventType", env.EventType)
	h.metrics.RecipientsSkipped.Inc()
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func isSubscriberUserType(userType string) bool {
	return strings.EqualFold(userType, "SUBSCRIBER") || strings.EqualFold(userType, "APPLICANT")
}

func projectionFromPayload(p model.ProfileEventPayload, email string) model.ProfileProjection {
	sp := p.SearchProfile
	return model.ProfileProjection{
		ProfileID:        p.ProfileID,
		SubscriberID:     p.UserID,
		SubscriberEmail:  email,
		DesiredRoles:     sp.DesiredRoles,
		SkillIDs:         sp.SkillIDs,
		SkillNames:       sp.SkillNames,
		ExperienceYears:  sp.ExperienceYears,
		DesiredLocations: sp.DesiredLocations,
		ExpectedSalary:   sp.ExpectedSalary,
		EmploymentTypes:  sp.EmploymentTypes,
		IsActive:         sp.IsActive,
		IsPremium:        p.IsPremium,
	}
}
