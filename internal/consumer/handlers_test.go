package consumer_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/consumer"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/identity"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/mailer"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/model"
	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/notification"
)

// ─── Fakes ───────────────────────────────────────────────────────────────────

type premiumCall struct {
	subscriberID string
	isPremium    bool
	expiresAt    *time.Time
}

type fakeProjections struct {
	byProfile    map[string]*model.ProfileProjection
	upserts      []model.ProfileProjection
	premiumCalls []premiumCall
}

func newFakeProjections() *fakeProjections {
	return &fakeProjections{byProfile: map[string]*model.ProfileProjection{}}
}

func (f *fakeProjections) Upsert(_ context.Context, p model.ProfileProjection) error {
	f.upserts = append(f.upserts, p)
	cp := p
	f.byProfile[p.ProfileID] = &cp
	return nil
}

func (f *fakeProjections) Get(_ context.Context, profileID string) (*model.ProfileProjection, error) {
	p, ok := f.byProfile[profileID]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func (f *fakeProjections) SetPremiumBySubscriber(_ context.Context, subscriberID string, isPremium bool, expiresAt *time.Time) (int64, error) {
	f.premiumCalls = append(f.premiumCalls, premiumCall{subscriberID, isPremium, expiresAt})
	return 1, nil
}

type channelCall struct {
	notificationID string
	channel        notification.Channel
}

type fakeNotifications struct {
	created   []*notification.Notification
	seen      map[string]bool // dedup key → already created
	delivered []channelCall
	sent      []channelCall
	failed    []channelCall
}

func newFakeNotifications() *fakeNotifications {
	return &fakeNotifications{seen: map[string]bool{}}
}

func (f *fakeNotifications) Create(_ context.Context, n *notification.Notification) (bool, error) {
	key := fmt.Sprintf("%s|%s|%s", n.SourceEventID, n.RecipientID, n.Type)
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	f.created = append(f.created, n)
	return true, nil
}

func (f *fakeNotifications) MarkSent(_ context.Context, id string, ch notification.Channel, _ string) error {
	f.sent = append(f.sent, channelCall{id, ch})
	return nil
}

func (f *fakeNotifications) MarkFailed(_ context.Context, id string, ch notification.Channel, _ error) error {
	f.failed = append(f.failed, channelCall{id, ch})
	return nil
}

func (f *fakeNotifications) MarkDelivered(_ context.Context, id string, ch notification.Channel) error {
	f.delivered = append(f.delivered, channelCall{id, ch})
	return nil
}

type fakeMatcher struct {
	results []model.MatchResult
	err     error
}

func (f *fakeMatcher) FindMatches(context.Context, model.MatchCriteria) ([]model.MatchResult, error) {
	return f.results, f.err
}

type fakeDirectory struct {
	lookups map[string]identity.Lookup
}

func (f *fakeDirectory) LookupRecipient(_ context.Context, id string) identity.Lookup {
	if l, ok := f.lookups[id]; ok {
		return l
	}
	return identity.Lookup{Outcome: identity.OutcomeNotFound}
}

type publishCall struct {
	recipientID string
	payload     any
}

type fakePublisher struct {
	calls []publishCall
}

func (f *fakePublisher) Publish(_ context.Context, recipientID string, payload any) error {
	f.calls = append(f.calls, publishCall{recipientID, payload})
	return nil
}

type fakeMailer struct {
	sent []mailer.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

// ─── Harness ─────────────────────────────────────────────────────────────────

type harness struct {
	handlers      *consumer.Handlers
	projections   *fakeProjections
	notifications *fakeNotifications
	matcher       *fakeMatcher
	directory     *fakeDirectory
	publisher     *fakePublisher
	mail          *fakeMailer
}

func newHarness() *harness {
	h := &harness{
		projections:   newFakeProjections(),
		notifications: newFakeNotifications(),
		matcher:       &fakeMatcher{},
		directory:     &fakeDirectory{lookups: map[string]identity.Lookup{}},
		publisher:     &fakePublisher{},
		mail:          &fakeMailer{},
	}
	h.handlers = consumer.NewHandlers(
		h.projections, h.notifications, h.matcher, h.directory, h.publisher, h.mail,
		consumer.NewMetrics(prometheus.NewRegistry()),
	)
	return h
}

func (h *harness) knowRecipient(id, email string) {
	h.directory.lookups[id] = identity.Lookup{
		Outcome:   identity.OutcomeFound,
		Recipient: &identity.Recipient{ID: id, Email: email, Name: "Test User", IsActive: true},
	}
}

func envelope(t *testing.T, eventID, eventType string, payload any) model.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return model.Envelope{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: time.Now(),
		Payload:   raw,
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestJobCreatedNotifiesEachMatch(t *testing.T) {
	h := newHarness()
	h.knowRecipient("sub-1", "sub1@example.com")
	h.matcher.results = []model.MatchResult{{
		Profile:    model.ProfileProjection{ProfileID: "p-1", SubscriberID: "sub-1"},
		MatchScore: 83,
		Matched:    model.MatchedCriteria{Location: true, Salary: true},
	}}

	env := envelope(t, "evt-1", model.TopicJobCreated, model.JobCreatedPayload{
		JobID: "job-1", Title: "Backend Engineer", CompanyID: "co-1", CompanyName: "Acme",
	})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.notifications.created) != 1 {
		t.Fatalf("created = %d, want 1", len(h.notifications.created))
	}
	n := h.notifications.created[0]
	if n.Type != notification.TypeJobMatch {
		t.Errorf("type = %s, want %s", n.Type, notification.TypeJobMatch)
	}
	if n.RecipientID != "sub-1" {
		t.Errorf("recipientId = %s, want sub-1", n.RecipientID)
	}
	if n.SourceEventID != "evt-1" {
		t.Errorf("sourceEventId = %s, want evt-1", n.SourceEventID)
	}
	if got := n.Data["matchScore"]; got != 83 {
		t.Errorf("data.matchScore = %v, want 83", got)
	}

	// In-app and email channels both open.
	if n.Delivery(notification.ChannelInApp) == nil || n.Delivery(notification.ChannelEmail) == nil {
		t.Fatalf("expected IN_APP and EMAIL deliveries, got %+v", n.Deliveries)
	}

	// Store-and-forward: in-app is delivered once persisted and fanned out.
	if len(h.notifications.delivered) != 1 || h.notifications.delivered[0].channel != notification.ChannelInApp {
		t.Errorf("delivered = %+v, want one IN_APP", h.notifications.delivered)
	}
	if len(h.notifications.sent) != 1 || h.notifications.sent[0].channel != notification.ChannelEmail {
		t.Errorf("sent = %+v, want one EMAIL", h.notifications.sent)
	}
	if len(h.mail.sent) != 1 || h.mail.sent[0].To != "sub1@example.com" {
		t.Errorf("mail.sent = %+v, want one to sub1@example.com", h.mail.sent)
	}
	if len(h.publisher.calls) != 1 || h.publisher.calls[0].recipientID != "sub-1" {
		t.Errorf("publish calls = %+v, want one for sub-1", h.publisher.calls)
	}
}

func TestJobCreatedRedeliveryIsDeduplicated(t *testing.T) {
	h := newHarness()
	h.knowRecipient("sub-1", "")
	h.matcher.results = []model.MatchResult{{
		Profile:    model.ProfileProjection{ProfileID: "p-1", SubscriberID: "sub-1"},
		MatchScore: 60,
	}}

	env := envelope(t, "evt-dup", model.TopicJobCreated, model.JobCreatedPayload{JobID: "job-1", Title: "Role"})
	for i := 0; i < 2; i++ {
		if err := h.handlers.Handle(context.Background(), env); err != nil {
			t.Fatalf("Handle #%d: %v", i+1, err)
		}
	}

	if len(h.notifications.created) != 1 {
		t.Errorf("created = %d, want 1 (redelivery suppressed)", len(h.notifications.created))
	}
	if len(h.publisher.calls) != 1 {
		t.Errorf("publish calls = %d, want 1 (no fan-out on duplicate)", len(h.publisher.calls))
	}
}

func TestJobCreatedMatcherErrorPropagates(t *testing.T) {
	h := newHarness()
	h.matcher.err = errors.New("projection query failed")

	env := envelope(t, "evt-2", model.TopicJobCreated, model.JobCreatedPayload{JobID: "job-1"})
	if err := h.handlers.Handle(context.Background(), env); err == nil {
		t.Fatal("expected error so the event is retried, got nil")
	}
	if len(h.notifications.created) != 0 {
		t.Errorf("created = %d, want 0", len(h.notifications.created))
	}
}

func TestJobCreatedUnresolvedRecipientIsSkipped(t *testing.T) {
	h := newHarness()
	h.knowRecipient("sub-ok", "ok@example.com")
	h.directory.lookups["sub-down"] = identity.Lookup{Outcome: identity.OutcomeLookupFailed}
	h.matcher.results = []model.MatchResult{
		{Profile: model.ProfileProjection{SubscriberID: "sub-down"}, MatchScore: 70},
		{Profile: model.ProfileProjection{SubscriberID: "sub-ok"}, MatchScore: 55},
	}

	env := envelope(t, "evt-3", model.TopicJobCreated, model.JobCreatedPayload{JobID: "job-1", Title: "Role"})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// The unresolved recipient is skipped, the rest of the batch proceeds.
	if len(h.notifications.created) != 1 || h.notifications.created[0].RecipientID != "sub-ok" {
		t.Fatalf("created = %+v, want exactly one for sub-ok", h.notifications.created)
	}
}

func TestMatchingCompletedNotifiesSubscriberEntriesOnly(t *testing.T) {
	h := newHarness()
	h.knowRecipient("sub-1", "")

	env := envelope(t, "evt-4", model.TopicMatchingCompleted, model.MatchingCompletedPayload{
		CompanyID: "co-1",
		Matches: []model.MatchEntry{
			{MatchedEntityID: "sub-1", MatchedEntityType: "subscriber", MatchScore: 90},
			{MatchedEntityID: "org-1", MatchedEntityType: "ORGANIZATION", MatchScore: 90},
		},
	})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.notifications.created) != 1 {
		t.Fatalf("created = %d, want 1 (organization entry ignored)", len(h.notifications.created))
	}
	if h.notifications.created[0].RecipientID != "sub-1" {
		t.Errorf("recipientId = %s, want sub-1", h.notifications.created[0].RecipientID)
	}
}

func TestSubscriptionActivatedEnablesPremium(t *testing.T) {
	h := newHarness()
	h.knowRecipient("sub-1", "sub1@example.com")
	endDate := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)

	env := envelope(t, "evt-5", model.TopicSubscriptionActivated, model.SubscriptionActivatedPayload{
		ApplicantID: "sub-1", SubscriptionID: "s-1", SubscriptionTier: "PREMIUM", EndDate: endDate,
	})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.projections.premiumCalls) != 1 {
		t.Fatalf("premium calls = %d, want 1", len(h.projections.premiumCalls))
	}
	call := h.projections.premiumCalls[0]
	if call.subscriberID != "sub-1" || !call.isPremium {
		t.Errorf("premium call = %+v, want sub-1 enabled", call)
	}
	if call.expiresAt == nil || !call.expiresAt.Equal(endDate) {
		t.Errorf("expiresAt = %v, want %v", call.expiresAt, endDate)
	}

	if len(h.notifications.created) != 1 {
		t.Fatalf("created = %d, want 1", len(h.notifications.created))
	}
	n := h.notifications.created[0]
	if n.Type != notification.TypeSubscriptionActivated || n.Priority != notification.PriorityHigh {
		t.Errorf("got type=%s priority=%s, want %s/%s",
			n.Type, n.Priority, notification.TypeSubscriptionActivated, notification.PriorityHigh)
	}
	if len(h.projections.upserts) != 0 {
		t.Errorf("upserts = %d, want 0 when the event embeds no search profile", len(h.projections.upserts))
	}
}

func TestSubscriptionActivatedSeedsEmbeddedProfile(t *testing.T) {
	h := newHarness()
	h.knowRecipient("sub-1", "sub1@example.com")
	endDate := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)

	env := envelope(t, "evt-5b", model.TopicSubscriptionActivated, model.SubscriptionActivatedPayload{
		ApplicantID: "sub-1", SubscriptionID: "s-1", SubscriptionTier: "PREMIUM", EndDate: endDate,
		SearchProfile: &model.SearchProfile{
			DesiredRoles: []string{"Backend Engineer"},
			SkillIDs:     []string{"sk-go"},
			IsActive:     true,
		},
	})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// The subscriber is matchable right away, before any profile event.
	if len(h.projections.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(h.projections.upserts))
	}
	p := h.projections.upserts[0]
	if p.SubscriberID != "sub-1" || !p.IsPremium || !p.IsActive {
		t.Errorf("seeded projection = %+v, want active premium for sub-1", p)
	}
	if p.PremiumExpiresAt == nil || !p.PremiumExpiresAt.Equal(endDate) {
		t.Errorf("seeded expiry = %v, want %v", p.PremiumExpiresAt, endDate)
	}
	if len(p.SkillIDs) != 1 || p.SkillIDs[0] != "sk-go" {
		t.Errorf("seeded skills = %v, want [sk-go]", p.SkillIDs)
	}
}

func TestSubscriptionExpiredDisablesPremium(t *testing.T) {
	h := newHarness()
	h.knowRecipient("sub-1", "")

	env := envelope(t, "evt-6", model.TopicSubscriptionExpired, model.SubscriptionExpiredPayload{
		ApplicantID: "sub-1", SubscriptionID: "s-1", ExpiredAt: time.Now(),
	})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.projections.premiumCalls) != 1 {
		t.Fatalf("premium calls = %d, want 1", len(h.projections.premiumCalls))
	}
	call := h.projections.premiumCalls[0]
	if call.isPremium || call.expiresAt != nil {
		t.Errorf("premium call = %+v, want disabled with nil expiry", call)
	}
	if h.notifications.created[0].Type != notification.TypeSubscriptionExpired {
		t.Errorf("type = %s, want %s", h.notifications.created[0].Type, notification.TypeSubscriptionExpired)
	}
}

func TestProfileCreatedSyncsProjection(t *testing.T) {
	h := newHarness()
	h.knowRecipient("user-1", "user1@example.com")

	env := envelope(t, "evt-7", model.TopicProfileCreated, model.ProfileEventPayload{
		ProfileID: "p-1", UserID: "user-1", UserType: "SUBSCRIBER",
		SearchProfile: model.SearchProfile{
			DesiredRoles: []string{"Backend Engineer"},
			SkillIDs:     []string{"sk-go"},
			IsActive:     true,
		},
		IsPremium: true,
	})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.projections.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(h.projections.upserts))
	}
	p := h.projections.upserts[0]
	if p.ProfileID != "p-1" || p.SubscriberID != "user-1" || p.SubscriberEmail != "user1@example.com" {
		t.Errorf("projection = %+v, want ids and email from payload+lookup", p)
	}
	if !p.IsPremium || !p.IsActive {
		t.Errorf("projection flags = premium:%v active:%v, want both true", p.IsPremium, p.IsActive)
	}

	if h.notifications.created[0].Type != notification.TypeProfileCreated {
		t.Errorf("type = %s, want %s", h.notifications.created[0].Type, notification.TypeProfileCreated)
	}
}

func TestProfileUpdatedReportsChangedFields(t *testing.T) {
	h := newHarness()
	h.knowRecipient("user-1", "")
	// Seed the current projection so the diff has a baseline.
	_ = h.projections.Upsert(context.Background(), model.ProfileProjection{
		ProfileID: "p-1", SubscriberID: "user-1",
		DesiredRoles: []string{"Backend Engineer"},
		SkillIDs:     []string{"sk-go"},
		IsActive:     true,
	})
	h.projections.upserts = nil

	env := envelope(t, "evt-8", model.TopicProfileUpdated, model.ProfileEventPayload{
		ProfileID: "p-1", UserID: "user-1", UserType: "SUBSCRIBER",
		SearchProfile: model.SearchProfile{
			DesiredRoles: []string{"Backend Engineer"},
			SkillIDs:     []string{"sk-go", "sk-postgres"},
			IsActive:     true,
		},
	})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(h.notifications.created) != 1 {
		t.Fatalf("created = %d, want 1", len(h.notifications.created))
	}
	n := h.notifications.created[0]
	if n.Type != notification.TypeProfileUpdated {
		t.Errorf("type = %s, want %s", n.Type, notification.TypeProfileUpdated)
	}
	changed, _ := n.Data["changedFields"].([]string)
	if len(changed) != 1 || changed[0] != "skillIds" {
		t.Errorf("changedFields = %v, want [skillIds]", n.Data["changedFields"])
	}
}

func TestProfileEventIgnoresNonSubscribers(t *testing.T) {
	h := newHarness()
	h.knowRecipient("org-user", "org@example.com")

	env := envelope(t, "evt-9", model.TopicProfileCreated, model.ProfileEventPayload{
		ProfileID: "p-org", UserID: "org-user", UserType: "ORGANIZATION",
	})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(h.projections.upserts) != 0 || len(h.notifications.created) != 0 {
		t.Errorf("expected nothing done for organization profiles, got upserts=%d created=%d",
			len(h.projections.upserts), len(h.notifications.created))
	}
}

func TestEmailFailureRecordsFailedDelivery(t *testing.T) {
	h := newHarness()
	h.knowRecipient("sub-1", "sub1@example.com")
	h.mail.err = errors.New("smtp: connection refused")
	h.matcher.results = []model.MatchResult{{
		Profile: model.ProfileProjection{SubscriberID: "sub-1"}, MatchScore: 40,
	}}

	env := envelope(t, "evt-10", model.TopicJobCreated, model.JobCreatedPayload{JobID: "job-1", Title: "Role"})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// The notification itself survives; only the email channel is FAILED.
	if len(h.notifications.created) != 1 {
		t.Fatalf("created = %d, want 1", len(h.notifications.created))
	}
	if len(h.notifications.failed) != 1 || h.notifications.failed[0].channel != notification.ChannelEmail {
		t.Errorf("failed = %+v, want one EMAIL", h.notifications.failed)
	}
	if len(h.notifications.delivered) != 1 || h.notifications.delivered[0].channel != notification.ChannelInApp {
		t.Errorf("delivered = %+v, want one IN_APP despite email failure", h.notifications.delivered)
	}
}

func TestUnknownEventTypeIsAcked(t *testing.T) {
	h := newHarness()
	env := envelope(t, "evt-11", "job.deleted", map[string]string{"jobId": "job-1"})
	if err := h.handlers.Handle(context.Background(), env); err != nil {
		t.Fatalf("unknown event type should not error, got %v", err)
	}
}
