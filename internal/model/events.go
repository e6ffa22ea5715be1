package model

import (
	"encoding/json"
	"time"
)

// Event log topics consumed by this pipeline. One Redis stream per topic.
const (
	TopicJobCreated            = "job.created"
	TopicMatchingCompleted     = "matching.jm-to-ja.completed"
	TopicSubscriptionActivated = "subscription.premium.ja.created"
	TopicSubscriptionExpired   = "subscription.premium.ja.expired"
	TopicProfileCreated        = "profile.ja.search-profile.created"
	TopicProfileUpdated        = "profile.ja.search-profile.updated"
)

// Topics lists every consumed topic, in the order streams are read.
var Topics = []string{
	TopicJobCreated,
	TopicMatchingCompleted,
	TopicSubscriptionActivated,
	TopicSubscriptionExpired,
	TopicProfileCreated,
	TopicProfileUpdated,
}

// EventMetadata carries producer identity and request correlation.
type EventMetadata struct {
	Source        string `json:"source"`
	CorrelationID string `json:"correlationId"`
}

// Envelope is the wire format shared by every event on the log.
// Payload stays raw until the per-type handler decodes it.
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  EventMetadata   `json:"metadata"`
}

// JobCriteria is the criteria block of a job.created payload.
type JobCriteria struct {
	RequiredSkillIDs   []string         `json:"requiredSkillIds"`
	RequiredSkillNames []string         `json:"requiredSkillNames"`
	Location           string           `json:"location"`
	SalaryRange        SalaryRange      `json:"salaryRange"`
	EmploymentType     EmploymentType   `json:"employmentType"`
	IsFresherFriendly  bool             `json:"isFresherFriendly"`
}

// JobCreatedPayload is the payload of a job.created event.
type JobCreatedPayload struct {
	JobID       string      `json:"jobId"`
	Title       string      `json:"title"`
	CompanyID   string      `json:"companyId"`
	CompanyName string      `json:"companyName"`
	Criteria    JobCriteria `json:"criteria"`
}

// ToCriteria flattens the payload into the ephemeral MatchCriteria the
// scorer operates on.
func (p *JobCreatedPayload) ToCriteria() MatchCriteria {
	return MatchCriteria{
		JobID:              p.JobID,
		Title:              p.Title,
		RequiredSkillIDs:   p.Criteria.RequiredSkillIDs,
		RequiredSkillNames: p.Criteria.RequiredSkillNames,
		Location:           p.Criteria.Location,
		SalaryMin:          p.Criteria.SalaryRange.Min,
		SalaryMax:          p.Criteria.SalaryRange.Max,
		Currency:           p.Criteria.SalaryRange.Currency,
		EmploymentType:     p.Criteria.EmploymentType,
		IsFresherFriendly:  p.Criteria.IsFresherFriendly,
	}
}

// MatchEntry is one cross-system match result addressed to an entity.
type MatchEntry struct {
	MatchedEntityID   string         `json:"matchedEntityId"`
	MatchedEntityType string         `json:"matchedEntityType"`
	MatchScore        int            `json:"matchScore"`
	MatchedCriteria   map[string]any `json:"matchedCriteria"`
}

// MatchingCompletedPayload is the payload of matching.jm-to-ja.completed.
type MatchingCompletedPayload struct {
	CompanyID    string       `json:"companyId"`
	TotalMatches int          `json:"totalMatches"`
	Matches      []MatchEntry `json:"matches"`
}

// SearchProfile is the profile document embedded in profile and
// subscription lifecycle events.
type SearchProfile struct {
	DesiredRoles     []string         `json:"desiredRoles"`
	SkillIDs         []string         `json:"skillIds"`
	SkillNames       []string         `json:"skillNames"`
	ExperienceYears  int              `json:"experienceYears"`
	DesiredLocations []string         `json:"desiredLocations"`
	ExpectedSalary   SalaryRange      `json:"expectedSalary"`
	EmploymentTypes  []EmploymentType `json:"employmentTypes"`
	IsActive         bool             `json:"isActive"`
}

// ProfileEventPayload is the payload of profile.ja.search-profile.created
// and .updated. ChangedFields is producer-computed and may be absent.
type ProfileEventPayload struct {
	ProfileID     string        `json:"profileId"`
	UserID        string        `json:"userId"`
	UserType      string        `json:"userType"`
	SearchProfile SearchProfile `json:"searchProfile"`
	IsPremium     bool          `json:"isPremium"`
	ChangedFields []string      `json:"changedFields,omitempty"`
}

// SubscriptionActivatedPayload is the payload of subscription.premium.ja.created.
type SubscriptionActivatedPayload struct {
	ApplicantID      string         `json:"applicantId"`
	SubscriptionID   string         `json:"subscriptionId"`
	SubscriptionTier string         `json:"subscriptionTier"`
	StartDate        time.Time      `json:"startDate"`
	EndDate          time.Time      `json:"endDate"`
	SearchProfile    *SearchProfile `json:"searchProfile,omitempty"`
}

// SubscriptionExpiredPayload is the payload of subscription.premium.ja.expired.
type SubscriptionExpiredPayload struct {
	ApplicantID    string    `json:"applicantId"`
	SubscriptionID string    `json:"subscriptionId"`
	ExpiredAt      time.Time `json:"expiredAt"`
}
