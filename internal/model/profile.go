// Package model defines the shared data structures of the notification
// pipeline: search-profile projections, match criteria/results, and the
// event envelope consumed from the event log.
package model

import "time"

// EmploymentType mirrors the employment_type values used across JA services.
type EmploymentType string

const (
	EmploymentFullTime   EmploymentType = "FULL_TIME"
	EmploymentPartTime   EmploymentType = "PART_TIME"
	EmploymentContract   EmploymentType = "CONTRACT"
	EmploymentInternship EmploymentType = "INTERNSHIP"
	EmploymentFresher    EmploymentType = "FRESHER"
)

// SalaryRange is a half-open salary expectation. A zero Min means no stated
// minimum; a zero Max means unbounded above.
type SalaryRange struct {
	Min      int64  `json:"min"`
	Max      int64  `json:"max,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// ProfileProjection is the locally-maintained copy of a subscriber's search
// profile, kept in sync by projecting profile and subscription events.
//
// SkillNames[i] is the display name cached for SkillIDs[i].
type ProfileProjection struct {
	ProfileID        string
	SubscriberID     string
	SubscriberEmail  string
	DesiredRoles     []string
	SkillIDs         []string
	SkillNames       []string
	ExperienceYears  int
	DesiredLocations []string
	ExpectedSalary   SalaryRange
	EmploymentTypes  []EmploymentType
	IsActive         bool
	IsPremium        bool
	PremiumExpiresAt *time.Time
}

// EligibleForMatching reports whether the profile participates in matching:
// active, premium, and premium not expired at the given instant.
func (p *ProfileProjection) EligibleForMatching(now time.Time) bool {
	if !p.IsActive || !p.IsPremium {
		return false
	}
	return p.PremiumExpiresAt == nil || p.PremiumExpiresAt.After(now)
}

// MatchCriteria is derived from a job.created event and never persisted.
type MatchCriteria struct {
	JobID              string
	Title              string
	RequiredSkillIDs   []string
	RequiredSkillNames []string
	Location           string
	SalaryMin          int64
	SalaryMax          int64
	Currency           string
	EmploymentType     EmploymentType
	IsFresherFriendly  bool
}

// MatchedCriteria records which factors contributed to a match score.
type MatchedCriteria struct {
	SkillIDs       []string `json:"skillIds"`
	SkillNames     []string `json:"skillNames"`
	Location       bool     `json:"location"`
	Salary         bool     `json:"salary"`
	EmploymentType bool     `json:"employmentType"`
	RoleMatch      bool     `json:"roleMatch"`
}

// MatchResult pairs a profile with its score against one job's criteria.
type MatchResult struct {
	Profile    ProfileProjection
	MatchScore int
	Matched    MatchedCriteria
}
