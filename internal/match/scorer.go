// Package match implements the weighted job/profile matching algorithm.
//
// Scoring is table-driven: each factor carries a named weight and the weights
// sum to 100. Score is a pure function — no I/O, no clock, no randomness —
// so the scoring policy is unit-testable independently of persistence and
// event plumbing.
package match

import (
	"math"
	"strings"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/model"
)

// Factor weights. Must sum to 100.
const (
	WeightSkills         = 35
	WeightLocation       = 25
	WeightSalary         = 20
	WeightEmploymentType = 10
	WeightRoleMatch      = 10
)

// minOverlapWordLen: role/title words must be strictly longer than this to
// count for the word-overlap fallback. Short words ("of", "at") are noise.
const minOverlapWordLen = 2

// Score computes the 0–100 match score between one profile and one job's
// criteria, plus the per-factor breakdown.
func Score(p model.ProfileProjection, c model.MatchCriteria) model.MatchResult {
	var total float64
	matched := model.MatchedCriteria{
		SkillIDs:   []string{},
		SkillNames: []string{},
	}

	// Skills: exact-ID intersection, proportional weight. IDs must match
	// byte-for-byte — no fuzzy matching. Empty on either side contributes 0.
	// Both sides are treated as sets: each distinct required skill counts at
	// most once no matter how often either side repeats an id.
	if len(p.SkillIDs) > 0 && len(c.RequiredSkillIDs) > 0 {
		required := make(map[string]struct{}, len(c.RequiredSkillIDs))
		for _, id := range c.RequiredSkillIDs {
			required[id] = struct{}{}
		}
		requiredCount := len(required)
		for i, id := range p.SkillIDs {
			if _, ok := required[id]; !ok {
				continue
			}
			delete(required, id)
			matched.SkillIDs = append(matched.SkillIDs, id)
			if i < len(p.SkillNames) {
				matched.SkillNames = append(matched.SkillNames, p.SkillNames[i])
			}
		}
		total += float64(len(matched.SkillIDs)) / float64(requiredCount) * WeightSkills
	}

	// Location: no stated preference means any location is acceptable.
	matched.Location = locationMatches(p.DesiredLocations, c.Location)
	if matched.Location {
		total += WeightLocation
	}

	// Salary: full weight unless both sides state bounds and the ranges
	// are disjoint.
	matched.Salary = salaryMatches(p.ExpectedSalary, c.SalaryMin, c.SalaryMax)
	if matched.Salary {
		total += WeightSalary
	}

	matched.EmploymentType = employmentMatches(p.EmploymentTypes, c.EmploymentType, c.IsFresherFriendly)
	if matched.EmploymentType {
		total += WeightEmploymentType
	}

	matched.RoleMatch = roleMatches(p.DesiredRoles, c.Title)
	if matched.RoleMatch {
		total += WeightRoleMatch
	}

	return model.MatchResult{
		Profile:    p,
		MatchScore: int(math.Round(total)),
		Matched:    matched,
	}
}

// locationMatches is a case-insensitive substring test in either direction
// between any desired location and the job location.
func locationMatches(desired []string, jobLocation string) bool {
	if len(desired) == 0 {
		return true
	}
	job := strings.ToLower(strings.TrimSpace(jobLocation))
	for _, d := range desired {
		want := strings.ToLower(strings.TrimSpace(d))
		if want == "" || job == "" {
			continue
		}
		if strings.Contains(job, want) || strings.Contains(want, job) {
			return true
		}
	}
	return false
}

// salaryMatches implements the overlap test with unset bounds treated as
// 0 / +infinity. A profile without a stated minimum accepts any offer.
func salaryMatches(expected model.SalaryRange, jobMin, jobMax int64) bool {
	jobUnbounded := jobMin == 0 && jobMax == 0
	if jobUnbounded || expected.Min == 0 {
		return true
	}

	profileMax := expected.Max
	if profileMax == 0 {
		profileMax = math.MaxInt64
	}
	if jobMax == 0 {
		jobMax = math.MaxInt64
	}
	return jobMax >= expected.Min && jobMin <= profileMax
}

// employmentMatches checks the job's employment type against the profile's
// stated preferences. A profile with no preference default-accepts only
// FULL_TIME and PART_TIME. A fresher-friendly job additionally matches a
// profile that lists FRESHER.
func employmentMatches(preferences []model.EmploymentType, jobType model.EmploymentType, fresherFriendly bool) bool {
	if len(preferences) == 0 {
		return jobType == model.EmploymentFullTime || jobType == model.EmploymentPartTime
	}
	for _, p := range preferences {
		if p == jobType {
			return true
		}
		if fresherFriendly && p == model.EmploymentFresher {
			return true
		}
	}
	return false
}

// roleMatches tests desired roles against the job title: substring in either
// direction (case-insensitive), with a word-overlap fallback for titles that
// phrase the same role differently.
func roleMatches(desiredRoles []string, jobTitle string) bool {
	if len(desiredRoles) == 0 {
		return true
	}
	title := strings.ToLower(strings.TrimSpace(jobTitle))
	titleWords := strings.Fields(title)

	for _, role := range desiredRoles {
		r := strings.ToLower(strings.TrimSpace(role))
		if r == "" {
			continue
		}
		if title != "" && (strings.Contains(title, r) || strings.Contains(r, title)) {
			return true
		}
		for _, w := range strings.Fields(r) {
			if len(w) <= minOverlapWordLen {
				continue
			}
			for _, tw := range titleWords {
				if w == tw {
					return true
				}
			}
		}
	}
	return false
}
