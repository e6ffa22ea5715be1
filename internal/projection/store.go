// Package projection maintains the local copy of subscriber search profiles,
// kept in sync by projecting profile and subscription lifecycle events.
package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ISYS3461-2025C-Atalanta-DEVision/JA-Backend-sub000/internal/model"
)

// ErrNotFound is returned when no projection exists for a profile id.
var ErrNotFound = errors.New("profile projection not found")

// Store persists profile projections in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore returns a Store backed by pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert creates or replaces the projection keyed by profile_id. Idempotent:
// replaying the same event converges on the same row.
func (s *Store) Upsert(ctx context.Context, p model.ProfileProjection) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO profile_projections
		   (profile_id, subscriber_id, subscriber_email, desired_roles, skill_ids,
		    skill_names, experience_years, desired_locations, salary_min, salary_max,
		    salary_currency, employment_types, is_active, is_premium,
		    premium_expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		 ON CONFLICT (profile_id) DO UPDATE SET
		   subscriber_id      = EXCLUDED.subscriber_id,
		   subscriber_email   = EXCLUDED.subscriber_email,
		   desired_roles      = EXCLUDED.desired_roles,
		   skill_ids          = EXCLUDED.skill_ids,
		   skill_names        = EXCLUDED.skill_names,
		   experience_years   = EXCLUDED.experience_years,
		   desired_locations  = EXCLUDED.desired_locations,
		   salary_min         = EXCLUDED.salary_min,
		   salary_max         = EXCLUDED.salary_max,
		   salary_currency    = EXCLUDED.salary_currency,
		   employment_types   = EXCLUDED.employment_types,
		   is_active          = EXCLUDED.is_active,
		   is_premium         = EXCLUDED.is_premium,
		   premium_expires_at = EXCLUDED.premium_expires_at,
		   updated_at         = NOW()`,
		p.ProfileID, p.SubscriberID, p.SubscriberEmail, p.DesiredRoles, p.SkillIDs,
		p.SkillNames, p.ExperienceYears, p.DesiredLocations, p.ExpectedSalary.Min,
		p.ExpectedSalary.Max, p.ExpectedSalary.Currency,
		employmentTypesToStrings(p.EmploymentTypes), p.IsActive, p.IsPremium,
		p.PremiumExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert projection %s: %w", p.ProfileID, err)
	}
	return nil
}

// Get returns the projection for a profile id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, profileID string) (*model.ProfileProjection, error) {
	row := s.pool.QueryRow(ctx,
		selectColumns+` FROM profile_projections WHERE profile_id = $1`,
		profileID,
	)
	p, err := scanProjection(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SetPremiumBySubscriber updates the premium flag and expiry on every
// projection owned by a subscriber. Returns the number of rows touched.
func (s *Store) SetPremiumBySubscriber(ctx context.Context, subscriberID string, isPremium bool, expiresAt *time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profile_projections
		 SET is_premium = $2, premium_expires_at = $3, updated_at = NOW()
		 WHERE subscriber_id = $1`,
		subscriberID, isPremium, expiresAt,
	)
	if err != nil {
		return 0, fmt.Errorf("set premium for subscriber %s: %w", subscriberID, err)
	}
	return tag.RowsAffected(), nil
}

// ActiveCandidates returns every profile eligible for matching: active,
// premium, and premium not expired. The filter runs in SQL so the scored
// set is bounded before any scoring happens.
func (s *Store) ActiveCandidates(ctx context.Context) ([]model.ProfileProjection, error) {
	rows, err := s.pool.Query(ctx,
		selectColumns+` FROM profile_projections
		 WHERE is_active = true
		   AND is_premium = true
		   AND (premium_expires_at IS NULL OR premium_expires_at > NOW())
		 ORDER BY profile_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var candidates []model.ProfileProjection
	for rows.Next() {
		p, err := scanProjection(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, p)
	}
	return candidates, rows.Err()
}

// ExpirePremium flips is_premium off on every projection whose premium window
// has passed. Run periodically so the candidate query stays cheap.
func (s *Store) ExpirePremium(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE profile_projections
		 SET is_premium = false, updated_at = NOW()
		 WHERE is_premium = true
		   AND premium_expires_at IS NOT NULL
		   AND premium_expires_at <= NOW()`,
	)
	if err != nil {
		return 0, fmt.Errorf("expire premium: %w", err)
	}
	return tag.RowsAffected(), nil
}

const selectColumns = `SELECT profile_id, subscriber_id, subscriber_email, desired_roles,
       skill_ids, skill_names, experience_years, desired_locations, salary_min,
       salary_max, salary_currency, employment_types, is_active, is_premium,
       premium_expires_at`

func scanProjection(row pgx.Row) (model.ProfileProjection, error) {
	var (
		p               model.ProfileProjection
		employmentTypes []string
	)
	if err := row.Scan(
		&p.ProfileID, &p.SubscriberID, &p.SubscriberEmail, &p.DesiredRoles,
		&p.SkillIDs, &p.SkillNames, &p.ExperienceYears, &p.DesiredLocations,
		&p.ExpectedSalary.Min, &p.ExpectedSalary.Max, &p.ExpectedSalary.Currency,
		&employmentTypes, &p.IsActive, &p.IsPremium, &p.PremiumExpiresAt,
	); err != nil {
		return model.ProfileProjection{}, err
	}
	p.EmploymentTypes = employmentTypesFromStrings(employmentTypes)
	return p, nil
}

func employmentTypesToStrings(types []model.EmploymentType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func employmentTypesFromStrings(values []string) []model.EmploymentType {
	out := make([]model.EmploymentType, len(values))
	for i, v := range values {
		out[i] = model.EmploymentType(v)
	}
	return out
}
