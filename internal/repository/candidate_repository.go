package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// CandidateRepository reads teacher profiles joined with their open availability.
type CandidateRepository struct {
	db *sqlx.DB
}

// NewCandidateRepository constructs the repository.
func NewCandidateRepository(db *sqlx.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

// ListCandidates returns every AVAILABLE interval covering the request window whose teacher
// teaches the request subject. The requester is excluded.
func (r *CandidateRepository) ListCandidates(ctx context.Context, req models.SubstituteRequest) ([]models.Candidate, error) {
	const query = `
SELECT p.user_id, u.full_name, u.email, p.subjects, p.qualifications, p.experience_years, p.rating,
       a.id AS availability_id, a.date, a.start_time, a.end_time, a.status AS availability_status
FROM teacher_profiles p
JOIN users u ON u.id = p.user_id
JOIN teacher_availability a ON a.teacher_id = p.user_id
WHERE u.active = TRUE
  AND a.date = $1
  AND a.status = $2
  AND a.start_time <= $3
  AND a.end_time >= $4
  AND EXISTS (SELECT 1 FROM unnest(p.subjects) AS s WHERE lower(s) = lower($5))
  AND p.user_id <> $6
ORDER BY p.user_id, a.start_time`

	var candidates []models.Candidate
	if err := r.db.SelectContext(ctx, &candidates, query,
		req.Date, models.AvailabilityAvailable, req.StartTime, req.EndTime, req.Subject, req.RequestedBy,
	); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, nil
}
