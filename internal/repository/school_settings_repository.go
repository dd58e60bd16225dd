package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-substitute-api/internal/models"
)

// SchoolSettingsRepository reads and writes the per-school matching settings document.
type SchoolSettingsRepository struct {
	db *sqlx.DB
}

// NewSchoolSettingsRepository constructs the repository.
func NewSchoolSettingsRepository(db *sqlx.DB) *SchoolSettingsRepository {
	return &SchoolSettingsRepository{db: db}
}

// GetMatchingSettings returns the raw overrides; sql.ErrNoRows when the school does not exist.
func (r *SchoolSettingsRepository) GetMatchingSettings(ctx context.Context, schoolID string) (*models.SchoolMatchingSettings, error) {
	const query = `SELECT id, COALESCE(matching_algorithm_settings, '{}'::jsonb) AS matching_algorithm_settings, updated_at FROM schools WHERE id = $1`
	var settings models.SchoolMatchingSettings
	if err := r.db.GetContext(ctx, &settings, query, schoolID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateMatchingSettings replaces the overrides document.
func (r *SchoolSettingsRepository) UpdateMatchingSettings(ctx context.Context, schoolID string, settings types.JSONText) error {
	const query = `UPDATE schools SET matching_algorithm_settings = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, settings, time.Now().UTC(), schoolID)
	if err != nil {
		return fmt.Errorf("update matching settings: %w", err)
	}
	return requireAffected(result, "matching settings")
}
