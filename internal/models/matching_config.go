package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Weight keys recognised by the ranking engine.
const (
	WeightExperience         = "experience"
	WeightRating             = "rating"
	WeightQualificationBonus = "qualification_bonus"
)

// DefaultWeight applies to weight keys a school's settings do not mention.
const DefaultWeight = 1.0

// MatchingConfig is the effective per-school ranking and escalation configuration.
type MatchingConfig struct {
	BatchSize       int                `json:"batch_size"`
	WaitTimeMinutes int                `json:"wait_time_minutes"`
	Weights         map[string]float64 `json:"weights"`
}

// Weight returns the weight for key, or DefaultWeight when absent.
func (c MatchingConfig) Weight(key string) float64 {
	if w, ok := c.Weights[key]; ok {
		return w
	}
	return DefaultWeight
}

// WaitDuration is the delay before the next escalation check.
func (c MatchingConfig) WaitDuration() time.Duration {
	return time.Duration(c.WaitTimeMinutes) * time.Minute
}

// SchoolMatchingSettings is the raw per-school override document.
type SchoolMatchingSettings struct {
	SchoolID  string         `db:"id" json:"school_id"`
	Settings  types.JSONText `db:"matching_algorithm_settings" json:"settings"`
	UpdatedAt time.Time      `db:"updated_at" json:"updated_at"`
}
