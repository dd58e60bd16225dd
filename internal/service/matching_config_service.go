package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/dto"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

type schoolSettingsStore interface {
	GetMatchingSettings(ctx context.Context, schoolID string) (*models.SchoolMatchingSettings, error)
	UpdateMatchingSettings(ctx context.Context, schoolID string, settings types.JSONText) error
}

// DefaultMatchingConfig returns the system-wide defaults that school overrides are merged onto.
func DefaultMatchingConfig() models.MatchingConfig {
	return models.MatchingConfig{
		BatchSize:       10,
		WaitTimeMinutes: 10,
		Weights: map[string]float64{
			models.WeightExperience:         0.5,
			models.WeightRating:             2.0,
			models.WeightQualificationBonus: 1.0,
		},
	}
}

// MatchingConfigService resolves and updates per-school matching configuration.
type MatchingConfigService struct {
	store     schoolSettingsStore
	cache     *CacheService
	cacheTTL  time.Duration
	defaults  models.MatchingConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// MatchingConfigServiceConfig tunes the service.
type MatchingConfigServiceConfig struct {
	Defaults models.MatchingConfig
	CacheTTL time.Duration
}

// NewMatchingConfigService constructs the service. Zero defaults fall back to DefaultMatchingConfig.
func NewMatchingConfigService(store schoolSettingsStore, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg MatchingConfigServiceConfig) *MatchingConfigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := DefaultMatchingConfig()
	if cfg.Defaults.BatchSize > 0 {
		base.BatchSize = cfg.Defaults.BatchSize
	}
	if cfg.Defaults.WaitTimeMinutes > 0 {
		base.WaitTimeMinutes = cfg.Defaults.WaitTimeMinutes
	}
	for key, weight := range cfg.Defaults.Weights {
		base.Weights[key] = weight
	}
	return &MatchingConfigService{
		store:     store,
		cache:     cache,
		cacheTTL:  cfg.CacheTTL,
		defaults:  base,
		validator: validate,
		logger:    logger,
	}
}

func matchingConfigCacheKey(schoolID string) string {
	return fmt.Sprintf("matching_config:%s", schoolID)
}

// Resolve returns the school's effective configuration: stored overrides deep-merged onto the defaults.
func (s *MatchingConfigService) Resolve(ctx context.Context, schoolID string) (models.MatchingConfig, error) {
	key := matchingConfigCacheKey(schoolID)
	var cached models.MatchingConfig
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	settings, err := s.store.GetMatchingSettings(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MatchingConfig{}, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return models.MatchingConfig{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load matching settings")
	}

	cfg, err := MergeMatchingConfig(s.defaults, settings.Settings)
	if err != nil {
		s.logger.Sugar().Warnw("malformed matching settings", "school_id", schoolID, "error", err)
		return models.MatchingConfig{}, err
	}

	_ = s.cache.Set(ctx, key, cfg, s.cacheTTL)
	return cfg, nil
}

// Update applies a partial override and returns the new effective configuration.
func (s *MatchingConfigService) Update(ctx context.Context, schoolID string, req dto.UpdateMatchingConfigRequest) (models.MatchingConfig, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.MatchingConfig{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid matching configuration")
	}

	settings, err := s.store.GetMatchingSettings(ctx, schoolID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MatchingConfig{}, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return models.MatchingConfig{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load matching settings")
	}

	doc := map[string]interface{}{}
	if raw := bytes.TrimSpace(settings.Settings); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &doc); err != nil {
			// a corrupt document is replaced by the update
			s.logger.Sugar().Warnw("discarding unreadable matching settings", "school_id", schoolID, "error", err)
			doc = map[string]interface{}{}
		}
	}
	if req.BatchSize != nil {
		doc["batch_size"] = *req.BatchSize
	}
	if req.WaitTimeMinutes != nil {
		doc["wait_time_minutes"] = *req.WaitTimeMinutes
	}
	if len(req.Weights) > 0 {
		weights, _ := doc["weights"].(map[string]interface{})
		if weights == nil {
			weights = map[string]interface{}{}
		}
		for key, value := range req.Weights {
			weights[key] = value
		}
		doc["weights"] = weights
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return models.MatchingConfig{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode matching settings")
	}
	effective, err := MergeMatchingConfig(s.defaults, encoded)
	if err != nil {
		return models.MatchingConfig{}, err
	}

	if err := s.store.UpdateMatchingSettings(ctx, schoolID, types.JSONText(encoded)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.MatchingConfig{}, appErrors.Clone(appErrors.ErrNotFound, "school not found")
		}
		return models.MatchingConfig{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save matching settings")
	}
	_ = s.cache.Invalidate(ctx, matchingConfigCacheKey(schoolID))

	s.logger.Sugar().Infow("matching settings updated", "school_id", schoolID, "batch_size", effective.BatchSize, "wait_time_minutes", effective.WaitTimeMinutes)
	return effective, nil
}

// MergeMatchingConfig overlays the raw per-school document onto defaults. Top-level keys and individual
// weight keys override independently; unknown top-level keys are ignored.
func MergeMatchingConfig(defaults models.MatchingConfig, raw []byte) (models.MatchingConfig, error) {
	merged := models.MatchingConfig{
		BatchSize:       defaults.BatchSize,
		WaitTimeMinutes: defaults.WaitTimeMinutes,
		Weights:         make(map[string]float64, len(defaults.Weights)),
	}
	for key, weight := range defaults.Weights {
		merged.Weights[key] = weight
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return merged, ValidateMatchingConfig(merged)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.MatchingConfig{}, configurationError("settings must be a JSON object")
	}

	if value, ok := doc["batch_size"]; ok && !isJSONNull(value) {
		n, err := positiveInteger(value)
		if err != nil {
			return models.MatchingConfig{}, configurationError("batch_size " + err.Error())
		}
		merged.BatchSize = n
	}
	if value, ok := doc["wait_time_minutes"]; ok && !isJSONNull(value) {
		n, err := positiveInteger(value)
		if err != nil {
			return models.MatchingConfig{}, configurationError("wait_time_minutes " + err.Error())
		}
		merged.WaitTimeMinutes = n
	}
	if value, ok := doc["weights"]; ok && !isJSONNull(value) {
		var weights map[string]json.RawMessage
		if err := json.Unmarshal(value, &weights); err != nil {
			return models.MatchingConfig{}, configurationError("weights must be an object")
		}
		for key, rawWeight := range weights {
			var weight float64
			if err := json.Unmarshal(rawWeight, &weight); err != nil {
				return models.MatchingConfig{}, configurationError(fmt.Sprintf("weight %q is not numeric", key))
			}
			merged.Weights[key] = weight
		}
	}

	return merged, ValidateMatchingConfig(merged)
}

// ValidateMatchingConfig rejects configurations the engine cannot run with.
func ValidateMatchingConfig(cfg models.MatchingConfig) error {
	if cfg.BatchSize < 1 {
		return configurationError("batch_size must be at least 1")
	}
	if cfg.WaitTimeMinutes < 1 {
		return configurationError("wait_time_minutes must be at least 1")
	}
	for key, weight := range cfg.Weights {
		if math.IsNaN(weight) || math.IsInf(weight, 0) {
			return configurationError(fmt.Sprintf("weight %q is not a finite number", key))
		}
	}
	return nil
}

func configurationError(message string) error {
	return appErrors.Clone(appErrors.ErrConfiguration, message)
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func positiveInteger(raw json.RawMessage) (int, error) {
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, errors.New("must be a number")
	}
	if value != math.Trunc(value) {
		return 0, errors.New("must be a whole number")
	}
	if value < 1 {
		return 0, errors.New("must be at least 1")
	}
	return int(value), nil
}
