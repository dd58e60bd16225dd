package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

// CandidateSource lists teachers with availability that may cover a request. Implementations may
// over-approximate; the ranking engine re-checks eligibility.
type CandidateSource interface {
	ListCandidates(ctx context.Context, req models.SubstituteRequest) ([]models.Candidate, error)
}

// RankingEngine scores eligible teachers for a request.
type RankingEngine struct {
	source CandidateSource
	logger *zap.Logger
}

// NewRankingEngine constructs a ranking engine.
func NewRankingEngine(source CandidateSource, logger *zap.Logger) *RankingEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RankingEngine{source: source, logger: logger}
}

// Rank returns every eligible teacher ordered by score descending, ties broken by teacher id.
func (e *RankingEngine) Rank(ctx context.Context, req models.SubstituteRequest, cfg models.MatchingConfig) ([]models.RankedCandidate, error) {
	if err := ValidateMatchingConfig(cfg); err != nil {
		return nil, err
	}
	candidates, err := e.source.ListCandidates(ctx, req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load candidates")
	}
	ranked := RankCandidates(req, candidates, cfg)
	e.logger.Sugar().Debugw("ranked candidates", "request_id", req.ID, "candidates", len(candidates), "eligible", len(ranked))
	return ranked, nil
}

// RankCandidates filters, deduplicates and scores candidates. Deterministic for equal inputs.
func RankCandidates(req models.SubstituteRequest, candidates []models.Candidate, cfg models.MatchingConfig) []models.RankedCandidate {
	seen := make(map[string]struct{}, len(candidates))
	ranked := make([]models.RankedCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if !IsEligible(req, candidate) {
			continue
		}
		if _, dup := seen[candidate.UserID]; dup {
			continue
		}
		seen[candidate.UserID] = struct{}{}

		level := HighestQualification(candidate.Qualifications)
		ranked = append(ranked, models.RankedCandidate{
			Candidate: candidate,
			Level:     level,
			Score:     ScoreCandidate(candidate.TeacherProfile, level, cfg),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].UserID < ranked[j].UserID
	})
	return ranked
}

// IsEligible reports whether the candidate's interval can host the whole request.
func IsEligible(req models.SubstituteRequest, c models.Candidate) bool {
	if c.UserID == "" || c.UserID == req.RequestedBy {
		return false
	}
	if c.AvailabilityStatus != models.AvailabilityAvailable {
		return false
	}
	if !models.SameDate(c.Date, req.Date) {
		return false
	}
	if !c.Window().Contains(req.Window()) {
		return false
	}
	return teachesSubject(c.Subjects, req.Subject)
}

// ScoreCandidate computes experience*w_experience + rating*w_rating + tier*w_qualification_bonus.
func ScoreCandidate(p models.TeacherProfile, level models.QualificationLevel, cfg models.MatchingConfig) float64 {
	return float64(p.ExperienceYears)*cfg.Weight(models.WeightExperience) +
		p.Rating*cfg.Weight(models.WeightRating) +
		float64(level)*cfg.Weight(models.WeightQualificationBonus)
}

// HighestQualification returns the best tier among the teacher's degree codes.
func HighestQualification(codes []string) models.QualificationLevel {
	best := models.QualificationOther
	for _, code := range codes {
		if level := models.LevelOf(strings.ToUpper(strings.TrimSpace(code))); level > best {
			best = level
		}
	}
	return best
}

func teachesSubject(subjects []string, subject string) bool {
	subject = strings.TrimSpace(subject)
	for _, s := range subjects {
		if strings.EqualFold(strings.TrimSpace(s), subject) {
			return true
		}
	}
	return false
}

// nextBatch takes up to size teachers from ranked, skipping anyone in exclude.
func nextBatch(ranked []models.RankedCandidate, exclude []string, size int) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}
	batch := make([]string, 0, size)
	for _, candidate := range ranked {
		if len(batch) == size {
			break
		}
		if _, invited := skip[candidate.UserID]; invited {
			continue
		}
		batch = append(batch, candidate.UserID)
	}
	return batch
}
