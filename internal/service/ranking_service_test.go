package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
)

func TestScoreCandidateUsesWeights(t *testing.T) {
	profile := models.TeacherProfile{ExperienceYears: 10, Rating: 4.5}
	cfg := DefaultMatchingConfig()

	assert.InDelta(t, 10*0.5+4.5*2.0+2*1.0, ScoreCandidate(profile, models.QualificationMasters, cfg), 1e-9)

	cfg.Weights = map[string]float64{models.WeightRating: 3}
	assert.InDelta(t, 10*1.0+4.5*3+3*1.0, ScoreCandidate(profile, models.QualificationPhD, cfg), 1e-9)
}

func TestHighestQualification(t *testing.T) {
	cases := []struct {
		codes []string
		want  models.QualificationLevel
	}{
		{nil, models.QualificationOther},
		{[]string{"DIPLOMA"}, models.QualificationOther},
		{[]string{"bsc"}, models.QualificationBachelors},
		{[]string{"BA", " mba "}, models.QualificationMasters},
		{[]string{"PHD", "MSC", "BSC"}, models.QualificationPhD},
		{[]string{"Masters"}, models.QualificationMasters},
		{[]string{"Bachelors"}, models.QualificationBachelors},
		{[]string{"bachelor", "Master"}, models.QualificationMasters},
		{[]string{"Other"}, models.QualificationOther},
		{[]string{"Other", "Bachelors"}, models.QualificationBachelors},
		{[]string{"Doctorate", "Masters"}, models.QualificationPhD},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HighestQualification(tc.codes), "codes %v", tc.codes)
	}
}

func TestIsEligible(t *testing.T) {
	req := mathRequest()
	base := candidate("t1", 5, 4, "BSC")
	assert.True(t, IsEligible(req, base))

	requester := base
	requester.UserID = req.RequestedBy
	assert.False(t, IsEligible(req, requester))

	otherSubject := base
	otherSubject.Subjects = []string{"History"}
	assert.False(t, IsEligible(req, otherSubject))

	caseInsensitive := base
	caseInsensitive.Subjects = []string{" math "}
	assert.True(t, IsEligible(req, caseInsensitive))

	busy := base
	busy.AvailabilityStatus = models.AvailabilityBusy
	assert.False(t, IsEligible(req, busy))

	partial := base
	partial.EndTime = clock("10:30")
	assert.False(t, IsEligible(req, partial))

	exact := base
	exact.StartTime, exact.EndTime = req.StartTime, req.EndTime
	assert.True(t, IsEligible(req, exact))

	otherDay := base
	otherDay.Date = testDate.AddDate(0, 0, 1)
	assert.False(t, IsEligible(req, otherDay))
}

func TestRankCandidatesOrderingAndTies(t *testing.T) {
	req := mathRequest()
	cfg := DefaultMatchingConfig()
	candidates := []models.Candidate{
		candidate("t-b", 10, 4, "BSC"),
		candidate("t-a", 10, 4, "BSC"),
		candidate("t-top", 20, 5, "PHD"),
		candidate("t-b", 10, 4, "BSC"),
	}

	ranked := RankCandidates(req, candidates, cfg)
	require.Len(t, ranked, 3)
	assert.Equal(t, "t-top", ranked[0].UserID)
	assert.Equal(t, "t-a", ranked[1].UserID)
	assert.Equal(t, "t-b", ranked[2].UserID)
	assert.Equal(t, models.QualificationPhD, ranked[0].Level)

	reversed := []models.Candidate{candidates[3], candidates[2], candidates[1], candidates[0]}
	assert.Equal(t, ranked, RankCandidates(req, reversed, cfg))
}

func TestRankingEngineRejectsBadConfig(t *testing.T) {
	engine := NewRankingEngine(staticCandidates{candidates: numberedCandidates(2)}, nil)
	cfg := DefaultMatchingConfig()
	cfg.BatchSize = 0

	_, err := engine.Rank(context.Background(), mathRequest(), cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConfiguration))
}

func TestRankingEngineSourceFailure(t *testing.T) {
	engine := NewRankingEngine(staticCandidates{err: errors.New("connection reset")}, nil)

	_, err := engine.Rank(context.Background(), mathRequest(), DefaultMatchingConfig())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}

func TestNextBatchSkipsInvited(t *testing.T) {
	ranked := RankCandidates(mathRequest(), numberedCandidates(6), DefaultMatchingConfig())

	assert.Equal(t, []string{"t00", "t01"}, nextBatch(ranked, nil, 2))
	assert.Equal(t, []string{"t02", "t04"}, nextBatch(ranked, []string{"t00", "t01", "t03"}, 2))
	assert.Empty(t, nextBatch(ranked, []string{"t00", "t01", "t02", "t03", "t04", "t05"}, 2))
}
