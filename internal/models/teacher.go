package models

import (
	"time"

	"github.com/lib/pq"
)

// QualificationLevel folds degree codes into the tiers used for scoring.
type QualificationLevel int

const (
	QualificationOther QualificationLevel = iota
	QualificationBachelors
	QualificationMasters
	QualificationPhD
)

// Tier names are accepted alongside degree codes; profiles often store "Masters" rather than "MSC".
var qualificationLevels = map[string]QualificationLevel{
	"OTHER":     QualificationOther,
	"BACHELOR":  QualificationBachelors,
	"BACHELORS": QualificationBachelors,
	"MASTER":    QualificationMasters,
	"MASTERS":   QualificationMasters,
	"DOCTORATE": QualificationPhD,

	"BTECH": QualificationBachelors,
	"BCA":   QualificationBachelors,
	"BSC":   QualificationBachelors,
	"BA":    QualificationBachelors,
	"BBA":   QualificationBachelors,
	"MTECH": QualificationMasters,
	"MCA":   QualificationMasters,
	"MSC":   QualificationMasters,
	"MA":    QualificationMasters,
	"MBA":   QualificationMasters,
	"MPHIL": QualificationMasters,
	"PHD":   QualificationPhD,
}

// LevelOf maps a single degree code to its tier. Unknown codes count as other.
func LevelOf(code string) QualificationLevel {
	return qualificationLevels[code]
}

// TeacherProfile is the read-only view of a teacher used for matching.
type TeacherProfile struct {
	UserID          string         `db:"user_id" json:"user_id"`
	FullName        string         `db:"full_name" json:"full_name"`
	Email           string         `db:"email" json:"email"`
	Subjects        pq.StringArray `db:"subjects" json:"subjects"`
	Qualifications  pq.StringArray `db:"qualifications" json:"qualifications"`
	ExperienceYears int            `db:"experience_years" json:"experience_years"`
	Rating          float64        `db:"rating" json:"rating"`
}

// Candidate pairs a teacher profile with one AVAILABLE interval that may cover a request.
type Candidate struct {
	TeacherProfile
	AvailabilityID     string             `db:"availability_id" json:"availability_id"`
	Date               time.Time          `db:"date" json:"date"`
	StartTime          ClockTime          `db:"start_time" json:"start_time"`
	EndTime            ClockTime          `db:"end_time" json:"end_time"`
	AvailabilityStatus AvailabilityStatus `db:"availability_status" json:"availability_status"`
}

// Window returns the candidate's availability interval.
func (c Candidate) Window() TimeWindow {
	return TimeWindow{Start: c.StartTime, End: c.EndTime}
}

// RankedCandidate is a scored candidate.
type RankedCandidate struct {
	Candidate
	Level QualificationLevel `json:"qualification_level"`
	Score float64            `json:"score"`
}
