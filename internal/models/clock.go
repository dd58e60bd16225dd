package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ClockTime is a time of day with minute precision, stored in Postgres TIME columns.
type ClockTime int

const minutesPerDay = 24 * 60

// NewClockTime builds a ClockTime from hour and minute components.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// EndOfDay is 24:00, valid only as the exclusive end of a window.
const EndOfDay = ClockTime(minutesPerDay)

// ParseClockTime accepts "15:04" or "15:04:05", plus "24:00" for the end of the day.
func ParseClockTime(raw string) (ClockTime, error) {
	raw = strings.TrimSpace(raw)
	if raw == "24:00" || raw == "24:00:00" {
		return EndOfDay, nil
	}
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return NewClockTime(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", raw)
}

// Minutes returns the minutes elapsed since midnight.
func (c ClockTime) Minutes() int { return int(c) }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// On anchors the clock time to the given calendar date in UTC.
func (c ClockTime) On(date time.Time) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, int(c)/60, int(c)%60, 0, 0, time.UTC)
}

// Value stores the clock time as a TIME literal.
func (c ClockTime) Value() (driver.Value, error) {
	if c < 0 || c > minutesPerDay {
		return nil, fmt.Errorf("clock time %d out of range", int(c))
	}
	return c.String() + ":00", nil
}

// Scan reads TIME columns, which lib/pq may hand over as time.Time or text.
func (c *ClockTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		*c = NewClockTime(v.Hour(), v.Minute())
		return nil
	case []byte:
		parsed, err := ParseClockTime(string(v))
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case string:
		parsed, err := ParseClockTime(v)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case nil:
		*c = 0
		return nil
	default:
		return fmt.Errorf("unsupported clock time type %T", value)
	}
}

// MarshalJSON renders "HH:MM".
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses "HH:MM" or "HH:MM:SS".
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClockTime(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TimeWindow is a half-open [Start, End) interval within a single day.
type TimeWindow struct {
	Start ClockTime `json:"start_time"`
	End   ClockTime `json:"end_time"`
}

// Minutes is the window length; zero or negative for an invalid window.
func (w TimeWindow) Minutes() int { return int(w.End - w.Start) }

// Valid reports whether the window has positive length.
func (w TimeWindow) Valid() bool { return w.End > w.Start }

// Contains reports whether other lies entirely within w.
func (w TimeWindow) Contains(other TimeWindow) bool {
	return w.Start <= other.Start && w.End >= other.End
}

// Overlaps reports whether the two windows share any instant.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start < other.End && other.Start < w.End
}

func (w TimeWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// SameDate compares the calendar dates of two timestamps, ignoring clock and zone.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
