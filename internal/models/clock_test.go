package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClockTime(t *testing.T) {
	cases := map[string]ClockTime{
		"00:00":    0,
		"09:30":    NewClockTime(9, 30),
		"23:59:00": NewClockTime(23, 59),
		" 24:00 ":  EndOfDay,
		"24:00:00": EndOfDay,
	}
	for raw, want := range cases {
		got, err := ParseClockTime(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "24:01", "25:00", "9h30", "12:60"} {
		_, err := ParseClockTime(raw)
		assert.Error(t, err, raw)
	}
}

func TestClockTimeEndOfDayRoundTrip(t *testing.T) {
	value, err := EndOfDay.Value()
	require.NoError(t, err)
	assert.Equal(t, "24:00:00", value)

	var scanned ClockTime
	require.NoError(t, scanned.Scan([]byte("24:00:00")))
	assert.Equal(t, EndOfDay, scanned)
	assert.Equal(t, "24:00", scanned.String())

	_, err = ClockTime(minutesPerDay + 1).Value()
	assert.Error(t, err)
	_, err = ClockTime(-1).Value()
	assert.Error(t, err)
}

func TestClockTimeEndOfDayAnchorsToMidnight(t *testing.T) {
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC), EndOfDay.On(date))

	evening := TimeWindow{Start: NewClockTime(18, 0), End: EndOfDay}
	assert.True(t, evening.Valid())
	assert.True(t, evening.Contains(TimeWindow{Start: NewClockTime(22, 0), End: EndOfDay}))
	assert.Equal(t, 360, evening.Minutes())
}
