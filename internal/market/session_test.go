package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionIsOpen(t *testing.T) {
	s := DefaultSession(time.UTC)

	monday := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	assert.False(t, s.IsOpen(monday.Add(9*time.Hour)))
	assert.True(t, s.IsOpen(monday.Add(9*time.Hour+15*time.Minute)))
	assert.True(t, s.IsOpen(monday.Add(12*time.Hour)))
	assert.False(t, s.IsOpen(monday.Add(15*time.Hour+31*time.Minute)))

	saturday := time.Date(2026, 9, 5, 12, 0, 0, 0, time.UTC)
	assert.False(t, s.IsOpen(saturday))
	sunday := time.Date(2026, 9, 6, 12, 0, 0, 0, time.UTC)
	assert.False(t, s.IsOpen(sunday))
}

func TestSessionMinutes(t *testing.T) {
	s := DefaultSession(time.UTC)
	now := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 45, s.MinutesSinceOpen(now))
	assert.Equal(t, 330, s.MinutesToClose(now))
}

func TestSessionNextOpenSkipsWeekend(t *testing.T) {
	s := DefaultSession(time.UTC)

	// Friday mid-session: next open is Monday.
	friday := time.Date(2026, 9, 4, 12, 0, 0, 0, time.UTC)
	next := s.NextOpen(friday)
	assert.Equal(t, time.Date(2026, 9, 7, 9, 15, 0, 0, time.UTC), next)

	// Early weekday morning: next open is the same day.
	monday := time.Date(2026, 8, 31, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC), s.NextOpen(monday))
}

func TestPriorSameWeekday(t *testing.T) {
	s := DefaultSession(time.UTC)
	ts := time.Date(2026, 8, 31, 10, 55, 0, 0, time.UTC)
	prior := s.PriorSameWeekday(ts)
	assert.Equal(t, ts.AddDate(0, 0, -7), prior)
	assert.Equal(t, ts.Weekday(), prior.Weekday())
}

func TestBarSyntheticDetection(t *testing.T) {
	flat := Bar{Open: 100, High: 100, Low: 100, Close: 100}
	assert.True(t, flat.LooksSynthetic())

	flagged := Bar{Open: 99, High: 101, Low: 98, Close: 100, Synthetic: true}
	assert.True(t, flagged.LooksSynthetic())

	genuine := Bar{Open: 99, High: 101, Low: 98, Close: 100}
	assert.False(t, genuine.LooksSynthetic())
}

func TestBarClosed(t *testing.T) {
	open := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	b := Bar{Time: open}
	assert.False(t, b.Closed(5*time.Minute, open.Add(4*time.Minute)))
	assert.True(t, b.Closed(5*time.Minute, open.Add(5*time.Minute)))
}
