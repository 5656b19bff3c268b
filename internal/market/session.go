package market

import "time"

// Session describes the trading day clock for an exchange segment.
// Defaults match the NSE cash/derivatives session (09:15-15:30 IST).
type Session struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
	Location    *time.Location
}

func DefaultSession(loc *time.Location) Session {
	if loc == nil {
		loc = time.Local
	}
	return Session{OpenHour: 9, OpenMinute: 15, CloseHour: 15, CloseMinute: 30, Location: loc}
}

func (s Session) loc() *time.Location {
	if s.Location != nil {
		return s.Location
	}
	return time.Local
}

// OpenAt returns the session open on the same calendar day as t.
func (s Session) OpenAt(t time.Time) time.Time {
	t = t.In(s.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), s.OpenHour, s.OpenMinute, 0, 0, s.loc())
}

// CloseAt returns the session close on the same calendar day as t.
func (s Session) CloseAt(t time.Time) time.Time {
	t = t.In(s.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), s.CloseHour, s.CloseMinute, 0, 0, s.loc())
}

// IsOpen reports whether t falls inside a trading session. Weekends are
// closed; exchange holidays are not modelled here.
func (s Session) IsOpen(t time.Time) bool {
	t = t.In(s.loc())
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !t.Before(s.OpenAt(t)) && t.Before(s.CloseAt(t))
}

// NextOpen returns the first session open strictly after t. Trading blocks
// persist until this instant.
func (s Session) NextOpen(t time.Time) time.Time {
	t = t.In(s.loc())
	open := s.OpenAt(t)
	if t.Before(open) && t.Weekday() != time.Saturday && t.Weekday() != time.Sunday {
		return open
	}
	d := t
	for {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		return s.OpenAt(d)
	}
}

// PriorSameWeekday returns the most recent earlier trading day with the same
// weekday as t — the day whose bars the last-resort resolver tier reuses.
func (s Session) PriorSameWeekday(t time.Time) time.Time {
	return t.AddDate(0, 0, -7)
}

// MinutesSinceOpen returns full minutes elapsed since session open; negative
// before the open.
func (s Session) MinutesSinceOpen(t time.Time) int {
	return int(t.In(s.loc()).Sub(s.OpenAt(t)) / time.Minute)
}

// MinutesToClose returns full minutes until session close; negative after
// the close.
func (s Session) MinutesToClose(t time.Time) int {
	return int(s.CloseAt(t).Sub(t.In(s.loc())) / time.Minute)
}
