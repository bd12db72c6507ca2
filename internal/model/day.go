package model

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a calendar date with no time-of-day component. Every date that
// participates in streak or recurrence logic is normalized through this
// type using a single rule: midnight UTC. Code outside this package must
// not normalize dates on its own.
type Day struct {
	t time.Time
}

func DayOf(t time.Time) Day {
	u := t.UTC()
	return Day{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func ParseDay(value string) (Day, error) {
	t, err := time.Parse(dayLayout, value)
	if err != nil {
		return Day{}, fmt.Errorf("model: parse day %q: %w", value, err)
	}
	return DayOf(t), nil
}

func (d Day) Time() time.Time { return d.t }

func (d Day) IsZero() bool { return d.t.IsZero() }

func (d Day) Equal(other Day) bool { return d.t.Equal(other.t) }

func (d Day) Before(other Day) bool { return d.t.Before(other.t) }

func (d Day) After(other Day) bool { return d.t.After(other.t) }

func (d Day) AddDays(n int) Day { return Day{t: d.t.AddDate(0, 0, n)} }

func (d Day) Weekday() time.Weekday { return d.t.Weekday() }

// DaysSince returns the whole calendar days between other and d.
// Negative when other is after d.
func (d Day) DaysSince(other Day) int {
	return int(d.t.Sub(other.t) / (24 * time.Hour))
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(dayLayout)
}

// MarshalJSON renders the day as "2006-01-02", with null for the zero
// value so optional day fields read naturally on the wire.
func (d Day) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.t.Format(dayLayout) + `"`), nil
}

func (d *Day) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" || raw == `""` {
		*d = Day{}
		return nil
	}
	if len(raw) < 2 || raw[0] != '"' || raw[len(raw)-1] != '"' {
		return fmt.Errorf("model: day must be a %q string, got %s", dayLayout, raw)
	}
	parsed, err := ParseDay(raw[1 : len(raw)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
