package model

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

type FrequencyKind string

const (
	FrequencyDaily        FrequencyKind = "daily"
	FrequencyWeekdaySet   FrequencyKind = "weekday_set"
	FrequencyWeekdaysOnly FrequencyKind = "weekdays_only"
	FrequencyInterval     FrequencyKind = "interval"
)

var (
	ErrInvalidFrequencyKind = errors.New("model: invalid frequency kind")
	ErrEmptyWeekdaySet      = errors.New("model: weekday set must not be empty")
	ErrInvalidInterval      = errors.New("model: interval days must be positive")
)

// Frequency is a closed description of when a recurring entity is due.
// Construct values through Daily, WeekdaySet, WeekdaysOnly or EveryNDays;
// the zero value is invalid and is never required on any day.
type Frequency struct {
	Kind         FrequencyKind
	Weekdays     []time.Weekday
	IntervalDays int
}

func Daily() Frequency {
	return Frequency{Kind: FrequencyDaily}
}

func WeekdaySet(days ...time.Weekday) Frequency {
	return Frequency{Kind: FrequencyWeekdaySet, Weekdays: days}
}

func WeekdaysOnly() Frequency {
	return Frequency{Kind: FrequencyWeekdaysOnly}
}

func EveryNDays(n int) Frequency {
	return Frequency{Kind: FrequencyInterval, IntervalDays: n}
}

func (f Frequency) Validate() error {
	switch f.Kind {
	case FrequencyDaily, FrequencyWeekdaysOnly:
		return nil
	case FrequencyWeekdaySet:
		if len(f.Weekdays) == 0 {
			return ErrEmptyWeekdaySet
		}
		s := make([]int, 0, len(f.Weekdays))
		for _, d := range f.Weekdays {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("model: weekday out of range: %d", d)
			}
			s = append(s, int(d))
		}
		sort.Ints(s)
		for i := 1; i < len(s); i++ {
			if s[i] == s[i-1] {
				return errors.New("model: duplicate weekday in frequency")
			}
		}
		return nil
	case FrequencyInterval:
		if f.IntervalDays <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidInterval, f.IntervalDays)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFrequencyKind, f.Kind)
	}
}

// RequiredOn reports whether day is a required occurrence. Interval
// frequencies are judged against the entity's stored next-due day rather
// than a fixed modulus so the chain survives postponement; nextDue is
// ignored for the calendar kinds. A zero Frequency is never required.
func (f Frequency) RequiredOn(day Day, nextDue Day) bool {
	switch f.Kind {
	case FrequencyDaily:
		return true
	case FrequencyWeekdaySet:
		for _, wd := range f.Weekdays {
			if wd == day.Weekday() {
				return true
			}
		}
		return false
	case FrequencyWeekdaysOnly:
		wd := day.Weekday()
		return wd >= time.Monday && wd <= time.Friday
	case FrequencyInterval:
		if nextDue.IsZero() {
			return false
		}
		return !day.Before(nextDue)
	default:
		return false
	}
}

// NextRequired returns the nearest required day strictly after from.
// Weekday kinds scan forward and wrap into the following week; interval
// kinds count from the given day, which callers set to the last actual
// completion (or to today when the chain was broken).
func (f Frequency) NextRequired(from Day) Day {
	switch f.Kind {
	case FrequencyDaily:
		return from.AddDays(1)
	case FrequencyWeekdaySet, FrequencyWeekdaysOnly:
		for i := 1; i <= 7; i++ {
			next := from.AddDays(i)
			if f.RequiredOn(next, Day{}) {
				return next
			}
		}
		return Day{}
	case FrequencyInterval:
		return from.AddDays(f.IntervalDays)
	default:
		return Day{}
	}
}

// LastRequiredBefore returns the most recent required day strictly before
// today, or the zero Day when there is none within a week (interval kinds
// answer with the stored due day when it has already passed).
func (f Frequency) LastRequiredBefore(today Day, nextDue Day) Day {
	switch f.Kind {
	case FrequencyDaily:
		return today.AddDays(-1)
	case FrequencyWeekdaySet, FrequencyWeekdaysOnly:
		for i := 1; i <= 7; i++ {
			prev := today.AddDays(-i)
			if f.RequiredOn(prev, Day{}) {
				return prev
			}
		}
		return Day{}
	case FrequencyInterval:
		if !nextDue.IsZero() && nextDue.Before(today) {
			return nextDue
		}
		return Day{}
	default:
		return Day{}
	}
}
