package model

import (
	"testing"
	"time"
)

func TestDayOfNormalizesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	late := time.Date(2024, time.January, 4, 22, 30, 0, 0, loc) // 2024-01-05 01:30 UTC

	day := DayOf(late)
	if day.String() != "2024-01-05" {
		t.Fatalf("unexpected normalized day: %s", day)
	}
	if hh, mm, ss := day.Time().Clock(); hh != 0 || mm != 0 || ss != 0 {
		t.Fatalf("day carries a time-of-day component: %s", day.Time())
	}
	if day.Time().Location() != time.UTC {
		t.Fatalf("day not in UTC: %s", day.Time().Location())
	}
}

func TestDayComparisonAndArithmetic(t *testing.T) {
	a := NewDay(2024, time.January, 1)
	b := a.AddDays(3)

	if !a.Before(b) || !b.After(a) {
		t.Fatalf("day ordering broken: %s vs %s", a, b)
	}
	if b.DaysSince(a) != 3 || a.DaysSince(b) != -3 {
		t.Fatalf("unexpected day distance: %d", b.DaysSince(a))
	}
	if !a.AddDays(3).Equal(b) {
		t.Fatalf("equal days compare unequal")
	}
}

func TestParseDay(t *testing.T) {
	day, err := ParseDay("2024-02-29")
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	if day.Weekday() != time.Thursday {
		t.Fatalf("unexpected weekday: %s", day.Weekday())
	}
	if _, err := ParseDay("29/02/2024"); err == nil {
		t.Fatalf("expected parse error for non-ISO date")
	}
}
