// Package streak computes streak updates for recurring entities. It is
// pure: callers load the entity and its completion ledger, and persist
// whatever comes back.
package streak

import (
	"github.com/ritmohq/ritmo/internal/model"
)

// A daily streak recompute never walks further back than a year.
const maxLookbackDays = 365

// Entity is the slice of a habit or recurring task the calculator needs.
type Entity struct {
	Frequency  model.Frequency
	Streak     int
	BestStreak int
	NextDue    model.Day
}

type Result struct {
	Streak        int
	BestStreak    int
	IsNewRecord   bool
	RequiredToday bool
}

// Calculate returns the streak state after considering today's ledger.
//
// Daily frequencies recompute the full consecutive run ending today from
// the ledger, which self-heals against missed writes. All other kinds
// trust the stored counter and add one success, because reconstructing
// which historical days were required is costlier and more fragile than
// the increment. Either way, a day without a completion leaves the streak
// untouched: the nightly sweep is the single authority for resets.
func Calculate(e Entity, completions []model.Completion, today model.Day) Result {
	if e.Frequency.Kind == model.FrequencyDaily {
		return calculateDaily(e, completions, today)
	}
	return calculateSequential(e, completions, today)
}

func calculateDaily(e Entity, completions []model.Completion, today model.Day) Result {
	if !hasCompletionOn(completions, today) {
		return Result{Streak: e.Streak, BestStreak: e.BestStreak, RequiredToday: true}
	}

	run := 0
	for i := 0; i < maxLookbackDays; i++ {
		if !hasCompletionOn(completions, today.AddDays(-i)) {
			break
		}
		run++
	}

	best := e.BestStreak
	if run > best {
		best = run
	}
	return Result{
		Streak:        run,
		BestStreak:    best,
		IsNewRecord:   run > e.BestStreak,
		RequiredToday: true,
	}
}

func calculateSequential(e Entity, completions []model.Completion, today model.Day) Result {
	if !e.Frequency.RequiredOn(today, e.NextDue) {
		return Result{Streak: e.Streak, BestStreak: e.BestStreak}
	}
	if !hasCompletionOn(completions, today) {
		return Result{Streak: e.Streak, BestStreak: e.BestStreak, RequiredToday: true}
	}

	next := e.Streak + 1
	best := e.BestStreak
	if next > best {
		best = next
	}
	return Result{
		Streak:        next,
		BestStreak:    best,
		IsNewRecord:   next > e.BestStreak,
		RequiredToday: true,
	}
}

// ShouldReset reports whether the entity's most recent required day before
// today went unfulfilled while a streak was standing. The sweep calls this
// once per day; completion paths never reset. A completion recorded today
// blocks the reset: the stored streak then already belongs to the fresh
// chain and a redundancy re-run must not zero it.
func ShouldReset(e Entity, completions []model.Completion, today model.Day) bool {
	if e.Streak == 0 {
		return false
	}
	if hasCompletionOn(completions, today) {
		return false
	}
	missed := e.Frequency.LastRequiredBefore(today, e.NextDue)
	if missed.IsZero() {
		return false
	}
	return !hasCompletionOn(completions, missed)
}

func hasCompletionOn(completions []model.Completion, day model.Day) bool {
	for _, c := range completions {
		if c.Day.Equal(day) {
			return true
		}
	}
	return false
}
