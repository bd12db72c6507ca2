package streak

import (
	"testing"
	"time"

	"github.com/ritmohq/ritmo/internal/model"
)

func completionsOn(days ...model.Day) []model.Completion {
	out := make([]model.Completion, 0, len(days))
	for i, d := range days {
		out = append(out, model.Completion{
			ID:       "c" + string(rune('a'+i)),
			EntityID: "habit-1",
			Day:      d,
			Count:    1,
		})
	}
	return out
}

func TestDailyStreakRecomputesConsecutiveRun(t *testing.T) {
	today := model.NewDay(2024, time.January, 3)
	entity := Entity{Frequency: model.Daily(), Streak: 0, BestStreak: 5}
	ledger := completionsOn(today.AddDays(-2), today.AddDays(-1), today)

	got := Calculate(entity, ledger, today)
	if got.Streak != 3 || got.BestStreak != 5 || got.IsNewRecord {
		t.Fatalf("unexpected result: %+v", got)
	}
	if !got.RequiredToday {
		t.Fatalf("daily habit must always be required today")
	}
}

func TestDailyStreakBrokenChainCountsOnlyRunEndingToday(t *testing.T) {
	// Completions on Jan 1..3, nothing on Jan 4, completed today Jan 5:
	// the run ending today is 1, the older three days do not count.
	today := model.NewDay(2024, time.January, 5)
	entity := Entity{Frequency: model.Daily(), Streak: 3, BestStreak: 3}
	ledger := completionsOn(
		model.NewDay(2024, time.January, 1),
		model.NewDay(2024, time.January, 2),
		model.NewDay(2024, time.January, 3),
		today,
	)

	got := Calculate(entity, ledger, today)
	if got.Streak != 1 || got.BestStreak != 3 || got.IsNewRecord {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestDailyStreakWithoutTodayCompletionLeavesStreakAlone(t *testing.T) {
	// The calculator never resets; that decision belongs to the sweep.
	today := model.NewDay(2024, time.January, 5)
	entity := Entity{Frequency: model.Daily(), Streak: 3, BestStreak: 3}
	ledger := completionsOn(
		model.NewDay(2024, time.January, 1),
		model.NewDay(2024, time.January, 2),
		model.NewDay(2024, time.January, 3),
	)

	got := Calculate(entity, ledger, today)
	if got.Streak != 3 || got.BestStreak != 3 || got.IsNewRecord {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestDailyStreakIsIdempotent(t *testing.T) {
	today := model.NewDay(2024, time.February, 10)
	entity := Entity{Frequency: model.Daily(), Streak: 1, BestStreak: 4}
	ledger := completionsOn(today.AddDays(-1), today)

	first := Calculate(entity, ledger, today)
	second := Calculate(entity, ledger, today)
	if first != second {
		t.Fatalf("daily calculation not idempotent: %+v vs %+v", first, second)
	}
}

func TestSequentialStreakIncrementsOncePerRequiredDay(t *testing.T) {
	// Mon/Wed/Fri habit completed on every required day for two weeks
	// reaches 6, one increment per required day, not per calendar day.
	freq := model.WeekdaySet(time.Monday, time.Wednesday, time.Friday)
	start := model.NewDay(2024, time.January, 1) // Monday

	entity := Entity{Frequency: freq}
	var ledger []model.Completion
	for offset := 0; offset < 14; offset++ {
		day := start.AddDays(offset)
		if !freq.RequiredOn(day, model.Day{}) {
			continue
		}
		ledger = append(ledger, model.Completion{ID: day.String(), EntityID: "h", Day: day, Count: 1})
		got := Calculate(entity, ledger, day)
		entity.Streak = got.Streak
		entity.BestStreak = got.BestStreak
	}

	if entity.Streak != 6 || entity.BestStreak != 6 {
		t.Fatalf("expected streak 6 after two weeks, got %d (best %d)", entity.Streak, entity.BestStreak)
	}
}

func TestSequentialStreakUnchangedOnOffDays(t *testing.T) {
	freq := model.WeekdaySet(time.Monday)
	tuesday := model.NewDay(2024, time.January, 2)
	entity := Entity{Frequency: freq, Streak: 4, BestStreak: 9}

	got := Calculate(entity, completionsOn(tuesday), tuesday)
	if got.Streak != 4 || got.BestStreak != 9 || got.RequiredToday {
		t.Fatalf("unexpected result on off day: %+v", got)
	}
}

func TestSequentialStreakNewRecord(t *testing.T) {
	freq := model.WeekdaysOnly()
	monday := model.NewDay(2024, time.January, 8)
	entity := Entity{Frequency: freq, Streak: 9, BestStreak: 9}

	got := Calculate(entity, completionsOn(monday), monday)
	if got.Streak != 10 || got.BestStreak != 10 || !got.IsNewRecord {
		t.Fatalf("expected new record at 10, got %+v", got)
	}
}

func TestIntervalStreakFollowsNextDue(t *testing.T) {
	freq := model.EveryNDays(7)
	due := model.NewDay(2024, time.March, 11)
	entity := Entity{Frequency: freq, Streak: 2, BestStreak: 2, NextDue: due}

	early := Calculate(entity, nil, due.AddDays(-1))
	if early.Streak != 2 || early.RequiredToday {
		t.Fatalf("unexpected result before due day: %+v", early)
	}

	onTime := Calculate(entity, completionsOn(due), due)
	if onTime.Streak != 3 || !onTime.IsNewRecord || !onTime.RequiredToday {
		t.Fatalf("unexpected result on due day: %+v", onTime)
	}
}

func TestBestStreakNeverDecreases(t *testing.T) {
	freq := model.WeekdaySet(time.Monday)
	monday := model.NewDay(2024, time.January, 8)
	entity := Entity{Frequency: freq, Streak: 0, BestStreak: 20}

	got := Calculate(entity, completionsOn(monday), monday)
	if got.BestStreak != 20 || got.IsNewRecord {
		t.Fatalf("best streak regressed: %+v", got)
	}
}

func TestShouldResetAfterMissedRequiredDay(t *testing.T) {
	freq := model.Daily()
	today := model.NewDay(2024, time.January, 5)
	entity := Entity{Frequency: freq, Streak: 3, BestStreak: 3}
	ledger := completionsOn(
		model.NewDay(2024, time.January, 2),
		model.NewDay(2024, time.January, 3),
	)

	if !ShouldReset(entity, ledger, today) {
		t.Fatalf("expected reset after missed day")
	}
	if ShouldReset(Entity{Frequency: freq}, ledger, today) {
		t.Fatalf("zero streak must not request a reset")
	}
}

func TestShouldResetIgnoresFulfilledDays(t *testing.T) {
	freq := model.WeekdaySet(time.Monday, time.Friday)
	wednesday := model.NewDay(2024, time.January, 10)
	entity := Entity{Frequency: freq, Streak: 5, BestStreak: 5}
	ledger := completionsOn(model.NewDay(2024, time.January, 8)) // Monday done

	if ShouldReset(entity, ledger, wednesday) {
		t.Fatalf("unexpected reset with last required day fulfilled")
	}
}

func TestShouldResetBlockedByTodayCompletion(t *testing.T) {
	// A redundancy re-run after the user already completed today must not
	// zero the freshly rebuilt chain.
	freq := model.Daily()
	today := model.NewDay(2024, time.January, 5)
	entity := Entity{Frequency: freq, Streak: 1, BestStreak: 3}
	ledger := completionsOn(today)

	if ShouldReset(entity, ledger, today) {
		t.Fatalf("reset fired despite completion today")
	}
}

func TestIntervalShouldResetOnlyAfterDuePassed(t *testing.T) {
	// Interval-7 habit last completed day 10, due day 17: a sweep on day
	// 16 takes no action, a sweep on day 18 resets.
	freq := model.EveryNDays(7)
	due := model.NewDay(2024, time.May, 17)
	entity := Entity{Frequency: freq, Streak: 4, BestStreak: 4, NextDue: due}
	ledger := completionsOn(model.NewDay(2024, time.May, 10))

	if ShouldReset(entity, ledger, model.NewDay(2024, time.May, 16)) {
		t.Fatalf("reset fired before due day passed")
	}
	if !ShouldReset(entity, ledger, model.NewDay(2024, time.May, 18)) {
		t.Fatalf("expected reset after due day passed unfulfilled")
	}
}
