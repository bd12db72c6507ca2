// Package sweep reconciles recurring entities against the calendar: it
// activates due recurring tasks, surfaces missed occurrences, applies the
// authoritative streak resets the on-demand calculator defers, and keeps
// next-due days current. A sweep is idempotent; the daily trigger and the
// redundancy trigger both run the same pass.
package sweep

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ritmohq/ritmo/internal/model"
	"github.com/ritmohq/ritmo/internal/storage"
	"github.com/ritmohq/ritmo/internal/streak"
)

// Completions older than this never influence a reset decision.
const ledgerLookbackDays = 31

type Sweeper struct {
	repo   storage.Repository
	logger *log.Logger
	now    func() time.Time
}

func NewSweeper(repo storage.Repository, logger *log.Logger) *Sweeper {
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{repo: repo, logger: logger, now: time.Now}
}

type Summary struct {
	Day          model.Day
	TasksChecked int
	Activations  int
	MissedMarked int
	StreakResets int
	HabitsSwept  int
	Errors       int
	Elapsed      time.Duration
}

// Run executes one reconciliation pass over all active recurring
// entities. A failure on one entity is logged and skipped so the rest of
// the population is still processed; only a failure to list entities
// aborts the run.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	started := s.now()
	today := model.DayOf(started)
	summary := Summary{Day: today}

	if err := s.sweepRecurringTasks(ctx, today, &summary); err != nil {
		return summary, err
	}
	if err := s.sweepMissedTasks(ctx, today, &summary); err != nil {
		return summary, err
	}
	if err := s.sweepHabits(ctx, today, &summary); err != nil {
		return summary, err
	}

	summary.Elapsed = s.now().Sub(started)
	s.logger.Printf("sweep %s: %d tasks, %d habits, %d activations, %d missed, %d resets, %d errors in %s",
		today, summary.TasksChecked, summary.HabitsSwept, summary.Activations,
		summary.MissedMarked, summary.StreakResets, summary.Errors, summary.Elapsed)
	return summary, nil
}

func (s *Sweeper) sweepRecurringTasks(ctx context.Context, today model.Day, summary *Summary) error {
	tasks, err := s.repo.ListTasks(ctx, storage.TaskFilter{RecurringOnly: true})
	if err != nil {
		return fmt.Errorf("list recurring tasks: %w", err)
	}

	for _, task := range tasks {
		summary.TasksChecked++
		if err := s.reconcileTask(ctx, task, today, summary); err != nil {
			summary.Errors++
			s.logger.Printf("sweep: task %s: %v", task.ID, err)
		}
	}
	return nil
}

func (s *Sweeper) reconcileTask(ctx context.Context, task model.Task, today model.Day, summary *Summary) error {
	ledger, err := s.repo.ListCompletions(ctx, task.ID, ledgerSince(today, task.NextDue))
	if err != nil {
		return fmt.Errorf("list completions: %w", err)
	}

	entity := streak.Entity{
		Frequency:  task.Frequency,
		Streak:     task.Streak,
		BestStreak: task.BestStreak,
		NextDue:    task.NextDue,
	}
	changed := false
	if streak.ShouldReset(entity, ledger, today) {
		task.Streak = 0
		summary.StreakResets++
		changed = true
	}

	if task.Frequency.RequiredOn(today, task.NextDue) && !completedOn(ledger, today) && canActivate(task, today) {
		activate(&task, today)
		summary.Activations++
		changed = true

		entry := model.HistoryEntry{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			Action:    model.HistoryRecurringActivation,
			Details:   fmt.Sprintf("recurring task activated for %s", today),
			Timestamp: s.now(),
		}
		if err := s.repo.AppendHistory(ctx, entry); err != nil {
			return fmt.Errorf("append activation history: %w", err)
		}
	}

	// An interval anchor left in the past means the occurrence expired
	// unfulfilled; the chain restarts due today.
	if task.Frequency.Kind == model.FrequencyInterval && !task.NextDue.IsZero() && task.NextDue.Before(today) {
		task.NextDue = today
		changed = true
	}

	if !changed {
		return nil
	}
	task.UpdatedAt = s.now()
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// canActivate guards against reopening an occurrence that is already
// open: only a task completed on an earlier day or one not currently
// planned comes back. Today's cycle being closed (completion recorded
// today) is checked by the caller against the ledger, so a re-run after
// the user finished never undoes the completion.
func canActivate(task model.Task, today model.Day) bool {
	if task.Status == model.TaskStatusPending && task.PlannedForToday && task.PlannedDate.Equal(today) {
		return false
	}
	if task.CompletedAt != nil && model.DayOf(*task.CompletedAt).Equal(today) {
		return false
	}
	return task.Status == model.TaskStatusCompleted || !task.PlannedForToday
}

func completedOn(ledger []model.Completion, day model.Day) bool {
	for _, c := range ledger {
		if c.Day.Equal(day) {
			return true
		}
	}
	return false
}

func activate(task *model.Task, today model.Day) {
	task.Status = model.TaskStatusPending
	task.PlannedForToday = true
	task.PlannedDate = today
	task.CompletedAt = nil
	task.MissedDays = 0
	// Transient fields belong to the closed cycle, not the new one.
	task.PostponeCount = 0
	task.PostponeReason = ""
	task.PostponedAt = nil
	task.RescheduleDate = model.Day{}
	if task.Frequency.Kind != model.FrequencyInterval {
		task.NextDue = task.Frequency.NextRequired(today)
	}
}

func (s *Sweeper) sweepMissedTasks(ctx context.Context, today model.Day, summary *Summary) error {
	overdue, err := s.repo.ListTasks(ctx, storage.TaskFilter{PlannedBefore: today})
	if err != nil {
		return fmt.Errorf("list overdue tasks: %w", err)
	}

	for _, task := range overdue {
		if task.Status == model.TaskStatusCompleted {
			continue
		}
		if err := s.markMissed(ctx, task, today, summary); err != nil {
			summary.Errors++
			s.logger.Printf("sweep: missed task %s: %v", task.ID, err)
		}
	}
	return nil
}

// markMissed records that a planned occurrence went unactioned. The task
// stays planned and actionable; missed days are derived from the planned
// date, not accumulated, so a replayed sweep converges on the same value.
func (s *Sweeper) markMissed(ctx context.Context, task model.Task, today model.Day, summary *Summary) error {
	already, err := s.repo.HasHistorySince(ctx, task.ID, model.HistoryMissedDay, today.Time())
	if err != nil {
		return fmt.Errorf("check missed history: %w", err)
	}
	if already {
		return nil
	}

	task.MissedDays = today.DaysSince(task.PlannedDate)
	task.UpdatedAt = s.now()
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("update missed task: %w", err)
	}

	entry := model.HistoryEntry{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		Action:    model.HistoryMissedDay,
		Details:   fmt.Sprintf("task was not done on %s (%d days behind)", task.PlannedDate, task.MissedDays),
		Timestamp: s.now(),
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("append missed history: %w", err)
	}
	summary.MissedMarked++
	return nil
}

func (s *Sweeper) sweepHabits(ctx context.Context, today model.Day, summary *Summary) error {
	habits, err := s.repo.ListHabits(ctx, storage.HabitFilter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("list active habits: %w", err)
	}

	for _, habit := range habits {
		summary.HabitsSwept++
		if err := s.reconcileHabit(ctx, habit, today, summary); err != nil {
			summary.Errors++
			s.logger.Printf("sweep: habit %s: %v", habit.ID, err)
		}
	}
	return nil
}

func (s *Sweeper) reconcileHabit(ctx context.Context, habit model.Habit, today model.Day, summary *Summary) error {
	ledger, err := s.repo.ListCompletions(ctx, habit.ID, ledgerSince(today, habit.NextDue))
	if err != nil {
		return fmt.Errorf("list completions: %w", err)
	}

	entity := streak.Entity{
		Frequency:  habit.Frequency,
		Streak:     habit.Streak,
		BestStreak: habit.BestStreak,
		NextDue:    habit.NextDue,
	}
	changed := false
	if streak.ShouldReset(entity, ledger, today) {
		habit.Streak = 0
		summary.StreakResets++
		changed = true
	}
	if habit.Frequency.Kind == model.FrequencyInterval && !habit.NextDue.IsZero() && habit.NextDue.Before(today) {
		habit.NextDue = today
		changed = true
	}

	if !changed {
		return nil
	}
	habit.UpdatedAt = s.now()
	if err := s.repo.UpdateHabit(ctx, habit); err != nil {
		return fmt.Errorf("update habit: %w", err)
	}
	return nil
}

func ledgerSince(today model.Day, nextDue model.Day) model.Day {
	since := today.AddDays(-ledgerLookbackDays)
	if !nextDue.IsZero() && nextDue.Before(since) {
		since = nextDue
	}
	return since
}
