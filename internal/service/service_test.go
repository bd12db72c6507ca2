package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/ritmohq/ritmo/internal/events"
	"github.com/ritmohq/ritmo/internal/model"
	"github.com/ritmohq/ritmo/internal/storage"
)

// Service tests run on Monday 2024-06-03.
var serviceNow = time.Date(2024, time.June, 3, 9, 0, 0, 0, time.UTC)

func setupService(t *testing.T, energyBudget int) (*Service, storage.Repository) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "service-test.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := storage.MigrateUp(db); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	repo, err := storage.NewSQLiteRepository(db)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	svc := New(repo, events.NewPublisher(nil, "", logger), energyBudget, logger)
	svc.now = func() time.Time { return serviceNow }
	return svc, repo
}

func TestCompleteHabitFirstThenDuplicate(t *testing.T) {
	svc, repo := setupService(t, 12)
	ctx := context.Background()

	habit, err := svc.CreateHabit(ctx, "user-1", CreateHabitInput{
		Name: "Read", Frequency: model.Daily(),
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	first, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{Notes: "before bed"})
	if err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if first.Duplicate {
		t.Fatalf("first completion flagged duplicate")
	}
	if first.Streak != 1 || first.BestStreak != 1 || !first.IsNewRecord {
		t.Fatalf("unexpected first result: %+v", first)
	}

	second, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{Notes: "extra pages"})
	if err != nil {
		t.Fatalf("second completion: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("repeat completion not flagged duplicate")
	}
	if second.Completion.Count != 2 {
		t.Fatalf("expected count 2, got %d", second.Completion.Count)
	}
	if second.Streak != 1 {
		t.Fatalf("duplicate completion changed the streak: %d", second.Streak)
	}

	stored, err := repo.GetHabit(ctx, habit.ID)
	if err != nil {
		t.Fatalf("get habit: %v", err)
	}
	if stored.Streak != 1 || stored.BestStreak != 1 {
		t.Fatalf("stored streak drifted: %+v", stored)
	}
	if !stored.NextDue.Equal(model.NewDay(2024, time.June, 4)) {
		t.Fatalf("next due not advanced: %s", stored.NextDue)
	}
}

func TestCompleteHabitDailyRecomputesFromLedger(t *testing.T) {
	svc, repo := setupService(t, 12)
	ctx := context.Background()

	habit, err := svc.CreateHabit(ctx, "user-1", CreateHabitInput{
		Name: "Meditate", Frequency: model.Daily(),
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	// Stored counter says 7, but the ledger only supports yesterday.
	habit.Streak = 7
	habit.BestStreak = 7
	yesterday := model.NewDay(2024, time.June, 2)
	seed := model.Completion{
		ID: "c-yesterday", EntityID: habit.ID, Day: yesterday, Count: 1,
		CompletedAt: serviceNow.Add(-24 * time.Hour),
	}
	if err := repo.SaveHabitCompletion(ctx, seed, habit); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	result, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{})
	if err != nil {
		t.Fatalf("complete habit: %v", err)
	}
	if result.Streak != 2 {
		t.Fatalf("daily recompute should yield 2, got %d", result.Streak)
	}
	if result.BestStreak != 7 {
		t.Fatalf("best streak must not shrink: %d", result.BestStreak)
	}
	if result.IsNewRecord {
		t.Fatalf("streak of 2 against best of 7 is not a record")
	}
}

func TestCompleteRecurringTaskAdvancesChain(t *testing.T) {
	svc, repo := setupService(t, 12)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "user-1", CreateTaskInput{
		Description:  "Weekly review",
		EnergyPoints: 3,
		IsRecurring:  true,
		Frequency:    model.WeekdaySet(time.Monday),
		PlanForToday: true,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	result, err := svc.CompleteTask(ctx, "user-1", task.ID, CompleteInput{Notes: "done"})
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if result.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", result.Streak)
	}

	stored, err := repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != model.TaskStatusCompleted || stored.CompletedAt == nil {
		t.Fatalf("task not closed: %#v", stored)
	}
	if !stored.NextDue.Equal(model.NewDay(2024, time.June, 10)) {
		t.Fatalf("next Monday expected, got %s", stored.NextDue)
	}

	history, err := repo.ListHistory(ctx, task.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	var sawCompleted bool
	for _, entry := range history {
		if entry.Action == model.HistoryCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Fatalf("completed history entry missing: %#v", history)
	}

	// Completing again the same day only bumps the count.
	again, err := svc.CompleteTask(ctx, "user-1", task.ID, CompleteInput{})
	if err != nil {
		t.Fatalf("duplicate completion: %v", err)
	}
	if !again.Duplicate || again.Completion.Count != 2 || again.Streak != 1 {
		t.Fatalf("unexpected duplicate result: %+v", again)
	}
}

func TestCompleteHabitBackdatedRecordsWithoutStreak(t *testing.T) {
	svc, repo := setupService(t, 12)
	ctx := context.Background()

	habit, err := svc.CreateHabit(ctx, "user-1", CreateHabitInput{
		Name: "Read", Frequency: model.Daily(),
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	yesterday := model.NewDay(2024, time.June, 2)
	result, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{Day: yesterday, Count: 3, Notes: "caught up"})
	if err != nil {
		t.Fatalf("backdated completion: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("backdated first completion flagged duplicate")
	}
	if result.Streak != 0 {
		t.Fatalf("backdating must not advance the streak, got %d", result.Streak)
	}
	if !result.Completion.Day.Equal(yesterday) || result.Completion.Count != 3 {
		t.Fatalf("unexpected backdated record: %+v", result.Completion)
	}

	stored, err := repo.GetCompletion(ctx, habit.ID, yesterday)
	if err != nil {
		t.Fatalf("get backdated completion: %v", err)
	}
	if stored.Count != 3 || stored.Notes != "caught up" {
		t.Fatalf("backdated record did not persist: %+v", stored)
	}

	habitAfter, err := repo.GetHabit(ctx, habit.ID)
	if err != nil {
		t.Fatalf("get habit: %v", err)
	}
	if habitAfter.Streak != 0 || !habitAfter.NextDue.IsZero() {
		t.Fatalf("backdating touched the habit row: %+v", habitAfter)
	}

	// Backdating the same day again is a repeat.
	again, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{Day: yesterday})
	if err != nil {
		t.Fatalf("repeat backdated completion: %v", err)
	}
	if !again.Duplicate || again.Completion.Count != 4 {
		t.Fatalf("unexpected repeat backdated result: %+v", again)
	}
}

func TestCompleteRejectsFutureDay(t *testing.T) {
	svc, _ := setupService(t, 12)
	ctx := context.Background()

	habit, err := svc.CreateHabit(ctx, "user-1", CreateHabitInput{
		Name: "Run", Frequency: model.Daily(),
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	task, err := svc.CreateTask(ctx, "user-1", CreateTaskInput{
		Description: "Pack bags", EnergyPoints: 1,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}

	tomorrow := model.NewDay(2024, time.June, 4)
	if _, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{Day: tomorrow}); !errors.Is(err, ErrFutureCompletion) {
		t.Fatalf("expected ErrFutureCompletion for habit, got %v", err)
	}
	if _, err := svc.CompleteTask(ctx, "user-1", task.ID, CompleteInput{Day: tomorrow}); !errors.Is(err, ErrFutureCompletion) {
		t.Fatalf("expected ErrFutureCompletion for task, got %v", err)
	}
}

// racingRepo hides an existing completion from the first lookup,
// reproducing two clients racing through the first-of-day path.
type racingRepo struct {
	storage.Repository
	missOnce bool
}

func (r *racingRepo) GetCompletion(ctx context.Context, entityID string, day model.Day) (model.Completion, error) {
	if r.missOnce {
		r.missOnce = false
		return model.Completion{}, storage.ErrNotFound
	}
	return r.Repository.GetCompletion(ctx, entityID, day)
}

func TestCompleteHabitConcurrentFirstFallsBackToIncrement(t *testing.T) {
	svc, repo := setupService(t, 12)
	ctx := context.Background()

	habit, err := svc.CreateHabit(ctx, "user-1", CreateHabitInput{
		Name: "Read", Frequency: model.Daily(),
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	if _, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{}); err != nil {
		t.Fatalf("first completion: %v", err)
	}

	svc.repo = &racingRepo{Repository: repo, missOnce: true}

	result, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{Notes: "again"})
	if err != nil {
		t.Fatalf("losing racer must degrade to a repeat, got: %v", err)
	}
	if !result.Duplicate || result.Completion.Count != 2 {
		t.Fatalf("unexpected fallback result: %+v", result)
	}

	stored, err := repo.GetHabit(ctx, habit.ID)
	if err != nil {
		t.Fatalf("get habit: %v", err)
	}
	if stored.Streak != 1 {
		t.Fatalf("fallback changed the stored streak: %d", stored.Streak)
	}
}

func TestPlanTaskForTodayEnforcesEnergyBudget(t *testing.T) {
	svc, _ := setupService(t, 8)
	ctx := context.Background()

	if _, err := svc.CreateTask(ctx, "user-1", CreateTaskInput{
		Description: "Deep work", EnergyPoints: 5, PlanForToday: true,
	}); err != nil {
		t.Fatalf("plan first task: %v", err)
	}
	second, err := svc.CreateTask(ctx, "user-1", CreateTaskInput{
		Description: "Chores", EnergyPoints: 3,
	})
	if err != nil {
		t.Fatalf("create second task: %v", err)
	}
	third, err := svc.CreateTask(ctx, "user-1", CreateTaskInput{
		Description: "Big refactor", EnergyPoints: 5,
	})
	if err != nil {
		t.Fatalf("create third task: %v", err)
	}

	if _, err := svc.PlanTaskForToday(ctx, "user-1", second.ID); err != nil {
		t.Fatalf("second task should fit the budget: %v", err)
	}
	if _, err := svc.PlanTaskForToday(ctx, "user-1", third.ID); !errors.Is(err, ErrEnergyBudgetExceeded) {
		t.Fatalf("expected ErrEnergyBudgetExceeded, got %v", err)
	}
}

func TestPostponeTaskLeavesStreakAlone(t *testing.T) {
	svc, repo := setupService(t, 12)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "user-1", CreateTaskInput{
		Description: "Stretch", EnergyPoints: 1,
		IsRecurring: true, Frequency: model.Daily(), PlanForToday: true,
	})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	task.Streak = 4
	task.BestStreak = 4
	if err := repo.UpdateTask(ctx, task); err != nil {
		t.Fatalf("seed streak: %v", err)
	}

	got, err := svc.PostponeTask(ctx, "user-1", task.ID, "low energy", model.NewDay(2024, time.June, 4))
	if err != nil {
		t.Fatalf("postpone: %v", err)
	}
	if got.Status != model.TaskStatusPostponed || got.PlannedForToday {
		t.Fatalf("task not postponed: %#v", got)
	}
	if got.PostponeCount != 1 || got.PostponedAt == nil {
		t.Fatalf("postponement not recorded: %#v", got)
	}
	if got.Streak != 4 {
		t.Fatalf("postponement must not touch the streak: %d", got.Streak)
	}
}

func TestSummaryPartitionsTheDay(t *testing.T) {
	svc, repo := setupService(t, 12)
	ctx := context.Background()

	planned, err := svc.CreateTask(ctx, "user-1", CreateTaskInput{
		Description: "Write report", EnergyPoints: 5, PlanForToday: true,
	})
	if err != nil {
		t.Fatalf("create planned task: %v", err)
	}
	done, err := svc.CreateTask(ctx, "user-1", CreateTaskInput{
		Description: "Emails", EnergyPoints: 1, PlanForToday: true,
	})
	if err != nil {
		t.Fatalf("create done task: %v", err)
	}
	if _, err := svc.CompleteTask(ctx, "user-1", done.ID, CompleteInput{}); err != nil {
		t.Fatalf("complete task: %v", err)
	}

	stale := model.Task{
		ID: "task-stale", UserID: "user-1", Description: "Call the bank",
		Status: model.TaskStatusPending, EnergyPoints: 3,
		PlannedForToday: true, PlannedDate: model.NewDay(2024, time.June, 1),
		CreatedAt: serviceNow.Add(-72 * time.Hour), UpdatedAt: serviceNow.Add(-72 * time.Hour),
	}
	if err := repo.CreateTask(ctx, stale); err != nil {
		t.Fatalf("create stale task: %v", err)
	}

	summary, err := svc.Summary(ctx, "user-1")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summary.Planned) != 1 || summary.Planned[0].ID != planned.ID {
		t.Fatalf("unexpected planned bucket: %#v", summary.Planned)
	}
	if len(summary.Completed) != 1 || summary.Completed[0].ID != done.ID {
		t.Fatalf("unexpected completed bucket: %#v", summary.Completed)
	}
	if len(summary.Missed) != 1 || summary.Missed[0].ID != stale.ID {
		t.Fatalf("unexpected missed bucket: %#v", summary.Missed)
	}
	if summary.EnergyPlanned != 5 {
		t.Fatalf("expected 5 planned energy, got %d", summary.EnergyPlanned)
	}
}

func TestOwnershipHidesForeignEntities(t *testing.T) {
	svc, _ := setupService(t, 12)
	ctx := context.Background()

	habit, err := svc.CreateHabit(ctx, "user-1", CreateHabitInput{
		Name: "Run", Frequency: model.Daily(),
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}

	if _, err := svc.GetHabit(ctx, "user-2", habit.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign habit, got %v", err)
	}
	if _, err := svc.CompleteHabit(ctx, "user-2", habit.ID, CompleteInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound completing foreign habit, got %v", err)
	}
}

func TestCompleteInactiveHabitRejected(t *testing.T) {
	svc, _ := setupService(t, 12)
	ctx := context.Background()

	habit, err := svc.CreateHabit(ctx, "user-1", CreateHabitInput{
		Name: "Old habit", Frequency: model.Daily(),
	})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	if err := svc.DeactivateHabit(ctx, "user-1", habit.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := svc.CompleteHabit(ctx, "user-1", habit.ID, CompleteInput{}); !errors.Is(err, ErrInactiveHabit) {
		t.Fatalf("expected ErrInactiveHabit, got %v", err)
	}
}
