package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ritmohq/ritmo/internal/events"
	"github.com/ritmohq/ritmo/internal/model"
	"github.com/ritmohq/ritmo/internal/storage"
	"github.com/ritmohq/ritmo/internal/streak"
)

type CreateTaskInput struct {
	Description  string
	EnergyPoints int
	ProjectID    string
	DueDate      model.Day
	IsRecurring  bool
	Frequency    model.Frequency
	PlanForToday bool
}

// DaySummary is the day's triage view: what is planned, what slipped
// from earlier days, and what is already done.
type DaySummary struct {
	Day           model.Day
	Planned       []model.Task
	Missed        []model.Task
	Completed     []model.Task
	EnergyPlanned int
	EnergyBudget  int
}

func (s *Service) CreateTask(ctx context.Context, userID string, input CreateTaskInput) (model.Task, error) {
	now := s.now()
	task := model.Task{
		ID:           uuid.NewString(),
		UserID:       userID,
		Description:  input.Description,
		Status:       model.TaskStatusPending,
		EnergyPoints: input.EnergyPoints,
		ProjectID:    input.ProjectID,
		DueDate:      input.DueDate,
		IsRecurring:  input.IsRecurring,
		Frequency:    input.Frequency,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if task.EnergyPoints == 0 {
		task.EnergyPoints = 1
	}
	if task.IsRecurring && task.Frequency.Kind == model.FrequencyInterval {
		task.NextDue = s.today()
	}
	if err := task.Validate(); err != nil {
		return model.Task{}, err
	}

	if input.PlanForToday {
		if err := s.checkEnergyBudget(ctx, userID, task.EnergyPoints); err != nil {
			return model.Task{}, err
		}
		task.PlannedForToday = true
		task.PlannedDate = s.today()
	}

	if err := s.repo.CreateTask(ctx, task); err != nil {
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}
	entry := model.HistoryEntry{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		Action:    model.HistoryCreated,
		Details:   task.Description,
		Timestamp: now,
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		return model.Task{}, fmt.Errorf("append created history: %w", err)
	}
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, userID, id string) (model.Task, error) {
	return s.ownedTask(ctx, userID, id)
}

func (s *Service) ListTasks(ctx context.Context, userID string, status model.TaskStatus) ([]model.Task, error) {
	return s.repo.ListTasks(ctx, storage.TaskFilter{UserID: userID, Status: status})
}

func (s *Service) TaskHistory(ctx context.Context, userID, id string, limit int) ([]model.HistoryEntry, error) {
	if _, err := s.ownedTask(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.repo.ListHistory(ctx, id, limit)
}

// PlanTaskForToday pulls a task into today's plan, refusing when the
// task would push the day's planned energy past the budget.
func (s *Service) PlanTaskForToday(ctx context.Context, userID, id string) (model.Task, error) {
	task, err := s.ownedTask(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}
	today := s.today()
	if task.PlannedForToday && task.PlannedDate.Equal(today) {
		return task, nil
	}
	if err := s.checkEnergyBudget(ctx, userID, task.EnergyPoints); err != nil {
		return model.Task{}, err
	}

	task.PlannedForToday = true
	task.PlannedDate = today
	task.Status = model.TaskStatusPending
	task.MissedDays = 0
	task.UpdatedAt = s.now()
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return model.Task{}, fmt.Errorf("plan task: %w", err)
	}
	return task, nil
}

// CompleteTask closes an occurrence. The day defaults to today and may
// be backdated; only completing the current day closes the task row and
// advances a recurring chain, with the completion record, the task row
// and the history entry landing in one transaction. A repeat completion
// of the same day only bumps the completion count.
func (s *Service) CompleteTask(ctx context.Context, userID, id string, input CompleteInput) (CompletionResult, error) {
	task, err := s.ownedTask(ctx, userID, id)
	if err != nil {
		return CompletionResult{}, err
	}
	day, count, err := s.resolveCompletion(input)
	if err != nil {
		return CompletionResult{}, err
	}
	today := s.today()

	if _, err := s.repo.GetCompletion(ctx, task.ID, day); err == nil {
		return s.incrementCompletion(ctx, task.ID, day, count, input.Notes, task.Streak, task.BestStreak)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return CompletionResult{}, fmt.Errorf("lookup completion: %w", err)
	}

	completion := model.Completion{
		ID:          uuid.NewString(),
		EntityID:    task.ID,
		Day:         day,
		Count:       count,
		Notes:       input.Notes,
		CompletedAt: s.now(),
	}

	if !day.Equal(today) {
		if err := s.repo.CreateCompletion(ctx, completion); err != nil {
			if errors.Is(err, storage.ErrDuplicateCompletion) {
				return s.incrementCompletion(ctx, task.ID, day, count, input.Notes, task.Streak, task.BestStreak)
			}
			return CompletionResult{}, fmt.Errorf("create completion: %w", err)
		}
		entry := model.HistoryEntry{
			ID:        uuid.NewString(),
			TaskID:    task.ID,
			Action:    model.HistoryCompleted,
			Details:   fmt.Sprintf("completed for %s (recorded later)", day),
			Timestamp: s.now(),
		}
		if err := s.repo.AppendHistory(ctx, entry); err != nil {
			return CompletionResult{}, fmt.Errorf("append completed history: %w", err)
		}
		return CompletionResult{
			Completion: completion,
			Streak:     task.Streak,
			BestStreak: task.BestStreak,
		}, nil
	}

	var result streak.Result
	if task.IsRecurring {
		ledger, err := s.ledger(ctx, task.ID, today)
		if err != nil {
			return CompletionResult{}, fmt.Errorf("list completions: %w", err)
		}
		result = streak.Calculate(streak.Entity{
			Frequency:  task.Frequency,
			Streak:     task.Streak,
			BestStreak: task.BestStreak,
			NextDue:    task.NextDue,
		}, append(ledger, completion), today)
		task.Streak = result.Streak
		task.BestStreak = result.BestStreak
		task.NextDue = task.Frequency.NextRequired(today)
	}

	now := s.now()
	task.Status = model.TaskStatusCompleted
	task.CompletedAt = &now
	task.MissedDays = 0
	task.UpdatedAt = now

	entry := model.HistoryEntry{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		Action:    model.HistoryCompleted,
		Details:   input.Notes,
		Timestamp: now,
	}
	if err := s.repo.SaveTaskCompletion(ctx, completion, task, entry); err != nil {
		// A concurrent first-of-day completion won the insert; this one
		// is a repeat.
		if errors.Is(err, storage.ErrDuplicateCompletion) {
			return s.incrementCompletion(ctx, task.ID, today, count, input.Notes, task.Streak, task.BestStreak)
		}
		return CompletionResult{}, fmt.Errorf("save task completion: %w", err)
	}

	if task.IsRecurring {
		s.publisher.PublishStreak(ctx, events.StreakAdvanced(
			"task", task.ID, task.UserID, today,
			result.Streak, result.BestStreak, result.IsNewRecord))
	}

	return CompletionResult{
		Completion:  completion,
		Streak:      task.Streak,
		BestStreak:  task.BestStreak,
		IsNewRecord: result.IsNewRecord,
	}, nil
}

// PostponeTask pushes a task out of today's plan. The streak is not
// touched here: whether the postponed occurrence breaks a chain is the
// sweep's call when the day actually ends unfulfilled.
func (s *Service) PostponeTask(ctx context.Context, userID, id, reason string, rescheduleTo model.Day) (model.Task, error) {
	task, err := s.ownedTask(ctx, userID, id)
	if err != nil {
		return model.Task{}, err
	}
	now := s.now()

	task.Status = model.TaskStatusPostponed
	task.PlannedForToday = false
	task.PostponeCount++
	task.PostponeReason = reason
	task.PostponedAt = &now
	task.RescheduleDate = rescheduleTo
	task.UpdatedAt = now
	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return model.Task{}, fmt.Errorf("postpone task: %w", err)
	}

	entry := model.HistoryEntry{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		Action:    model.HistoryPostponed,
		Details:   fmt.Sprintf("postponed (%d time(s)): %s", task.PostponeCount, reason),
		Timestamp: now,
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		return model.Task{}, fmt.Errorf("append postponed history: %w", err)
	}
	return task, nil
}

// Summary assembles the triage view for today.
func (s *Service) Summary(ctx context.Context, userID string) (DaySummary, error) {
	today := s.today()
	tasks, err := s.repo.ListTasks(ctx, storage.TaskFilter{UserID: userID})
	if err != nil {
		return DaySummary{}, fmt.Errorf("list tasks: %w", err)
	}

	summary := DaySummary{Day: today, EnergyBudget: s.energyBudget}
	for _, task := range tasks {
		switch {
		case task.Status == model.TaskStatusCompleted && task.CompletedAt != nil && model.DayOf(*task.CompletedAt).Equal(today):
			summary.Completed = append(summary.Completed, task)
		case task.PlannedForToday && task.PlannedDate.Equal(today):
			summary.Planned = append(summary.Planned, task)
			summary.EnergyPlanned += task.EnergyPoints
		case task.PlannedForToday && task.PlannedDate.Before(today) && task.Status != model.TaskStatusCompleted:
			summary.Missed = append(summary.Missed, task)
		}
	}
	return summary, nil
}

func (s *Service) checkEnergyBudget(ctx context.Context, userID string, points int) error {
	planned, err := s.repo.SumPlannedEnergy(ctx, userID, s.today())
	if err != nil {
		return fmt.Errorf("sum planned energy: %w", err)
	}
	if planned+points > s.energyBudget {
		return ErrEnergyBudgetExceeded
	}
	return nil
}

func (s *Service) ownedTask(ctx context.Context, userID, id string) (model.Task, error) {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return model.Task{}, translateNotFound(err)
	}
	if task.UserID != userID || task.IsDeleted {
		return model.Task{}, ErrNotFound
	}
	return task, nil
}
