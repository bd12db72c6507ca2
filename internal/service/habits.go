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

type CreateHabitInput struct {
	Name        string
	Description string
	Icon        string
	Color       string
	TargetCount int
	Frequency   model.Frequency
}

type UpdateHabitInput struct {
	Name        *string
	Description *string
	Icon        *string
	Color       *string
	TargetCount *int
	Frequency   *model.Frequency
}

func (s *Service) CreateHabit(ctx context.Context, userID string, input CreateHabitInput) (model.Habit, error) {
	now := s.now()
	habit := model.Habit{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        input.Name,
		Description: input.Description,
		Icon:        input.Icon,
		Color:       input.Color,
		TargetCount: input.TargetCount,
		Frequency:   input.Frequency,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if habit.TargetCount == 0 {
		habit.TargetCount = 1
	}
	// Interval chains anchor on a due day; a new habit starts due today.
	if habit.Frequency.Kind == model.FrequencyInterval {
		habit.NextDue = s.today()
	}
	if err := habit.Validate(); err != nil {
		return model.Habit{}, err
	}
	if err := s.repo.CreateHabit(ctx, habit); err != nil {
		return model.Habit{}, fmt.Errorf("create habit: %w", err)
	}
	return habit, nil
}

func (s *Service) GetHabit(ctx context.Context, userID, id string) (model.Habit, error) {
	return s.ownedHabit(ctx, userID, id)
}

func (s *Service) ListHabits(ctx context.Context, userID string, activeOnly bool) ([]model.Habit, error) {
	return s.repo.ListHabits(ctx, storage.HabitFilter{UserID: userID, ActiveOnly: activeOnly})
}

func (s *Service) UpdateHabit(ctx context.Context, userID, id string, input UpdateHabitInput) (model.Habit, error) {
	habit, err := s.ownedHabit(ctx, userID, id)
	if err != nil {
		return model.Habit{}, err
	}

	if input.Name != nil {
		habit.Name = *input.Name
	}
	if input.Description != nil {
		habit.Description = *input.Description
	}
	if input.Icon != nil {
		habit.Icon = *input.Icon
	}
	if input.Color != nil {
		habit.Color = *input.Color
	}
	if input.TargetCount != nil {
		habit.TargetCount = *input.TargetCount
	}
	if input.Frequency != nil {
		habit.Frequency = *input.Frequency
		if habit.Frequency.Kind == model.FrequencyInterval && habit.NextDue.IsZero() {
			habit.NextDue = s.today()
		}
	}
	habit.UpdatedAt = s.now()

	if err := habit.Validate(); err != nil {
		return model.Habit{}, err
	}
	if err := s.repo.UpdateHabit(ctx, habit); err != nil {
		return model.Habit{}, fmt.Errorf("update habit: %w", err)
	}
	return habit, nil
}

func (s *Service) DeactivateHabit(ctx context.Context, userID, id string) error {
	habit, err := s.ownedHabit(ctx, userID, id)
	if err != nil {
		return err
	}
	if !habit.IsActive {
		return nil
	}
	habit.IsActive = false
	habit.UpdatedAt = s.now()
	if err := s.repo.UpdateHabit(ctx, habit); err != nil {
		return fmt.Errorf("deactivate habit: %w", err)
	}
	return nil
}

// CompleteHabit records a completion. The day defaults to today and may
// be backdated; only the first completion of the current day advances
// the streak, persisted atomically with the record. A repeat completion
// of the same day bumps the count. Backdated records are bookkeeping:
// the chain they may repair is the sweep's and the daily recompute's
// business, not this path's.
func (s *Service) CompleteHabit(ctx context.Context, userID, id string, input CompleteInput) (CompletionResult, error) {
	habit, err := s.ownedHabit(ctx, userID, id)
	if err != nil {
		return CompletionResult{}, err
	}
	if !habit.IsActive {
		return CompletionResult{}, ErrInactiveHabit
	}
	day, count, err := s.resolveCompletion(input)
	if err != nil {
		return CompletionResult{}, err
	}

	if _, err := s.repo.GetCompletion(ctx, habit.ID, day); err == nil {
		return s.incrementCompletion(ctx, habit.ID, day, count, input.Notes, habit.Streak, habit.BestStreak)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return CompletionResult{}, fmt.Errorf("lookup completion: %w", err)
	}

	completion := model.Completion{
		ID:          uuid.NewString(),
		EntityID:    habit.ID,
		Day:         day,
		Count:       count,
		Notes:       input.Notes,
		CompletedAt: s.now(),
	}

	today := s.today()
	if !day.Equal(today) {
		if err := s.repo.CreateCompletion(ctx, completion); err != nil {
			if errors.Is(err, storage.ErrDuplicateCompletion) {
				return s.incrementCompletion(ctx, habit.ID, day, count, input.Notes, habit.Streak, habit.BestStreak)
			}
			return CompletionResult{}, fmt.Errorf("create completion: %w", err)
		}
		return CompletionResult{
			Completion: completion,
			Streak:     habit.Streak,
			BestStreak: habit.BestStreak,
		}, nil
	}

	ledger, err := s.ledger(ctx, habit.ID, today)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("list completions: %w", err)
	}
	result := streak.Calculate(streak.Entity{
		Frequency:  habit.Frequency,
		Streak:     habit.Streak,
		BestStreak: habit.BestStreak,
		NextDue:    habit.NextDue,
	}, append(ledger, completion), today)

	habit.Streak = result.Streak
	habit.BestStreak = result.BestStreak
	habit.NextDue = habit.Frequency.NextRequired(today)
	habit.UpdatedAt = s.now()

	if err := s.repo.SaveHabitCompletion(ctx, completion, habit); err != nil {
		// A concurrent first-of-day completion won the insert; this one
		// is a repeat.
		if errors.Is(err, storage.ErrDuplicateCompletion) {
			return s.incrementCompletion(ctx, habit.ID, today, count, input.Notes, habit.Streak, habit.BestStreak)
		}
		return CompletionResult{}, fmt.Errorf("save habit completion: %w", err)
	}

	s.publisher.PublishStreak(ctx, events.StreakAdvanced(
		"habit", habit.ID, habit.UserID, today,
		result.Streak, result.BestStreak, result.IsNewRecord))

	return CompletionResult{
		Completion:  completion,
		Streak:      result.Streak,
		BestStreak:  result.BestStreak,
		IsNewRecord: result.IsNewRecord,
	}, nil
}

func (s *Service) ownedHabit(ctx context.Context, userID, id string) (model.Habit, error) {
	habit, err := s.repo.GetHabit(ctx, id)
	if err != nil {
		return model.Habit{}, translateNotFound(err)
	}
	// Someone else's habit looks like a missing one.
	if habit.UserID != userID {
		return model.Habit{}, ErrNotFound
	}
	return habit, nil
}
