package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus = errors.New("model: invalid task status")
	ErrInvalidEnergy = errors.New("model: invalid task energy points")
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusPostponed TaskStatus = "postponed"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusCompleted, TaskStatusPostponed:
		return true
	default:
		return false
	}
}

// Energy points follow the 1/3/5 scale: quick win, normal effort, brick.
func ValidEnergyPoints(points int) bool {
	return points == 1 || points == 3 || points == 5
}

type Task struct {
	ID           string
	UserID       string
	Description  string
	Status       TaskStatus
	EnergyPoints int
	ProjectID    string

	IsRecurring bool
	Frequency   Frequency
	Streak      int
	BestStreak  int
	NextDue     Day

	PlannedForToday bool
	PlannedDate     Day
	DueDate         Day
	MissedDays      int

	PostponeCount  int
	PostponeReason string
	PostponedAt    *time.Time
	RescheduleDate Day

	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	IsDeleted   bool
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("model: task id is required")
	}
	if strings.TrimSpace(t.UserID) == "" {
		return errors.New("model: task user id is required")
	}
	if strings.TrimSpace(t.Description) == "" {
		return errors.New("model: task description is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, t.Status)
	}
	if !ValidEnergyPoints(t.EnergyPoints) {
		return fmt.Errorf("%w: %d", ErrInvalidEnergy, t.EnergyPoints)
	}
	if t.CreatedAt.IsZero() {
		return errors.New("model: task created_at is required")
	}
	if t.Status == TaskStatusCompleted && t.CompletedAt == nil {
		return errors.New("model: completed_at is required when task is completed")
	}
	if t.IsRecurring {
		if err := t.Frequency.Validate(); err != nil {
			return err
		}
		if t.BestStreak < t.Streak {
			return fmt.Errorf("model: best streak %d below current streak %d", t.BestStreak, t.Streak)
		}
	}
	return nil
}
