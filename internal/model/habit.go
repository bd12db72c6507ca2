package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Habit struct {
	ID          string
	UserID      string
	Name        string
	Description string
	Icon        string
	Color       string
	TargetCount int
	Frequency   Frequency
	Streak      int
	BestStreak  int
	NextDue     Day
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (h Habit) Validate() error {
	if strings.TrimSpace(h.ID) == "" {
		return errors.New("model: habit id is required")
	}
	if strings.TrimSpace(h.UserID) == "" {
		return errors.New("model: habit user id is required")
	}
	if strings.TrimSpace(h.Name) == "" {
		return errors.New("model: habit name is required")
	}
	if h.TargetCount <= 0 {
		return fmt.Errorf("model: habit target count must be positive, got %d", h.TargetCount)
	}
	if h.Streak < 0 || h.BestStreak < 0 {
		return errors.New("model: habit streaks must be non-negative")
	}
	if h.BestStreak < h.Streak {
		return fmt.Errorf("model: best streak %d below current streak %d", h.BestStreak, h.Streak)
	}
	if h.CreatedAt.IsZero() {
		return errors.New("model: habit created_at is required")
	}
	if err := h.Frequency.Validate(); err != nil {
		return err
	}
	if h.Frequency.Kind == FrequencyInterval && h.NextDue.IsZero() {
		return errors.New("model: interval habit requires a next due day")
	}
	return nil
}
