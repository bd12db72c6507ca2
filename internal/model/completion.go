package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Completion records that a recurring entity (habit or recurring task)
// was done on a given day. At most one record exists per (entity, day);
// repeat completions on the same day raise Count instead of adding rows.
type Completion struct {
	ID          string
	EntityID    string
	Day         Day
	Count       int
	Notes       string
	CompletedAt time.Time
}

func (c Completion) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("model: completion id is required")
	}
	if strings.TrimSpace(c.EntityID) == "" {
		return errors.New("model: completion entity id is required")
	}
	if c.Day.IsZero() {
		return errors.New("model: completion day is required")
	}
	if c.Count <= 0 {
		return fmt.Errorf("model: completion count must be positive, got %d", c.Count)
	}
	return nil
}
