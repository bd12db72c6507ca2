package model

import (
	"errors"
	"strings"
	"time"
)

type HistoryAction string

const (
	HistoryCreated             HistoryAction = "created"
	HistoryCompleted           HistoryAction = "completed"
	HistoryPostponed           HistoryAction = "postponed"
	HistoryMissedDay           HistoryAction = "missed_day"
	HistoryRecurringActivation HistoryAction = "recurring_activation"
)

func (a HistoryAction) IsValid() bool {
	switch a {
	case HistoryCreated, HistoryCompleted, HistoryPostponed, HistoryMissedDay, HistoryRecurringActivation:
		return true
	default:
		return false
	}
}

// HistoryEntry is one line of a task's append-only audit log. Entries are
// never mutated after creation.
type HistoryEntry struct {
	ID        string
	TaskID    string
	Action    HistoryAction
	Details   string
	Timestamp time.Time
}

func (e HistoryEntry) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("model: history id is required")
	}
	if strings.TrimSpace(e.TaskID) == "" {
		return errors.New("model: history task id is required")
	}
	if !e.Action.IsValid() {
		return errors.New("model: invalid history action")
	}
	if e.Timestamp.IsZero() {
		return errors.New("model: history timestamp is required")
	}
	return nil
}
