package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ritmohq/ritmo/internal/model"
)

var (
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicateCompletion is the UNIQUE(entity_id, day) violation:
	// a completion for that day already exists. Callers treat it as a
	// signal to switch to the increment path.
	ErrDuplicateCompletion = errors.New("storage: duplicate completion")
)

type HabitFilter struct {
	UserID     string
	ActiveOnly bool
}

type TaskFilter struct {
	UserID        string
	Status        model.TaskStatus
	RecurringOnly bool
	PlannedBefore model.Day
	Limit         int
	Offset        int
}

// Repository is the persistence surface of the engine. Implementations
// must guarantee at most one completion row per (entity, day) and write
// an entity's streak fields together with the completion that produced
// them in one transaction.
type Repository interface {
	CreateHabit(ctx context.Context, habit model.Habit) error
	GetHabit(ctx context.Context, id string) (model.Habit, error)
	UpdateHabit(ctx context.Context, habit model.Habit) error
	ListHabits(ctx context.Context, filter HabitFilter) ([]model.Habit, error)

	CreateTask(ctx context.Context, task model.Task) error
	GetTask(ctx context.Context, id string) (model.Task, error)
	UpdateTask(ctx context.Context, task model.Task) error
	ListTasks(ctx context.Context, filter TaskFilter) ([]model.Task, error)

	GetCompletion(ctx context.Context, entityID string, day model.Day) (model.Completion, error)
	// CreateCompletion records a completion without touching the owning
	// entity; used for backdated days, which never advance a streak.
	CreateCompletion(ctx context.Context, completion model.Completion) error
	IncrementCompletion(ctx context.Context, entityID string, day model.Day, count int, notes string) (model.Completion, error)
	ListCompletions(ctx context.Context, entityID string, since model.Day) ([]model.Completion, error)

	// SaveHabitCompletion and SaveTaskCompletion persist a first-of-day
	// completion atomically with the streak update it produced.
	SaveHabitCompletion(ctx context.Context, completion model.Completion, habit model.Habit) error
	SaveTaskCompletion(ctx context.Context, completion model.Completion, task model.Task, entry model.HistoryEntry) error

	AppendHistory(ctx context.Context, entry model.HistoryEntry) error
	ListHistory(ctx context.Context, taskID string, limit int) ([]model.HistoryEntry, error)
	HasHistorySince(ctx context.Context, taskID string, action model.HistoryAction, since time.Time) (bool, error)

	SumPlannedEnergy(ctx context.Context, userID string, day model.Day) (int, error)
}
