// Package service implements the application operations on habits and
// tasks: creation, planning, completion with streak accounting, and the
// day summary. Handlers translate its sentinel errors to status codes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ritmohq/ritmo/internal/events"
	"github.com/ritmohq/ritmo/internal/model"
	"github.com/ritmohq/ritmo/internal/storage"
)

var (
	ErrNotFound             = errors.New("service: not found")
	ErrInactiveHabit        = errors.New("service: habit is inactive")
	ErrEnergyBudgetExceeded = errors.New("service: daily energy budget exceeded")
	ErrFutureCompletion     = errors.New("service: completion day is in the future")
)

// The calculator's daily recompute never looks back further than a year,
// so neither does the ledger query feeding it.
const ledgerWindowDays = 366

type Service struct {
	repo         storage.Repository
	publisher    *events.Publisher
	energyBudget int
	logger       *log.Logger
	now          func() time.Time
}

func New(repo storage.Repository, publisher *events.Publisher, energyBudget int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		repo:         repo,
		publisher:    publisher,
		energyBudget: energyBudget,
		logger:       logger,
		now:          time.Now,
	}
}

// CompleteInput carries the optional parts of a completion: the day
// (today when zero, backdating allowed, the future rejected), how many
// times the entity was done, and free-form notes.
type CompleteInput struct {
	Day   model.Day
	Count int
	Notes string
}

// CompletionResult is returned by both completion paths. Duplicate marks
// a repeat completion of an already-completed day: the count went up but
// the streak was left alone.
type CompletionResult struct {
	Completion  model.Completion
	Streak      int
	BestStreak  int
	IsNewRecord bool
	Duplicate   bool
}

func (s *Service) resolveCompletion(input CompleteInput) (model.Day, int, error) {
	day := input.Day
	today := s.today()
	if day.IsZero() {
		day = today
	}
	if day.After(today) {
		return model.Day{}, 0, ErrFutureCompletion
	}
	count := input.Count
	if count <= 0 {
		count = 1
	}
	return day, count, nil
}

func (s *Service) incrementCompletion(ctx context.Context, entityID string, day model.Day, count int, notes string, streak, best int) (CompletionResult, error) {
	updated, err := s.repo.IncrementCompletion(ctx, entityID, day, count, notes)
	if err != nil {
		return CompletionResult{}, fmt.Errorf("increment completion: %w", err)
	}
	return CompletionResult{
		Completion: updated,
		Streak:     streak,
		BestStreak: best,
		Duplicate:  true,
	}, nil
}

func (s *Service) today() model.Day {
	return model.DayOf(s.now())
}

func (s *Service) ledger(ctx context.Context, entityID string, today model.Day) ([]model.Completion, error) {
	return s.repo.ListCompletions(ctx, entityID, today.AddDays(-ledgerWindowDays))
}

func translateNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
