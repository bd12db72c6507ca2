package sweep

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var ErrInvalidSchedule = errors.New("sweep: invalid schedule")

// Runner is satisfied by *Sweeper; triggers only need Run.
type Runner interface {
	Run(ctx context.Context) (Summary, error)
}

// Trigger fires the sweep at a fixed local hour every day, plus a
// shorter redundancy interval to recover from missed boundary runs
// (process restarts, suspended machines). The sweep is idempotent, so
// the extra runs are safe.
type Trigger struct {
	runner     Runner
	dailyHour  int
	redundancy time.Duration
	loc        *time.Location
	logger     *log.Logger

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewTrigger(runner Runner, dailyHour int, redundancy time.Duration, loc *time.Location, logger *log.Logger) (*Trigger, error) {
	if dailyHour < 0 || dailyHour > 23 {
		return nil, ErrInvalidSchedule
	}
	if redundancy < time.Minute {
		return nil, ErrInvalidSchedule
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Trigger{
		runner:     runner,
		dailyHour:  dailyHour,
		redundancy: redundancy,
		loc:        loc,
		logger:     logger,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

func (t *Trigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	go t.loop()
}

func (t *Trigger) Stop() {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	close(t.stopCh)
	t.mu.Unlock()
	<-t.doneCh
}

func (t *Trigger) loop() {
	defer close(t.doneCh)

	timer := time.NewTimer(time.Until(t.nextBoundary(time.Now())))
	defer stopTimer(timer)
	ticker := time.NewTicker(t.redundancy)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			t.fire("daily")
			timer.Reset(time.Until(t.nextBoundary(time.Now())))
		case <-ticker.C:
			t.fire("redundancy")
		case <-t.stopCh:
			return
		}
	}
}

func (t *Trigger) fire(reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := t.runner.Run(ctx); err != nil {
		t.logger.Printf("sweep: %s run failed: %v", reason, err)
	}
}

// nextBoundary returns the next occurrence of the daily hour in the
// trigger's location, strictly after now.
func (t *Trigger) nextBoundary(now time.Time) time.Time {
	local := now.In(t.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), t.dailyHour, 0, 0, 0, t.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func stopTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
