// Package events pushes streak milestones onto a Redis queue for
// downstream consumers (notifications, weekly digests). Publishing is
// best effort: a completion never fails because the queue is down.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ritmohq/ritmo/internal/model"
)

const defaultQueue = "ritmo:streak-events"

type StreakEvent struct {
	Type        string    `json:"type"`
	EntityID    string    `json:"entityId"`
	EntityKind  string    `json:"entityKind"`
	UserID      string    `json:"userId"`
	Day         string    `json:"day"`
	Streak      int       `json:"streak"`
	BestStreak  int       `json:"bestStreak"`
	IsNewRecord bool      `json:"isNewRecord"`
	OccurredAt  time.Time `json:"occurredAt"`
}

type Publisher struct {
	client *redis.Client
	queue  string
	logger *log.Logger
}

// NewPublisher wraps a Redis client. A nil client yields a disabled
// publisher whose methods are no-ops, so callers never branch.
func NewPublisher(client *redis.Client, queue string, logger *log.Logger) *Publisher {
	if queue == "" {
		queue = defaultQueue
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Publisher{client: client, queue: queue, logger: logger}
}

func (p *Publisher) Enabled() bool {
	return p != nil && p.client != nil
}

func (p *Publisher) PublishStreak(ctx context.Context, event StreakEvent) {
	if !p.Enabled() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Printf("events: marshal %s event for %s: %v", event.Type, event.EntityID, err)
		return
	}
	if err := p.client.LPush(ctx, p.queue, payload).Err(); err != nil {
		p.logger.Printf("events: push %s event for %s: %v", event.Type, event.EntityID, err)
	}
}

// StreakAdvanced builds the event emitted after a first completion of
// the day moves a chain forward.
func StreakAdvanced(entityKind, entityID, userID string, day model.Day, streak, best int, isNewRecord bool) StreakEvent {
	eventType := "streak.advanced"
	if isNewRecord {
		eventType = "streak.record"
	}
	return StreakEvent{
		Type:        eventType,
		EntityID:    entityID,
		EntityKind:  entityKind,
		UserID:      userID,
		Day:         day.String(),
		Streak:      streak,
		BestStreak:  best,
		IsNewRecord: isNewRecord,
	}
}

// Close releases the underlying connection when the publisher owns one.
func (p *Publisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("events: close redis: %w", err)
	}
	return nil
}
