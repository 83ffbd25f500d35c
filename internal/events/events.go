// Package events publishes limiter outcomes to a watermill message bus.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/krishna-kudari/windowlimit"
	"github.com/krishna-kudari/windowlimit/clock"
)

const (
	TopicDenied      = "ratelimit.denied"
	TopicStoreFailed = "ratelimit.store_failed"
)

// DeniedEvent is published when a key goes over its budget.
type DeniedEvent struct {
	Key      string    `json:"key"`
	Count    int64     `json:"count"`
	Limit    int64     `json:"limit"`
	DeniedAt time.Time `json:"denied_at"`
}

// StoreFailedEvent is published when the counter store could not be reached.
type StoreFailedEvent struct {
	Key      string    `json:"key"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Publisher publishes limiter events. It implements windowlimit.Observer.
type Publisher struct {
	publisher message.Publisher
	clock     clock.Clock
	logger    *zap.Logger
}

// NewPublisher creates a new event publisher. A nil logger is replaced by a no-op.
func NewPublisher(publisher message.Publisher, c clock.Clock, logger *zap.Logger) *Publisher {
	if c == nil {
		c = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{publisher: publisher, clock: c, logger: logger}
}

// PublishDenied publishes a denied event.
func (p *Publisher) PublishDenied(event *DeniedEvent) error {
	return p.publish(TopicDenied, event)
}

// PublishStoreFailed publishes a store failure event.
func (p *Publisher) PublishStoreFailed(event *StoreFailedEvent) error {
	return p.publish(TopicStoreFailed, event)
}

// Observe turns rejections and store failures into events. Accepted requests
// and empty keys publish nothing. Publish failures are logged, never returned.
func (p *Publisher) Observe(_ context.Context, key string, d *windowlimit.Decision, err error) {
	var pubErr error
	switch {
	case errors.Is(err, windowlimit.ErrStoreUnavailable):
		pubErr = p.PublishStoreFailed(&StoreFailedEvent{
			Key:      key,
			Error:    err.Error(),
			FailedAt: p.clock.Now(),
		})
	case err == nil && d != nil && !d.Allowed:
		pubErr = p.PublishDenied(&DeniedEvent{
			Key:      key,
			Count:    d.Count,
			Limit:    d.Limit,
			DeniedAt: p.clock.Now(),
		})
	default:
		return
	}
	if pubErr != nil {
		p.logger.Warn("failed to publish rate limit event", zap.String("key", key), zap.Error(pubErr))
	}
}

// Shutdown closes the underlying publisher.
func (p *Publisher) Shutdown() error {
	return p.publisher.Close()
}

func (p *Publisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)

	return p.publisher.Publish(topic, msg)
}
