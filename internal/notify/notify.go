// Package notify reports operation outcomes to the actor who triggered them.
// Delivery is best effort and never affects the outcome itself.
package notify

import (
	"context"
	"errors"
	"time"

	"opsboard/internal/feed"

	"go.uber.org/zap"
)

// Notification is one success or failure outcome.
type Notification struct {
	Actor     string    `json:"actor"`
	Operation string    `json:"operation"`
	EntityID  string    `json:"entity_id"`
	OK        bool      `json:"ok"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }

// ZapSink writes notifications to the structured log.
type ZapSink struct {
	log *zap.Logger
}

func NewZapSink(log *zap.Logger) *ZapSink {
	return &ZapSink{log: log}
}

func (s *ZapSink) Notify(_ context.Context, n Notification) error {
	fields := []zap.Field{
		zap.String("actor", n.Actor),
		zap.String("operation", n.Operation),
		zap.String("entity_id", n.EntityID),
		zap.Bool("ok", n.OK),
	}
	if n.Code != "" {
		fields = append(fields, zap.String("code", n.Code))
	}
	s.log.Info(n.Message, fields...)
	return nil
}

// FeedSink publishes notifications on the live feed under notifications:<actor>.
type FeedSink struct {
	pub feed.Publisher
}

func NewFeedSink(pub feed.Publisher) *FeedSink {
	return &FeedSink{pub: pub}
}

// TopicPrefix starts every notification topic; the rest is the actor id.
const TopicPrefix = "notifications:"

// Topic is the feed topic carrying notifications for actor.
func Topic(actor string) string {
	return TopicPrefix + actor
}

func (s *FeedSink) Notify(ctx context.Context, n Notification) error {
	return feed.Publish(ctx, s.pub, Topic(n.Actor), n)
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
