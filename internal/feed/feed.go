// Package feed carries change notifications to live subscribers.
//
// Producers publish (topic, JSON payload) pairs. In a single instance the
// websocket hub is the Publisher; with Redis configured, RedisPublisher fans the
// message out to every instance and each instance's Relay hands it to its hub.
package feed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Publisher delivers a JSON payload to everyone subscribed to topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Envelope is the wire form shared by the Redis bridge and websocket clients.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Encode wraps payload for topic.
func Encode(topic string, payload []byte) ([]byte, error) {
	data, err := json.Marshal(Envelope{Topic: topic, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode feed message for %s: %w", topic, err)
	}
	return data, nil
}

// Publish marshals v and publishes it on topic.
func Publish(ctx context.Context, pub Publisher, topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal feed payload: %w", err)
	}
	return pub.Publish(ctx, topic, payload)
}

// RedisPublisher publishes every topic on one Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	data, err := Encode(topic, payload)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, string(data)).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis channel %s: %w", p.channel, err)
	}
	return nil
}

// Relay copies messages from the Redis channel into a local Publisher.
type Relay struct {
	client  *redis.Client
	channel string
	local   Publisher
	log     *zap.Logger
}

func NewRelay(client *redis.Client, channel string, local Publisher, log *zap.Logger) *Relay {
	return &Relay{client: client, channel: channel, local: local, log: log}
}

// Run blocks until ctx is done or the subscription closes.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.log.Info("feed relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.dispatch(ctx, msg.Payload)
		}
	}
}

func (r *Relay) dispatch(ctx context.Context, raw string) {
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		r.log.Warn("dropping malformed feed message", zap.Error(err))
		return
	}
	if err := r.local.Publish(ctx, env.Topic, env.Payload); err != nil {
		r.log.Warn("failed to relay feed message", zap.String("topic", env.Topic), zap.Error(err))
	}
}
