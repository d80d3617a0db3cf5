package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/driftspace/backend/internal/domain"
)

// envelope is the wire form of an event on the Redis channel. The
// recipient list travels with the event so every instance can route it
// to whichever of those users are connected locally.
type envelope struct {
	Recipients []uuid.UUID `json:"recipients"`
	Event      rawEvent    `json:"event"`
}

type rawEvent struct {
	Type  domain.EventType `json:"type"`
	Actor uuid.UUID        `json:"actor"`
	Data  json.RawMessage  `json:"data"`
}

// RedisBridge fans events out across instances over a pub/sub channel.
// Every instance publishes mutations here and subscribes to deliver
// incoming events to its own websocket clients. Semantics stay
// at-most-once: Redis pub/sub does not retain messages for absent
// subscribers.
type RedisBridge struct {
	rdb     *redis.Client
	channel string
	local   domain.EventPublisher
	logger  *zap.Logger
}

func NewRedisBridge(rdb *redis.Client, channel string, local domain.EventPublisher, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{
		rdb:     rdb,
		channel: channel,
		local:   local,
		logger:  logger,
	}
}

// Publish implements domain.EventPublisher by relaying through Redis.
func (b *RedisBridge) Publish(ctx context.Context, event domain.Event, recipients []uuid.UUID) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		b.logger.Error("failed to encode event data", zap.Error(err), zap.String("type", string(event.Type)))
		return
	}

	payload, err := json.Marshal(envelope{
		Recipients: recipients,
		Event:      rawEvent{Type: event.Type, Actor: event.Actor, Data: data},
	})
	if err != nil {
		b.logger.Error("failed to encode event envelope", zap.Error(err))
		return
	}

	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Error("failed to publish event", zap.Error(err), zap.String("type", string(event.Type)))
	}
}

// Run subscribes to the channel and delivers incoming events to the
// local websocket clients until the context is cancelled. Undecodable
// payloads are dropped; one bad message never stops the stream.
func (b *RedisBridge) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("dropping malformed event envelope", zap.Error(err))
				continue
			}
			b.local.Publish(ctx, domain.Event{
				Type:  env.Event.Type,
				Actor: env.Event.Actor,
				Data:  env.Event.Data,
			}, env.Recipients)
		}
	}
}
