package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const publishTimeout = 2 * time.Second

// RedisBridge mirrors local bus events to a Redis channel and replays events
// from other instances onto the local bus.
type RedisBridge struct {
	client     *redis.Client
	bus        *EventBus
	channel    string
	instanceID string
	logger     *zerolog.Logger
}

func NewRedisBridge(client *redis.Client, bus *EventBus, channel string, logger *zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client:     client,
		bus:        bus,
		channel:    channel,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// Start subscribes to the channel and begins forwarding. It returns once the
// subscription is confirmed; forwarding stops when ctx is done.
func (r *RedisBridge) Start(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	unsubscribe := r.bus.Subscribe(AllEvents, r.forward)
	go r.listen(ctx, pubsub, unsubscribe)

	r.logger.Info().Str("channel", r.channel).Str("instance", r.instanceID).Msg("Redis event bridge started")
	return nil
}

func (r *RedisBridge) forward(event *Event) error {
	// События из Redis обратно не отправляем
	if event.Origin != "" {
		return nil
	}

	msg := *event
	msg.Origin = r.instanceID
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn().Err(err).Str("type", event.Type).Msg("Failed to publish event to Redis")
		return err
	}
	return nil
}

func (r *RedisBridge) listen(ctx context.Context, pubsub *redis.PubSub, unsubscribe func()) {
	defer unsubscribe()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn().Err(err).Msg("Dropping malformed event from Redis")
				continue
			}
			if event.Origin == r.instanceID {
				continue
			}
			r.bus.Publish(&event)
		}
	}
}
