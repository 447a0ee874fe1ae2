package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collector struct {
	mu     sync.Mutex
	events []*Event
}

func (c *collector) handle(e *Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestRedisBridge(t *testing.T) {
	mr := miniredis.RunT(t)
	logger := zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer clientA.Close()
	defer clientB.Close()

	busA := NewEventBus()
	busB := NewEventBus()
	require.NoError(t, NewRedisBridge(clientA, busA, "salonbook:test", &logger).Start(ctx))
	require.NoError(t, NewRedisBridge(clientB, busB, "salonbook:test", &logger).Start(ctx))

	var onA, onB collector
	busA.Subscribe(EventOverrideChanged, onA.handle)
	busB.Subscribe(EventOverrideChanged, onB.handle)

	require.NoError(t, busA.PublishJSON(EventOverrideChanged, 5, OverrideEventPayload{OverrideID: 1, ProfessionalID: 5}))

	require.Eventually(t, func() bool { return onB.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Событие не возвращается на исходный экземпляр и не зацикливается
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, onA.count())
	assert.Equal(t, 1, onB.count())

	onB.mu.Lock()
	got := onB.events[0]
	onB.mu.Unlock()
	assert.Equal(t, int64(5), got.ProfessionalID)
	assert.NotEmpty(t, got.Origin)
}

func TestRedisBridge_SubscribeError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	logger := zerolog.Nop()
	err := NewRedisBridge(client, NewEventBus(), "ch", &logger).Start(context.Background())
	assert.Error(t, err)
}
