package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"salonbook/internal/database"
	"salonbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu    sync.Mutex
	calls []models.NotificationPayload
	err   error
}

func (h *recordingHandler) Deliver(_ context.Context, p models.NotificationPayload) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, p)
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func enqueue(t *testing.T, db *database.DB, channel, payload string) int64 {
	t.Helper()
	task := &models.NotificationTask{Channel: channel, ReservationID: 5, Payload: payload}
	require.NoError(t, db.CreateNotificationTask(context.Background(), task))
	return task.ID
}

func validPayload(t *testing.T) string {
	t.Helper()
	data, err := json.Marshal(models.NotificationPayload{
		Event:       models.NotifyCreated,
		Reservation: models.Reservation{ID: 5, ClientEmail: "a@example.com", Status: models.StatusPending},
	})
	require.NoError(t, err)
	return string(data)
}

type taskRow struct {
	status    string
	retries   int
	lastError *string
}

func loadTask(t *testing.T, db *database.DB, id int64) taskRow {
	t.Helper()
	var row taskRow
	err := db.QueryRow(`SELECT status, retry_count, last_error FROM notification_queue WHERE id = ?`, id).
		Scan(&row.status, &row.retries, &row.lastError)
	require.NoError(t, err)
	return row
}

func TestProcessBatch_Success(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.Nop()
	email := &recordingHandler{}
	w := NewNotificationWorker(db, map[string]Handler{models.ChannelEmail: email}, nil, RetryPolicy{}, &logger)

	id := enqueue(t, db, models.ChannelEmail, validPayload(t))
	n, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, email.calls, 1)
	assert.Equal(t, models.NotifyCreated, email.calls[0].Event)
	assert.Equal(t, int64(5), email.calls[0].Reservation.ID)
	assert.Equal(t, models.TaskDone, loadTask(t, db, id).status)
}

func TestProcessBatch_RetryThenDead(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.Nop()
	failing := &recordingHandler{err: errors.New("bot blocked")}
	w := NewNotificationWorker(db, map[string]Handler{models.ChannelTelegram: failing}, nil,
		RetryPolicy{MaxRetries: 2, InitialDelay: time.Minute}, &logger)

	id := enqueue(t, db, models.ChannelTelegram, validPayload(t))
	ctx := context.Background()

	_, err := w.ProcessBatch(ctx)
	require.NoError(t, err)
	row := loadTask(t, db, id)
	assert.Equal(t, models.TaskRetry, row.status)
	assert.Equal(t, 1, row.retries)
	require.NotNil(t, row.lastError)
	assert.Equal(t, "bot blocked", *row.lastError)

	// Задача отложена на минуту и не видна
	n, err := w.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = db.Exec(`UPDATE notification_queue SET next_retry_at = ? WHERE id = ?`, time.Now().UTC().Add(-time.Second), id)
	require.NoError(t, err)
	_, err = w.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TaskDeadLetter, loadTask(t, db, id).status)
	assert.Len(t, failing.calls, 2)
}

func TestProcessBatch_BadPayloadAndUnknownChannel(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.Nop()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	email := &recordingHandler{}
	w := NewNotificationWorker(db, map[string]Handler{models.ChannelEmail: email}, rdb, RetryPolicy{}, &logger)

	garbage := enqueue(t, db, models.ChannelEmail, "{not json")
	unknown := enqueue(t, db, "pigeon", validPayload(t))

	_, err := w.ProcessBatch(context.Background())
	require.NoError(t, err)

	assert.Empty(t, email.calls)
	assert.Equal(t, models.TaskDeadLetter, loadTask(t, db, garbage).status)
	assert.Equal(t, models.TaskDeadLetter, loadTask(t, db, unknown).status)

	items, err := mr.List(deadLetterKey)
	require.NoError(t, err)
	require.Len(t, items, 2)

	reasons := make(map[int64]string)
	for _, item := range items {
		var dead models.NotificationTask
		require.NoError(t, json.Unmarshal([]byte(item), &dead))
		require.NotNil(t, dead.LastError)
		reasons[dead.ID] = *dead.LastError
	}
	assert.Contains(t, reasons[unknown], "pigeon")
	assert.Contains(t, reasons[garbage], "decode payload")
}

func TestHandlerFuncAndChannels(t *testing.T) {
	logger := zerolog.Nop()
	var got string
	h := HandlerFunc(func(_ context.Context, p models.NotificationPayload) error {
		got = p.Event
		return nil
	})
	require.NoError(t, h.Deliver(context.Background(), models.NotificationPayload{Event: models.NotifyCancelled}))
	assert.Equal(t, models.NotifyCancelled, got)

	w := NewNotificationWorker(nil, map[string]Handler{
		models.ChannelSheets: h,
		models.ChannelEmail:  h,
	}, nil, RetryPolicy{}, &logger)
	assert.Equal(t, []string{models.ChannelEmail, models.ChannelSheets}, w.Channels())
}

func TestStart_StopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.Nop()
	email := &recordingHandler{}
	w := NewNotificationWorker(db, map[string]Handler{models.ChannelEmail: email}, nil, RetryPolicy{}, &logger)
	w.pollInterval = 10 * time.Millisecond
	enqueue(t, db, models.ChannelEmail, validPayload(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return email.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}.withDefaults()
	assert.Equal(t, 3, policy.MaxRetries)
	assert.Equal(t, DefaultRetryPolicy.InitialDelay, policy.InitialDelay)
	assert.Equal(t, 4*time.Second, policy.NextDelay(2))

	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
	assert.False(t, RetryPolicy{}.Exhausted(100), "zero policy never gives up on its own")
}
