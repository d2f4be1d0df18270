package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/hoard/internal/models"
)

func openTestBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMessage(taskID string) models.QueueMessage {
	payload, _ := json.Marshal(map[string]string{"k": "v"})
	return models.QueueMessage{
		TaskID:  taskID,
		Type:    models.TaskTypeArchiveBatch,
		Payload: payload,
	}
}

func TestDurableQueue_EnqueueReceiveAck(t *testing.T) {
	db := openTestBadger(t)
	q, err := NewDurableQueue(db, "test", time.Minute, 5)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testMessage("task_1")))

	depth, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	msg, ack, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "task_1", msg.TaskID)
	assert.Equal(t, models.TaskTypeArchiveBatch, msg.Type)

	// In flight: still counted, but not visible for a second receive.
	depth, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	require.NoError(t, ack())

	depth, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestDurableQueue_FIFOByEnqueueTime(t *testing.T) {
	db := openTestBadger(t)
	q, err := NewDurableQueue(db, "test", time.Minute, 5)
	require.NoError(t, err)

	ctx := context.Background()
	for _, id := range []string{"task_a", "task_b", "task_c"} {
		require.NoError(t, q.Enqueue(ctx, testMessage(id)))
		time.Sleep(2 * time.Millisecond) // Distinct index timestamps
	}

	for _, want := range []string{"task_a", "task_b", "task_c"} {
		msg, ack, err := q.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, msg.TaskID)
		require.NoError(t, ack())
	}
}

func TestDurableQueue_RedeliveryAfterVisibilityTimeout(t *testing.T) {
	db := openTestBadger(t)
	q, err := NewDurableQueue(db, "test", 50*time.Millisecond, 5)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testMessage("task_1")))

	// Receive without acking, simulating a worker crash mid-handler.
	msg, _, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "task_1", msg.TaskID)

	// Redelivery delay is visibility timeout plus jitter; wait past it.
	time.Sleep(120 * time.Millisecond)

	msg, ack, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "task_1", msg.TaskID, "unacked message must be redelivered")
	require.NoError(t, ack())
}

func TestDurableQueue_MaxReceiveDropsPoisonPill(t *testing.T) {
	db := openTestBadger(t)
	q, err := NewDurableQueue(db, "test", time.Millisecond, 2)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testMessage("task_1")))

	// Burn through the allowed deliveries without acking.
	for i := 0; i < 2; i++ {
		_, _, err := q.Receive(ctx)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}

	// Third attempt finds the message over its receive budget and drops it.
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	depth, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth, "poison pill must be removed from the backlog")
}

func TestDurableQueue_AckIsIdempotent(t *testing.T) {
	db := openTestBadger(t)
	q, err := NewDurableQueue(db, "test", time.Minute, 5)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testMessage("task_1")))

	_, ack, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, ack())
	assert.NoError(t, ack(), "double ack must not error")
}

func TestDurableQueue_ExtendDefersRedelivery(t *testing.T) {
	db := openTestBadger(t)
	q, err := NewDurableQueue(db, "test", 60*time.Millisecond, 5)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, testMessage("task_long")))

	_, ack, err := q.Receive(ctx)
	require.NoError(t, err)

	// Heartbeat past the original window: each extend grants a fresh one.
	for i := 0; i < 3; i++ {
		time.Sleep(40 * time.Millisecond)
		require.NoError(t, q.Extend(ctx, "task_long"))
	}

	// 120ms after the original deadline the message is still invisible.
	_, _, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrNoMessage)

	require.NoError(t, ack())
	depth, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestDurableQueue_ExtendUnknownTaskIsNoOp(t *testing.T) {
	db := openTestBadger(t)
	q, err := NewDurableQueue(db, "test", time.Minute, 5)
	require.NoError(t, err)

	assert.NoError(t, q.Extend(context.Background(), "task_missing"))
}
