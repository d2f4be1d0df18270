package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestMemoryQueue_FIFOOrder(t *testing.T) {
	var mu sync.Mutex
	var got []int

	q := NewMemoryQueue("test", func(ctx context.Context, task int) error {
		mu.Lock()
		got = append(got, task)
		mu.Unlock()
		return nil
	}, arbor.NewLogger())
	defer q.Stop()

	for i := 0; i < 10; i++ {
		q.Submit(i)
	}

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 10
	})

	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v, "tasks must be processed in submission order")
	}
}

func TestMemoryQueue_PanicDoesNotKillConsumer(t *testing.T) {
	var mu sync.Mutex
	var got []string

	q := NewMemoryQueue("test", func(ctx context.Context, task string) error {
		if task == "boom" {
			panic("handler exploded")
		}
		mu.Lock()
		got = append(got, task)
		mu.Unlock()
		return nil
	}, arbor.NewLogger())
	defer q.Stop()

	q.Submit("boom")
	q.Submit("after")

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"after"}, got, "task after a panic must still be processed")
}

func TestMemoryQueue_HandlerErrorDoesNotKillConsumer(t *testing.T) {
	var mu sync.Mutex
	processed := 0

	q := NewMemoryQueue("test", func(ctx context.Context, task error) error {
		mu.Lock()
		processed++
		mu.Unlock()
		return task
	}, arbor.NewLogger())
	defer q.Stop()

	q.Submit(assert.AnError)
	q.Submit(nil)

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return processed == 2
	})
}

func TestMemoryQueue_Len(t *testing.T) {
	block := make(chan struct{})
	q := NewMemoryQueue("test", func(ctx context.Context, task int) error {
		<-block
		return nil
	}, arbor.NewLogger())
	defer q.Stop()

	q.Submit(1)
	q.Submit(2)
	q.Submit(3)

	// The consumer takes one task; the other two stay queued.
	waitFor(t, 2*time.Second, func() bool { return q.Len() == 2 })
	close(block)
	waitFor(t, 2*time.Second, func() bool { return q.Len() == 0 })
}
