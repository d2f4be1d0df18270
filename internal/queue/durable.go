package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/ternarybob/hoard/internal/models"
)

// ErrNoMessage is returned when the queue is empty
var ErrNoMessage = models.ErrNoMessage

// storedMessage wraps a queue message with delivery bookkeeping.
type storedMessage struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// DurableQueue is a persistent queue on BadgerDB. Messages carry a
// visibility timeout: a received message becomes invisible until its
// handler acknowledges it via the returned delete function, and is
// redelivered with exponential backoff (plus jitter) if the worker dies
// mid-execution. Messages received maxReceive times are dropped to break
// poison-pill loops.
type DurableQueue struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewDurableQueue creates a Badger-backed queue.
func NewDurableQueue(db *badger.DB, queueName string, visibilityTimeout time.Duration, maxReceive int) (*DurableQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = 5 * time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &DurableQueue{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Enqueue adds a message to the queue, immediately visible.
func (q *DurableQueue) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	id := uuid.New().String()

	sMsg := storedMessage{
		ID:         id,
		Body:       msg,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(),
	}

	data, err := json.Marshal(sMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	// Message data lives at queue:{name}:msg:{id}; a visibility index at
	// queue:{name}:index:{visibleAt}:{id} gives ordered scans for ready
	// messages without touching invisible ones.
	return q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(q.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(sMsg.VisibleAt, id), []byte{})
	})
}

// Receive pulls the next visible message. The returned delete function is
// the late acknowledgment: call it only after the handler finished.
func (q *DurableQueue) Receive(ctx context.Context) (*models.QueueMessage, func() error, error) {
	var sMsg storedMessage
	var msgID string
	var oldIndexKey []byte

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", q.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		found := false

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)

			ts, id, err := q.parseIndexKey(key)
			if err != nil {
				continue
			}

			// Index keys sort by timestamp; the first future entry means
			// nothing later is ready either.
			if ts.After(now) {
				break
			}

			msgItem, err := txn.Get(q.msgKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Orphaned index entry, clean it up and keep scanning.
					if err := txn.Delete(key); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := msgItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &sMsg)
			}); err != nil {
				return err
			}

			if sMsg.ReceiveCount >= q.maxReceive {
				// Poison pill: drop rather than loop forever.
				if err := txn.Delete(key); err != nil {
					return err
				}
				if err := txn.Delete(q.msgKey(id)); err != nil {
					return err
				}
				continue
			}

			found = true
			msgID = id
			oldIndexKey = key
			break
		}

		if !found {
			return ErrNoMessage
		}

		// Claim: bump receive count and push visibility out by the timeout
		// plus exponential backoff with jitter, so a repeatedly-failing
		// message is redelivered progressively later.
		sMsg.ReceiveCount++
		sMsg.VisibleAt = time.Now().Add(q.redeliveryDelay(sMsg.ReceiveCount))

		newData, err := json.Marshal(sMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(q.msgKey(msgID), newData); err != nil {
			return err
		}

		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(q.indexKey(sMsg.VisibleAt, msgID), []byte{})
	})

	if err != nil {
		return nil, nil, err
	}

	deleteFn := func() error {
		return q.db.Update(func(txn *badger.Txn) error {
			msgKey := q.msgKey(msgID)
			item, err := txn.Get(msgKey)
			if err != nil {
				if err == badger.ErrKeyNotFound {
					return nil // Already deleted
				}
				return err
			}

			var current storedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			if err := txn.Delete(q.indexKey(current.VisibleAt, msgID)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return txn.Delete(msgKey)
		})
	}

	return &sMsg.Body, deleteFn, nil
}

// Extend pushes an in-flight message's redelivery out by a fresh
// visibility window. Used as a heartbeat by workers whose handlers can
// outlive the timeout. A message that was already acknowledged is not an
// error.
func (q *DurableQueue) Extend(ctx context.Context, taskID string) error {
	return q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", q.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var sMsg storedMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sMsg)
			}); err != nil {
				return err
			}
			if sMsg.Body.TaskID != taskID {
				continue
			}

			oldIndexKey := q.indexKey(sMsg.VisibleAt, sMsg.ID)
			sMsg.VisibleAt = time.Now().Add(q.visibilityTimeout)

			data, err := json.Marshal(sMsg)
			if err != nil {
				return err
			}
			if err := txn.Set(q.msgKey(sMsg.ID), data); err != nil {
				return err
			}
			if err := txn.Delete(oldIndexKey); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
			return txn.Set(q.indexKey(sMsg.VisibleAt, sMsg.ID), []byte{})
		}
		return nil
	})
}

// Len counts queued messages, visible or not.
func (q *DurableQueue) Len(ctx context.Context) (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", q.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Close closes the queue (no-op; the Badger DB is managed externally).
func (q *DurableQueue) Close() error {
	return nil
}

// redeliveryDelay returns the visibility window for the nth delivery:
// base timeout doubled per prior receive, capped at 8x, with up to 10%
// random jitter to avoid thundering redeliveries.
func (q *DurableQueue) redeliveryDelay(receiveCount int) time.Duration {
	delay := q.visibilityTimeout
	for i := 1; i < receiveCount && delay < 8*q.visibilityTimeout; i++ {
		delay *= 2
	}
	if delay > 8*q.visibilityTimeout {
		delay = 8 * q.visibilityTimeout
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

func (q *DurableQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.queueName, id))
}

func (q *DurableQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string sorting matches numeric sorting
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.queueName, visibleAt.UnixNano(), id))
}

func (q *DurableQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", q.queueName)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	if len(suffix) < 21 { // 20 digits + 1 colon
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	tsStr := suffix[:20]
	id := suffix[21:]

	var ts int64
	if _, err := fmt.Sscanf(tsStr, "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), id, nil
}
