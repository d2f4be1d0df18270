package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hoard/internal/interfaces"
	"github.com/ternarybob/hoard/internal/models"
)

// TaskHandler is a function that handles a specific task type
type TaskHandler func(ctx context.Context, msg *models.QueueMessage) error

// Worker is a single poll-loop consumer over the durable queue. Handlers
// are keyed by task type; a failing or panicking handler never stops the
// loop. Acknowledgment is late: the message is deleted only after its
// handler returns, so work in flight when the process dies is redelivered.
type Worker struct {
	queueMgr     interfaces.QueueManager
	pollInterval time.Duration
	extendEvery  time.Duration
	handlers     map[string]TaskHandler
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorker creates a worker for the given queue.
func NewWorker(queueMgr interfaces.QueueManager, pollInterval time.Duration, logger arbor.ILogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		queueMgr:     queueMgr,
		pollInterval: pollInterval,
		handlers:     make(map[string]TaskHandler),
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// RegisterHandler registers a task type handler. Not safe to call after Start.
func (w *Worker) RegisterHandler(taskType string, handler TaskHandler) {
	w.handlers[taskType] = handler
	w.logger.Debug().
		Str("task_type", taskType).
		Msg("Task handler registered")
}

// extender is implemented by queues that can push an in-flight message's
// redelivery further out.
type extender interface {
	Extend(ctx context.Context, taskID string) error
}

// ExtendEvery enables a visibility heartbeat: while a handler runs, the
// message's redelivery is pushed out at this interval so long batches are
// not redelivered mid-execution. Use half the visibility timeout.
// Not safe to call after Start.
func (w *Worker) ExtendEvery(interval time.Duration) {
	w.extendEvery = interval
}

// Start starts the consumer goroutine.
func (w *Worker) Start() {
	w.logger.Info().
		Dur("poll_interval", w.pollInterval).
		Msg("Queue worker starting")
	go w.loop()
}

// Stop stops the consumer. An in-flight handler runs to completion.
func (w *Worker) Stop() {
	w.logger.Info().Msg("Queue worker stopping")
	w.cancel()
}

func (w *Worker) loop() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug().Msg("Queue worker stopped")
			return

		case <-ticker.C:
			if err := w.processMessage(); err != nil && !errors.Is(err, ErrNoMessage) {
				w.logger.Warn().
					Err(err).
					Msg("Error processing queue message")
			}
		}
	}
}

// processMessage receives and processes a single message.
func (w *Worker) processMessage() error {
	msg, ack, err := w.queueMgr.Receive(w.ctx)
	if err != nil {
		return err
	}

	handler, exists := w.handlers[msg.Type]
	if !exists {
		w.logger.Error().
			Str("type", msg.Type).
			Str("task_id", msg.TaskID).
			Msg("No handler registered for task type")
		// Acknowledge messages with unknown types; redelivery cannot fix them.
		if ackErr := ack(); ackErr != nil {
			w.logger.Warn().Err(ackErr).Msg("Failed to delete unknown task type message")
		}
		return fmt.Errorf("no handler for task type: %s", msg.Type)
	}

	w.logger.Debug().
		Str("task_id", msg.TaskID).
		Str("type", msg.Type).
		Msg("Processing message")

	stopHeartbeat := w.startHeartbeat(msg.TaskID)

	startTime := time.Now()
	handlerErr := w.invoke(handler, msg)
	duration := time.Since(startTime)
	stopHeartbeat()

	if handlerErr != nil {
		w.logger.Error().
			Err(handlerErr).
			Str("task_id", msg.TaskID).
			Str("type", msg.Type).
			Dur("duration", duration).
			Msg("Task handler failed")

		// No ack: the message stays on the queue and is redelivered after
		// its visibility window, up to the queue's max receive count.
		return handlerErr
	}

	w.logger.Info().
		Str("task_id", msg.TaskID).
		Str("type", msg.Type).
		Dur("duration", duration).
		Msg("Task completed")

	if err := ack(); err != nil {
		w.logger.Warn().
			Err(err).
			Str("task_id", msg.TaskID).
			Msg("Failed to delete message after successful processing")
		return err
	}

	return nil
}

// startHeartbeat keeps an in-flight message invisible while its handler
// runs. Returns a stop function; a no-op when the heartbeat is disabled
// or the queue cannot extend.
func (w *Worker) startHeartbeat(taskID string) func() {
	ext, ok := w.queueMgr.(extender)
	if !ok || w.extendEvery <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.extendEvery)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				if err := ext.Extend(w.ctx, taskID); err != nil {
					w.logger.Warn().
						Err(err).
						Str("task_id", taskID).
						Msg("Failed to extend message visibility")
				}
			}
		}
	}()
	return func() { close(done) }
}

// invoke runs a handler with panic recovery.
func (w *Worker) invoke(handler TaskHandler, msg *models.QueueMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			w.logger.Error().
				Str("task_id", msg.TaskID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(buf[:n])).
				Msg("Task handler panicked")
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler(w.ctx, msg)
}
