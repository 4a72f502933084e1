package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"revos.app/pipeline/common/logger"
	"revos.app/pipeline/internal/queue"
)

// Handler processes one task of a single type.
type Handler func(ctx context.Context, task queue.Task) error

// PermanentError marks a failure that retrying cannot fix. The worker
// routes permanently failed messages straight to the DLQ instead of
// burning the remaining attempts.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the worker stops retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

type Config struct {
	MaxAttempts int
	Concurrency int // messages processed in parallel per batch
}

// Worker drains one stream, dispatching each message to the handler
// registered for its task type.
type Worker struct {
	consumer *queue.RedisConsumer
	handlers map[queue.TaskType]Handler
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, handlers map[queue.TaskType]Handler, cfg Config) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Worker{
		consumer:  consumer,
		handlers:  handlers,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started",
		"stream", w.consumer.Stream(),
		"concurrency", w.cfg.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping", "stream", w.consumer.Stream())
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, msg := range messages {
		sem <- struct{}{}
		wg.Add(1)
		go func(msg queue.Message) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.processMessageSafe(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "message processing failed",
					"error", err,
					"message_id", msg.ID,
					"task_type", msg.Task.Type)
				w.handleFailedMessage(ctx, msg, err)
			}
		}(msg)
	}
	wg.Wait()

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"task_type", msg.Task.Type)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// Exported so it can be reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	taskType := string(msg.Task.Type)
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: &msg.ID,
		TaskType:  &taskType,
	})

	handler, ok := w.handlers[msg.Task.Type]
	if !ok {
		// No handler registered on this worker: misrouted message,
		// retrying will not help.
		slog.ErrorContext(ctx, "no handler for task type, sending to DLQ")
		if err := w.consumer.SendDLQ(ctx, msg, "no handler for task type"); err != nil {
			return fmt.Errorf("sending unroutable message to DLQ: %w", err)
		}
		return nil
	}

	slog.InfoContext(ctx, "processing message", "attempt", msg.Task.Attempt)

	start := time.Now()
	if err := handler(ctx, msg.Task); err != nil {
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Message will be reclaimed, which is safe: handlers dedup
		// through storage.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}

	slog.InfoContext(ctx, "message processed",
		"duration_ms", time.Since(start).Milliseconds())

	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	var perm *PermanentError
	if errors.As(err, &perm) {
		slog.ErrorContext(ctx, "permanent failure, sending to DLQ",
			"message_id", msg.ID,
			"error", err)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	if msg.Task.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"attempts", msg.Task.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"attempt", msg.Task.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
