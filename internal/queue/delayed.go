package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"revos.app/pipeline/common/logger"
)

type DelayedSchedulerConfig struct {
	DelayedSet string
	Interval   time.Duration // how often due members are promoted
	BatchSize  int64
}

// DelayedScheduler promotes due members of the delayed sorted set into
// their target streams. Streams have no native delay, so delayed jobs live
// in a ZSET scored by due time until this loop moves them.
type DelayedScheduler struct {
	client *redis.Client
	cfg    DelayedSchedulerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewDelayedScheduler(client *redis.Client, cfg DelayedSchedulerConfig) *DelayedScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &DelayedScheduler{
		client:    client,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run starts the promotion loop. Blocks until Stop() is called.
func (s *DelayedScheduler) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "pipeline.queue.delayed",
	})

	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "delayed scheduler started",
		"interval", s.cfg.Interval,
		"set", s.cfg.DelayedSet)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "delayed scheduler stopping")
			return
		case <-ticker.C:
			if err := s.promoteDue(ctx); err != nil {
				slog.ErrorContext(ctx, "promotion cycle error", "error", err)
			}
		}
	}
}

// Stop signals the scheduler to stop gracefully.
func (s *DelayedScheduler) Stop() {
	close(s.stopCh)
	<-s.stoppedCh
}

func (s *DelayedScheduler) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	payloadKey := delayedPayloadKey(s.cfg.DelayedSet)

	// Members are job ids; the payload hash resolves them to stream+task.
	jobIDs, err := s.client.ZRangeByScore(ctx, s.cfg.DelayedSet, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: s.cfg.BatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("reading due tasks: %w", err)
	}

	for _, jobID := range jobIDs {
		payload, err := s.client.HGet(ctx, payloadKey, jobID).Result()
		if err != nil {
			if err == redis.Nil {
				// Producer mid-write or cancelled out from under us.
				continue
			}
			return fmt.Errorf("resolving delayed payload: %w", err)
		}

		var entry delayedEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			slog.ErrorContext(ctx, "dropping malformed delayed entry",
				"error", err, "job_id", jobID)
			_ = s.client.ZRem(ctx, s.cfg.DelayedSet, jobID).Err()
			_ = s.client.HDel(ctx, payloadKey, jobID).Err()
			continue
		}

		// Remove first: if the ZREM races a concurrent scheduler the loser
		// removes zero members and skips, so a task is promoted once. The
		// payload goes with it before the XADD, so a handler that re-parks
		// the same job id right after promotion never has its fresh
		// payload deleted out from under it.
		removed, err := s.client.ZRem(ctx, s.cfg.DelayedSet, jobID).Result()
		if err != nil {
			return fmt.Errorf("removing due task: %w", err)
		}
		if removed == 0 {
			continue
		}
		_ = s.client.HDel(ctx, payloadKey, jobID).Err()

		if err := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: entry.Stream,
			Values: entry.Task.Values(),
		}).Err(); err != nil {
			// Put it back rather than losing the job.
			_ = s.client.HSet(ctx, payloadKey, jobID, payload).Err()
			_ = s.client.ZAdd(ctx, s.cfg.DelayedSet, redis.Z{
				Score:  float64(time.Now().UnixMilli()),
				Member: jobID,
			}).Err()
			return fmt.Errorf("promoting task to %s: %w", entry.Stream, err)
		}

		slog.DebugContext(ctx, "promoted delayed task",
			"stream", entry.Stream,
			"task_type", entry.Task.Type,
			"job_id", jobID)
	}

	return nil
}
