package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"revos.app/pipeline/common/id"
)

// delayedEntry is the JSON payload stored per parked job. It carries its
// target stream so the scheduler can promote it without any out-of-band
// lookup.
type delayedEntry struct {
	Stream string `json:"stream"`
	Task   Task   `json:"task"`
}

type Producer interface {
	// Enqueue appends a task to a stream for immediate consumption.
	Enqueue(ctx context.Context, stream string, task Task) error
	// EnqueueDelayed parks a task in the delayed set, due after delay.
	// Scheduling is idempotent per JobID: parking a job whose id is
	// already parked is a no-op, so a duplicated self-rescheduling chain
	// collapses back to one.
	EnqueueDelayed(ctx context.Context, stream string, task Task, delay time.Duration) error
	// IsScheduled reports whether a job id is currently parked.
	IsScheduled(ctx context.Context, jobID string) (bool, error)
	// CancelCampaign removes the campaign's parked poll cycles.
	// Best-effort: an in-flight poll run may still enqueue one more cycle,
	// which then quiesces on the campaign's active flag.
	CancelCampaign(ctx context.Context, campaignID int64) (int, error)
	Close() error
}

type redisProducer struct {
	client     *redis.Client
	delayedSet string
	logger     *slog.Logger
}

// delayedPayloadKey names the hash holding parked job payloads. The ZSET
// member is the bare job id so ZADD NX can dedup on it; the payload lives
// alongside in this hash.
func delayedPayloadKey(delayedSet string) string {
	return delayedSet + ":payloads"
}

func NewRedisProducer(client *redis.Client, delayedSet string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client:     client,
		delayedSet: delayedSet,
		logger:     logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, stream string, task Task) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: task.Values(),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type, err)
	}

	p.logger.InfoContext(ctx, "enqueued task",
		"stream", stream,
		"task_type", task.Type,
		"job_id", task.JobID,
		"campaign_id", task.CampaignID,
		"attempt", task.Attempt)
	return nil
}

func (p *redisProducer) EnqueueDelayed(ctx context.Context, stream string, task Task, delay time.Duration) error {
	if task.JobID == "" {
		task.JobID = strconv.FormatInt(id.New(), 10)
	}

	entry := delayedEntry{Stream: stream, Task: task}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding delayed task: %w", err)
	}

	// Payload written first so the scheduler never claims a member it
	// cannot resolve. For an already-parked job id the rewrite is
	// equivalent content and the NX add below keeps the original due time.
	if err := p.client.HSet(ctx, delayedPayloadKey(p.delayedSet), task.JobID, payload).Err(); err != nil {
		return fmt.Errorf("storing delayed payload: %w", err)
	}

	due := time.Now().Add(delay)
	added, err := p.client.ZAddNX(ctx, p.delayedSet, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: task.JobID,
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue delayed %s: %w", task.Type, err)
	}
	if added == 0 {
		p.logger.InfoContext(ctx, "delayed job already scheduled, skipping",
			"job_id", task.JobID,
			"task_type", task.Type,
			"campaign_id", task.CampaignID)
		return nil
	}

	p.logger.InfoContext(ctx, "enqueued delayed task",
		"stream", stream,
		"task_type", task.Type,
		"job_id", task.JobID,
		"campaign_id", task.CampaignID,
		"due", due.Format(time.RFC3339))
	return nil
}

func (p *redisProducer) IsScheduled(ctx context.Context, jobID string) (bool, error) {
	_, err := p.client.ZScore(ctx, p.delayedSet, jobID).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("checking scheduled job %s: %w", jobID, err)
	}
	return true, nil
}

func (p *redisProducer) CancelCampaign(ctx context.Context, campaignID int64) (int, error) {
	// Poll-chain job ids embed the campaign id, so a pattern scan finds
	// every parked cycle. Webhook retries are deliberately untouched:
	// captured leads still deliver after polling stops.
	var (
		cursor  uint64
		removed int
	)
	pattern := fmt.Sprintf("poll-%d-*", campaignID)

	for {
		members, next, err := p.client.ZScan(ctx, p.delayedSet, cursor, pattern, 200).Result()
		if err != nil {
			return removed, fmt.Errorf("scanning delayed set: %w", err)
		}

		// ZScan interleaves member and score; members sit at even indexes.
		for i := 0; i < len(members); i += 2 {
			n, err := p.client.ZRem(ctx, p.delayedSet, members[i]).Result()
			if err != nil {
				return removed, fmt.Errorf("removing delayed task: %w", err)
			}
			if n == 0 {
				continue
			}
			_ = p.client.HDel(ctx, delayedPayloadKey(p.delayedSet), members[i]).Err()
			removed++
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	p.logger.InfoContext(ctx, "cancelled campaign poll jobs",
		"campaign_id", campaignID,
		"removed", removed)
	return removed, nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
