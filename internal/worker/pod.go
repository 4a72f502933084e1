package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"revos.app/pipeline/common/logger"
	"revos.app/pipeline/internal/model"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/social"
	"revos.app/pipeline/internal/store"
)

type PodHandlerConfig struct {
	PollInterval  time.Duration
	PostsPerFetch int
	MaxPerHour    int // repost jobs per member per hour
	SeenRetention time.Duration
}

// PodHandler runs the engagement-pod side of the pipeline: pod_poll tasks
// discover each member's fresh posts and fan out pod_repost tasks to the
// other members, staggered so no account reposts in bursts.
type PodHandler struct {
	pods      store.PodStore
	processed store.ProcessedStore
	social    social.Client
	producer  queue.Producer
	streams   Streams
	cfg       PodHandlerConfig

	now       func() time.Time
	randFloat func() float64
}

func NewPodHandler(
	pods store.PodStore,
	processed store.ProcessedStore,
	socialClient social.Client,
	producer queue.Producer,
	streams Streams,
	cfg PodHandlerConfig,
) *PodHandler {
	return &PodHandler{
		pods:      pods,
		processed: processed,
		social:    socialClient,
		producer:  producer,
		streams:   streams,
		cfg:       cfg,
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

func (h *PodHandler) HandlePoll(ctx context.Context, task queue.Task) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		PodID:     &task.PodID,
		Component: "pipeline.worker.pod",
	})

	pod, err := h.pods.GetByID(ctx, task.PodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "pod not found, dropping poll chain")
			return nil
		}
		return fmt.Errorf("loading pod: %w", err)
	}

	if !pod.Active {
		slog.InfoContext(ctx, "pod inactive, poll chain quiescing")
		return nil
	}

	if purged, err := h.processed.PurgeExpiredSeenPosts(ctx); err != nil {
		slog.WarnContext(ctx, "failed to purge expired seen posts", "error", err)
	} else if purged > 0 {
		slog.DebugContext(ctx, "purged expired seen posts", "count", purged)
	}

	members, err := h.pods.ListMembers(ctx, pod.ID)
	if err != nil {
		return fmt.Errorf("listing pod members: %w", err)
	}

	// Repost jobs queued per member this cycle, for the hourly cap.
	queued := make(map[string]int, len(members))
	reposts := 0
	for _, author := range members {
		reposts += h.pollMember(ctx, pod, author, members, queued)
	}

	slog.InfoContext(ctx, "pod poll cycle complete",
		"members", len(members), "reposts_queued", reposts)

	return h.reschedule(ctx, pod)
}

// pollMember fans one member's fresh posts out to the rest of the pod.
// Per-member fetch failures are logged, never fatal to the cycle.
func (h *PodHandler) pollMember(ctx context.Context, pod *model.Pod, author model.PodMember, members []model.PodMember, queued map[string]int) int {
	posts, err := h.social.FetchLatestPosts(ctx, author.AccountID, author.UserID, h.cfg.PostsPerFetch)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch member posts",
			"error", err, "member_user_id", author.UserID)
		return 0
	}

	count := 0
	for _, post := range posts {
		inserted, err := h.processed.MarkSeenPost(ctx, pod.ID, post.ID, h.now().Add(h.cfg.SeenRetention))
		if err != nil {
			slog.ErrorContext(ctx, "failed to mark post seen",
				"error", err, "post_id", post.ID)
			continue
		}
		if !inserted {
			continue
		}

		for _, member := range members {
			if member.AccountID == author.AccountID {
				continue
			}
			if h.queueRepost(ctx, pod, member, post.ID, queued) {
				count++
			}
		}
	}
	return count
}

func (h *PodHandler) queueRepost(ctx context.Context, pod *model.Pod, member model.PodMember, postID string, queued map[string]int) bool {
	delay := h.stagger(queued[member.AccountID])
	task := queue.Task{
		Type:      queue.TaskTypePodRepost,
		PodID:     pod.ID,
		AccountID: member.AccountID,
		PostID:    postID,
	}
	if err := h.producer.EnqueueDelayed(ctx, h.streams.Reposts, task, delay); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue repost",
			"error", err, "account_id", member.AccountID, "post_id", postID)
		return false
	}
	queued[member.AccountID]++

	slog.DebugContext(ctx, "repost queued",
		"account_id", member.AccountID, "post_id", postID, "delay", delay)
	return true
}

// stagger spreads a member's nth repost of the cycle: a random offset
// within the poll window, pushed out one hour per MaxPerHour jobs already
// queued for that member.
func (h *PodHandler) stagger(alreadyQueued int) time.Duration {
	delay := time.Duration(h.randFloat() * float64(h.cfg.PollInterval))
	if h.cfg.MaxPerHour > 0 {
		delay += time.Duration(alreadyQueued/h.cfg.MaxPerHour) * time.Hour
	}
	return delay
}

func (h *PodHandler) reschedule(ctx context.Context, pod *model.Pod) error {
	next := queue.Task{
		Type:  queue.TaskTypePodPoll,
		JobID: queue.PodChainJobID(pod.ID),
		PodID: pod.ID,
	}
	if err := h.producer.EnqueueDelayed(ctx, h.streams.PodPolls, next, h.cfg.PollInterval); err != nil {
		return fmt.Errorf("scheduling next pod poll: %w", err)
	}
	return nil
}

// HandleRepost executes one staggered repost. Failures bubble up to the
// broker, whose generic backoff is enough here.
func (h *PodHandler) HandleRepost(ctx context.Context, task queue.Task) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		PodID:     &task.PodID,
		AccountID: &task.AccountID,
		Component: "pipeline.worker.pod",
	})

	if err := h.social.Repost(ctx, task.AccountID, task.PostID); err != nil {
		if errors.Is(err, social.ErrRateLimited) {
			slog.WarnContext(ctx, "provider rate limited repost, will retry",
				"post_id", task.PostID)
		}
		return fmt.Errorf("reposting %s: %w", task.PostID, err)
	}

	slog.InfoContext(ctx, "post reshared", "post_id", task.PostID)
	return nil
}
