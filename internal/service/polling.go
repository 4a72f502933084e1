package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"revos.app/pipeline/common/logger"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/store"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrCampaignInactive = errors.New("campaign is not active")
	ErrPodNotFound      = errors.New("pod not found")
	ErrPodInactive      = errors.New("pod is not active")
)

// PollingService starts and stops the self-rescheduling poll chain for a
// campaign. Stopping is best-effort: one in-flight cycle may still run,
// then quiesce on the campaign's active flag.
type PollingService interface {
	Start(ctx context.Context, campaignID int64) error
	Stop(ctx context.Context, campaignID int64) (int, error)
}

type pollingService struct {
	campaigns     store.CampaignStore
	producer      queue.Producer
	commentStream string
}

func NewPollingService(campaigns store.CampaignStore, producer queue.Producer, commentStream string) PollingService {
	return &pollingService{
		campaigns:     campaigns,
		producer:      producer,
		commentStream: commentStream,
	}
}

func (s *pollingService) Start(ctx context.Context, campaignID int64) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CampaignID: &campaignID,
		Component:  "pipeline.service.polling",
	})

	campaign, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCampaignNotFound
		}
		return fmt.Errorf("loading campaign: %w", err)
	}
	if !campaign.Active {
		return ErrCampaignInactive
	}

	// A parked successor means a chain is already running; starting again
	// would double the social-API call volume for the campaign.
	scheduled, err := s.producer.IsScheduled(ctx, queue.PollChainJobID(campaign.ID))
	if err != nil {
		return fmt.Errorf("checking for a running poll chain: %w", err)
	}
	if scheduled {
		slog.InfoContext(ctx, "polling already running, start is a no-op")
		return nil
	}

	task := queue.Task{
		Type:       queue.TaskTypePollComments,
		JobID:      fmt.Sprintf("poll-%d-initial", campaign.ID),
		CampaignID: campaign.ID,
		AccountID:  campaign.AccountID,
		PostID:     campaign.PostID,
		Triggers:   campaign.TriggerWords,
		Timezone:   campaign.Timezone,
	}
	if err := s.producer.Enqueue(ctx, s.commentStream, task); err != nil {
		return fmt.Errorf("enqueueing initial poll: %w", err)
	}

	slog.InfoContext(ctx, "polling started", "job_id", task.JobID)
	return nil
}

// Stop cancels the campaign's parked cycles and reports how many were
// removed.
func (s *pollingService) Stop(ctx context.Context, campaignID int64) (int, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CampaignID: &campaignID,
		Component:  "pipeline.service.polling",
	})

	if _, err := s.campaigns.GetByID(ctx, campaignID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrCampaignNotFound
		}
		return 0, fmt.Errorf("loading campaign: %w", err)
	}

	removed, err := s.producer.CancelCampaign(ctx, campaignID)
	if err != nil {
		return 0, fmt.Errorf("cancelling delayed polls: %w", err)
	}

	slog.InfoContext(ctx, "polling stopped", "removed_jobs", removed)
	return removed, nil
}

// PodService kicks off a pod's poll chain. Separate from PollingService so
// the admin surface can manage pods independently of campaigns.
type PodService interface {
	Start(ctx context.Context, podID int64) error
}

type podService struct {
	pods      store.PodStore
	producer  queue.Producer
	podStream string
}

func NewPodService(pods store.PodStore, producer queue.Producer, podStream string) PodService {
	return &podService{pods: pods, producer: producer, podStream: podStream}
}

func (s *podService) Start(ctx context.Context, podID int64) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		PodID:     &podID,
		Component: "pipeline.service.pod",
	})

	pod, err := s.pods.GetByID(ctx, podID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPodNotFound
		}
		return fmt.Errorf("loading pod: %w", err)
	}
	if !pod.Active {
		return ErrPodInactive
	}

	scheduled, err := s.producer.IsScheduled(ctx, queue.PodChainJobID(pod.ID))
	if err != nil {
		return fmt.Errorf("checking for a running pod poll chain: %w", err)
	}
	if scheduled {
		slog.InfoContext(ctx, "pod polling already running, start is a no-op")
		return nil
	}

	task := queue.Task{
		Type:  queue.TaskTypePodPoll,
		JobID: fmt.Sprintf("podpoll-%d-initial", pod.ID),
		PodID: pod.ID,
	}
	if err := s.producer.Enqueue(ctx, s.podStream, task); err != nil {
		return fmt.Errorf("enqueueing initial pod poll: %w", err)
	}

	slog.InfoContext(ctx, "pod polling started", "job_id", task.JobID)
	return nil
}
