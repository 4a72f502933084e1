package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"revos.app/pipeline/common/logger"
	"revos.app/pipeline/internal/filter"
	"revos.app/pipeline/internal/model"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/social"
	"revos.app/pipeline/internal/store"
)

type PollerConfig struct {
	MinInterval       time.Duration
	MaxInterval       time.Duration
	Jitter            time.Duration
	SkipProbability   float64
	WorkingHoursStart int // hour of day in the campaign's timezone
	WorkingHoursEnd   int
}

// Poller handles poll_comments tasks: fetch the monitored post's comments,
// classify them, and enqueue a DM per qualifying commenter. Every run ends
// by scheduling the next one, so a campaign's polling is a self-sustaining
// chain that dies only when the campaign goes inactive.
type Poller struct {
	campaigns  store.CampaignStore
	activities store.ActivityStore
	processed  store.ProcessedStore
	social     social.Client
	producer   queue.Producer
	streams    Streams
	cfg        PollerConfig

	now       func() time.Time
	randFloat func() float64
}

func NewPoller(
	campaigns store.CampaignStore,
	activities store.ActivityStore,
	processed store.ProcessedStore,
	socialClient social.Client,
	producer queue.Producer,
	streams Streams,
	cfg PollerConfig,
) *Poller {
	return &Poller{
		campaigns:  campaigns,
		activities: activities,
		processed:  processed,
		social:     socialClient,
		producer:   producer,
		streams:    streams,
		cfg:        cfg,
		now:        time.Now,
		randFloat:  rand.Float64,
	}
}

func (p *Poller) Handle(ctx context.Context, task queue.Task) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CampaignID: &task.CampaignID,
		Component:  "pipeline.worker.poller",
	})

	campaign, err := p.campaigns.GetByID(ctx, task.CampaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Campaign deleted mid-flight: let the chain die.
			slog.WarnContext(ctx, "campaign not found, dropping poll chain")
			return nil
		}
		return fmt.Errorf("loading campaign: %w", err)
	}

	if !campaign.Active {
		slog.InfoContext(ctx, "campaign inactive, poll chain quiescing")
		return nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{AccountID: &campaign.AccountID})

	loc := p.location(ctx, campaign)
	now := p.now().In(loc)

	if !p.withinWorkingHours(now) {
		slog.DebugContext(ctx, "outside working hours, skipping cycle",
			"local_hour", now.Hour(), "timezone", loc.String())
		return p.reschedule(ctx, campaign)
	}

	if p.cfg.SkipProbability > 0 && p.randFloat() < p.cfg.SkipProbability {
		slog.DebugContext(ctx, "randomly skipping cycle")
		return p.reschedule(ctx, campaign)
	}

	triggers := campaign.TriggerWords
	if len(triggers) == 0 {
		triggers = task.Triggers
	}

	comments, err := p.social.FetchComments(ctx, campaign.AccountID, campaign.PostID)
	if err != nil {
		return fmt.Errorf("fetching comments for post %s: %w", campaign.PostID, err)
	}

	queued := 0
	for _, cls := range filter.ProcessBatch(comments, triggers) {
		if !cls.ShouldQueue {
			continue
		}
		if p.queueLead(ctx, campaign, cls.Comment) {
			queued++
		}
	}

	slog.InfoContext(ctx, "poll cycle complete",
		"comments", len(comments), "queued", queued)

	return p.reschedule(ctx, campaign)
}

// queueLead marks the comment processed and enqueues the outbound DM.
// Reports whether a DM was queued; failures after the dedup mark are
// logged, not retried, so a commenter can never be messaged twice.
func (p *Poller) queueLead(ctx context.Context, campaign *model.Campaign, c social.Comment) bool {
	ctx = logger.WithLogFields(ctx, logger.LogFields{CommentID: &c.ID})

	inserted, err := p.processed.MarkComment(ctx, campaign.ID, c.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to mark comment processed", "error", err)
		return false
	}
	if !inserted {
		return false
	}

	if _, err := p.activities.Append(ctx, &model.LeadActivity{
		CampaignID:    campaign.ID,
		RecipientID:   c.Author.ID,
		RecipientName: c.Author.Name,
		Status:        model.StatusCommentDetected,
		Success:       true,
		CommentID:     c.ID,
		PostID:        campaign.PostID,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record comment_detected activity", "error", err)
	}

	task := queue.Task{
		Type:          queue.TaskTypeSendDM,
		CampaignID:    campaign.ID,
		AccountID:     campaign.AccountID,
		PostID:        campaign.PostID,
		RecipientID:   c.Author.ID,
		RecipientName: c.Author.Name,
		CommentID:     c.ID,
	}
	if err := p.producer.Enqueue(ctx, p.streams.DMs, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue dm task",
			"error", err, "recipient_id", c.Author.ID)
		return false
	}

	slog.InfoContext(ctx, "lead queued for dm", "recipient_id", c.Author.ID)
	return true
}

func (p *Poller) reschedule(ctx context.Context, campaign *model.Campaign) error {
	delay := p.nextDelay()
	// One parked successor per campaign: the broker dedups on job id, so
	// if two chains ever run for the same campaign they collapse here.
	next := queue.Task{
		Type:       queue.TaskTypePollComments,
		JobID:      queue.PollChainJobID(campaign.ID),
		CampaignID: campaign.ID,
		AccountID:  campaign.AccountID,
		PostID:     campaign.PostID,
		Triggers:   campaign.TriggerWords,
		Timezone:   campaign.Timezone,
	}
	if err := p.producer.EnqueueDelayed(ctx, p.streams.Comments, next, delay); err != nil {
		return fmt.Errorf("scheduling next poll: %w", err)
	}
	slog.InfoContext(ctx, "next poll scheduled", "delay", delay, "job_id", next.JobID)
	return nil
}

// nextDelay draws uniformly from [min, max] and applies symmetric jitter,
// flooring at one minute so a misconfigured campaign cannot hot-loop.
func (p *Poller) nextDelay() time.Duration {
	delay := p.cfg.MinInterval
	if span := p.cfg.MaxInterval - p.cfg.MinInterval; span > 0 {
		delay += time.Duration(p.randFloat() * float64(span))
	}
	if p.cfg.Jitter > 0 {
		delay += time.Duration((p.randFloat()*2 - 1) * float64(p.cfg.Jitter))
	}
	if delay < time.Minute {
		delay = time.Minute
	}
	return delay
}

func (p *Poller) withinWorkingHours(now time.Time) bool {
	if p.cfg.WorkingHoursStart == p.cfg.WorkingHoursEnd {
		return true
	}
	hour := now.Hour()
	return hour >= p.cfg.WorkingHoursStart && hour < p.cfg.WorkingHoursEnd
}

func (p *Poller) location(ctx context.Context, campaign *model.Campaign) *time.Location {
	if campaign.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(campaign.Timezone)
	if err != nil {
		slog.WarnContext(ctx, "invalid campaign timezone, using server local",
			"timezone", campaign.Timezone, "error", err)
		return time.Local
	}
	return loc
}
