package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"revos.app/pipeline/common/logger"
	"revos.app/pipeline/internal/model"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/social"
	"revos.app/pipeline/internal/store"
	"revos.app/pipeline/internal/webhook"
)

// ErrDailyLimitReached means the account consumed its DM budget for the
// day. Permanent for the message at hand: tomorrow's slot belongs to
// tomorrow's comments.
var ErrDailyLimitReached = errors.New("daily dm limit reached")

// RateLimiter gates outbound sends. Satisfied by failsafe-go's
// ratelimiter.RateLimiter.
type RateLimiter interface {
	AcquirePermit(ctx context.Context) error
}

type DMHandlerConfig struct {
	DefaultDailyLimit int
}

// DMHandler handles send_dm tasks. The daily budget is reserved through
// an atomic counter before the send, so concurrent workers can never
// overshoot the limit between check and send.
type DMHandler struct {
	campaigns  store.CampaignStore
	activities store.ActivityStore
	social     social.Client
	limiter    RateLimiter
	cfg        DMHandlerConfig

	now func() time.Time
}

func NewDMHandler(
	campaigns store.CampaignStore,
	activities store.ActivityStore,
	socialClient social.Client,
	limiter RateLimiter,
	cfg DMHandlerConfig,
) *DMHandler {
	return &DMHandler{
		campaigns:  campaigns,
		activities: activities,
		social:     socialClient,
		limiter:    limiter,
		cfg:        cfg,
		now:        time.Now,
	}
}

func (h *DMHandler) Handle(ctx context.Context, task queue.Task) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CampaignID: &task.CampaignID,
		AccountID:  &task.AccountID,
		CommentID:  &task.CommentID,
		Component:  "pipeline.worker.dm",
	})

	campaign, err := h.campaigns.GetByID(ctx, task.CampaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "campaign not found, dropping dm task")
			return nil
		}
		return fmt.Errorf("loading campaign: %w", err)
	}

	if !campaign.Active {
		slog.InfoContext(ctx, "campaign inactive, dropping dm task")
		return nil
	}

	limit := campaign.DailyDMLimit
	if limit <= 0 {
		limit = h.cfg.DefaultDailyLimit
	}

	day := h.now().UTC()
	reserved, err := h.activities.ReserveDailySlot(ctx, task.AccountID, day, limit)
	if err != nil {
		return fmt.Errorf("reserving daily dm slot: %w", err)
	}
	if !reserved {
		h.recordFailure(ctx, campaign, task, ErrDailyLimitReached.Error())
		return Permanent(fmt.Errorf("account %s: %w", task.AccountID, ErrDailyLimitReached))
	}

	text := renderTemplate(campaign.MessageTemplate, task.RecipientName, campaign.LeadMagnetName)

	// The slot counts sent messages. Any exit past this point without a
	// send gives the slot back, or retries would drain the day's budget
	// with nothing delivered.
	if h.limiter != nil {
		if err := h.limiter.AcquirePermit(ctx); err != nil {
			h.releaseSlot(ctx, task.AccountID, day)
			return fmt.Errorf("acquiring send permit: %w", err)
		}
	}

	messageID, err := h.social.SendMessage(ctx, task.AccountID, task.RecipientID, text)
	if err != nil {
		h.releaseSlot(ctx, task.AccountID, day)
		h.recordFailure(ctx, campaign, task, err.Error())
		if errors.Is(err, social.ErrRateLimited) {
			slog.WarnContext(ctx, "provider rate limited, will retry")
		}
		return fmt.Errorf("sending dm to %s: %w", task.RecipientID, err)
	}

	if _, err := h.activities.Append(ctx, &model.LeadActivity{
		CampaignID:    campaign.ID,
		RecipientID:   task.RecipientID,
		RecipientName: task.RecipientName,
		Status:        model.StatusDMSent,
		Success:       true,
		CommentID:     task.CommentID,
		PostID:        task.PostID,
		MessageID:     messageID,
	}); err != nil {
		// The DM is already out; retrying would send it again.
		slog.ErrorContext(ctx, "dm sent but activity write failed",
			"error", err, "provider_message_id", messageID)
		return nil
	}

	slog.InfoContext(ctx, "dm sent",
		"recipient_id", task.RecipientID, "provider_message_id", messageID)
	return nil
}

func (h *DMHandler) releaseSlot(ctx context.Context, accountID string, day time.Time) {
	if err := h.activities.ReleaseDailySlot(ctx, accountID, day); err != nil {
		slog.ErrorContext(ctx, "failed to release daily dm slot", "error", err)
	}
}

func (h *DMHandler) recordFailure(ctx context.Context, campaign *model.Campaign, task queue.Task, reason string) {
	if _, err := h.activities.Append(ctx, &model.LeadActivity{
		CampaignID:    campaign.ID,
		RecipientID:   task.RecipientID,
		RecipientName: task.RecipientName,
		Status:        model.StatusFailed,
		Success:       false,
		CommentID:     task.CommentID,
		PostID:        task.PostID,
		Error:         reason,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record dm failure", "error", err)
	}
}

// renderTemplate substitutes the personalization placeholders supported in
// campaign message templates.
func renderTemplate(template, recipientName, leadMagnetName string) string {
	first, _ := webhook.SplitName(recipientName)
	return strings.NewReplacer(
		"{name}", recipientName,
		"{first_name}", first,
		"{lead_magnet_name}", leadMagnetName,
	).Replace(template)
}
