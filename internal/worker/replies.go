package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"revos.app/pipeline/common/logger"
	"revos.app/pipeline/internal/extract"
	"revos.app/pipeline/internal/model"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/social"
	"revos.app/pipeline/internal/store"
	"revos.app/pipeline/internal/webhook"
)

const leadSource = "revos_lead_magnet"

type ReplyMonitorConfig struct {
	SweepInterval  time.Duration
	InterLeadDelay time.Duration // idle gap between leads within one sweep
	LinkTTL        time.Duration
	DownloadBase   string // public URL of the signed download endpoint
	LinkSecret     string
	MaxAttempts    int // webhook delivery budget for captured leads
}

// SweepSummary accumulates the outcome of one reply sweep. Per-lead
// failures land in Errors; they never abort the sweep.
type SweepSummary struct {
	LeadsChecked   int
	EmailsCaptured int
	Errors         []error
}

// ReplyMonitor periodically walks the leads that were messaged but have
// not produced an email yet, reading each conversation for inbound
// replies and extracting a contact address. Pattern matching runs first;
// the model-assisted extractor is a fallback, never the primary path.
type ReplyMonitor struct {
	campaigns  store.CampaignStore
	activities store.ActivityStore
	processed  store.ProcessedStore
	deliveries store.DeliveryStore
	social     social.Client
	extractor  extract.Extractor // nil disables the fallback
	producer   queue.Producer
	streams    Streams
	cfg        ReplyMonitorConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReplyMonitor(
	campaigns store.CampaignStore,
	activities store.ActivityStore,
	processed store.ProcessedStore,
	deliveries store.DeliveryStore,
	socialClient social.Client,
	extractor extract.Extractor,
	producer queue.Producer,
	streams Streams,
	cfg ReplyMonitorConfig,
) *ReplyMonitor {
	return &ReplyMonitor{
		campaigns:  campaigns,
		activities: activities,
		processed:  processed,
		deliveries: deliveries,
		social:     socialClient,
		extractor:  extractor,
		producer:   producer,
		streams:    streams,
		cfg:        cfg,
		now:        time.Now,
		sleep:      sleepCtx,
		stopCh:     make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

// Run starts the sweep loop. Blocks until Stop() is called.
func (m *ReplyMonitor) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "pipeline.worker.replies",
	})

	defer close(m.stoppedCh)

	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reply monitor started", "interval", m.cfg.SweepInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			slog.InfoContext(ctx, "reply monitor stopping")
			return
		case <-ticker.C:
			summary := m.Sweep(ctx)
			slog.InfoContext(ctx, "reply sweep complete",
				"leads_checked", summary.LeadsChecked,
				"emails_captured", summary.EmailsCaptured,
				"errors", len(summary.Errors))
		}
	}
}

func (m *ReplyMonitor) Stop() {
	close(m.stopCh)
	<-m.stoppedCh
}

// Sweep processes every lead awaiting a reply once.
func (m *ReplyMonitor) Sweep(ctx context.Context) SweepSummary {
	var summary SweepSummary

	leads, err := m.activities.ListAwaitingReply(ctx)
	if err != nil {
		summary.Errors = append(summary.Errors, fmt.Errorf("listing leads awaiting reply: %w", err))
		return summary
	}

	for i, lead := range leads {
		if i > 0 && m.cfg.InterLeadDelay > 0 {
			m.sleep(ctx, m.cfg.InterLeadDelay)
		}
		if ctx.Err() != nil {
			break
		}

		summary.LeadsChecked++
		captured, err := m.processLead(ctx, lead)
		if err != nil {
			summary.Errors = append(summary.Errors,
				fmt.Errorf("lead %d: %w", lead.ID, err))
			continue
		}
		if captured {
			summary.EmailsCaptured++
		}
	}

	return summary
}

func (m *ReplyMonitor) processLead(ctx context.Context, lead model.LeadActivity) (bool, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CampaignID: &lead.CampaignID,
		LeadID:     &lead.ID,
	})

	campaign, err := m.campaigns.GetByID(ctx, lead.CampaignID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("loading campaign: %w", err)
	}
	if !campaign.Active {
		return false, nil
	}

	messages, err := m.social.FetchConversation(ctx, campaign.AccountID, lead.RecipientID, lead.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("fetching conversation: %w", err)
	}

	// A lead stays in the sweep set while a capture is being retried, so
	// the reply mark has to survive across sweeps, not just this loop.
	replied, err := m.activities.HasChild(ctx, lead.ID, model.StatusDMReplied)
	if err != nil {
		return false, fmt.Errorf("checking reply record: %w", err)
	}
	for _, msg := range messages {
		if !msg.Inbound {
			continue
		}

		seen, err := m.processed.IsMessageProcessed(ctx, msg.ID)
		if err != nil {
			slog.ErrorContext(ctx, "dedup check failed", "error", err, "provider_message_id", msg.ID)
			continue
		}
		if seen {
			continue
		}

		if !replied {
			replied = true
			m.recordReplied(ctx, campaign, lead, msg.ID)
		}

		email, ok := m.extractEmail(ctx, msg.Text)
		if !ok {
			// Marked even though extraction came up empty so the same
			// message is never re-extracted.
			if _, err := m.processed.MarkMessage(ctx, msg.ID, lead.ID, ""); err != nil {
				slog.ErrorContext(ctx, "failed to mark message processed",
					"error", err, "provider_message_id", msg.ID)
			}
			continue
		}

		if err := m.capture(ctx, campaign, lead, msg.ID, email); err != nil {
			// Message deliberately left unmarked: the next sweep
			// retries the capture.
			return false, err
		}

		if _, err := m.processed.MarkMessage(ctx, msg.ID, lead.ID, email); err != nil {
			slog.ErrorContext(ctx, "failed to mark message processed",
				"error", err, "provider_message_id", msg.ID)
		}
		return true, nil
	}

	return false, nil
}

func (m *ReplyMonitor) extractEmail(ctx context.Context, text string) (string, bool) {
	if email, ok := extract.Email(text); ok {
		return email, true
	}
	if m.extractor == nil {
		return "", false
	}
	email, ok, err := m.extractor.ExtractEmail(ctx, text)
	if err != nil {
		slog.WarnContext(ctx, "model-assisted extraction failed", "error", err)
		return "", false
	}
	return email, ok
}

// capture turns an extracted address into a webhook delivery plus a
// best-effort backup message carrying a signed download link. The
// email_captured row records whether the webhook handoff succeeded.
func (m *ReplyMonitor) capture(ctx context.Context, campaign *model.Campaign, lead model.LeadActivity, messageID, email string) error {
	handoffErr := m.handoffWebhook(ctx, campaign, lead, email)

	captured, err := m.activities.Append(ctx, &model.LeadActivity{
		CampaignID:    campaign.ID,
		RecipientID:   lead.RecipientID,
		RecipientName: lead.RecipientName,
		Status:        model.StatusEmailCaptured,
		Success:       handoffErr == nil,
		CommentID:     lead.CommentID,
		PostID:        lead.PostID,
		MessageID:     messageID,
		ParentID:      &lead.ID,
		Email:         email,
		Error:         errString(handoffErr),
	})
	if err != nil {
		return fmt.Errorf("recording email capture: %w", err)
	}

	if handoffErr != nil {
		return handoffErr
	}

	slog.InfoContext(ctx, "email captured", "activity_id", captured.ID)

	m.sendBackup(ctx, campaign, lead)
	return nil
}

func (m *ReplyMonitor) handoffWebhook(ctx context.Context, campaign *model.Campaign, lead model.LeadActivity, email string) error {
	if campaign.WebhookURL == "" {
		slog.DebugContext(ctx, "campaign has no webhook configured, skipping handoff")
		return nil
	}

	first, last := webhook.SplitName(lead.RecipientName)
	payload, err := webhook.NewLeadPayload(
		webhook.Lead{
			ID:          lead.ID,
			Email:       email,
			FirstName:   first,
			LastName:    last,
			LinkedInID:  lead.RecipientID,
			LinkedInURL: "https://linkedin.com/in/" + lead.RecipientID,
			Source:      leadSource,
			CapturedAt:  m.now().UTC().Format(time.RFC3339),
		},
		webhook.CampaignInfo{
			ID:             campaign.ID,
			Name:           campaign.Name,
			LeadMagnetName: campaign.LeadMagnetName,
		},
		nil,
		m.now(),
	)
	if err != nil {
		return fmt.Errorf("building lead payload: %w", err)
	}

	delivery, err := m.deliveries.Create(ctx, &model.WebhookDelivery{
		LeadID:      lead.ID,
		CampaignID:  campaign.ID,
		WebhookURL:  campaign.WebhookURL,
		Secret:      campaign.WebhookSecret,
		ClientID:    campaign.ClientID,
		Payload:     payload,
		MaxAttempts: m.cfg.MaxAttempts,
		Status:      model.DeliveryPending,
	})
	if err != nil {
		return fmt.Errorf("creating webhook delivery: %w", err)
	}

	task := queue.Task{
		Type:       queue.TaskTypeDeliverWebhook,
		DeliveryID: delivery.ID,
		LeadID:     lead.ID,
		CampaignID: campaign.ID,
	}
	if err := m.producer.Enqueue(ctx, m.streams.Webhooks, task); err != nil {
		return fmt.Errorf("enqueueing webhook delivery: %w", err)
	}

	return nil
}

// sendBackup delivers the lead magnet directly over DM with a time-boxed
// signed link. Failures are logged only; the webhook path already owns
// the lead.
func (m *ReplyMonitor) sendBackup(ctx context.Context, campaign *model.Campaign, lead model.LeadActivity) {
	if campaign.LeadMagnetURL == "" || m.cfg.DownloadBase == "" {
		return
	}

	link := webhook.SignedDownloadURL(
		m.cfg.DownloadBase,
		lead.ID,
		m.now().Add(m.cfg.LinkTTL),
		m.cfg.LinkSecret,
	)

	text := fmt.Sprintf("Thanks! Here is your copy of %s: %s", campaign.LeadMagnetName, link)
	messageID, err := m.social.SendMessage(ctx, campaign.AccountID, lead.RecipientID, text)
	if err != nil {
		slog.WarnContext(ctx, "backup message failed", "error", err)
		return
	}

	if _, err := m.activities.Append(ctx, &model.LeadActivity{
		CampaignID:    campaign.ID,
		RecipientID:   lead.RecipientID,
		RecipientName: lead.RecipientName,
		Status:        model.StatusBackupSent,
		Success:       true,
		ParentID:      &lead.ID,
		MessageID:     messageID,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record backup_sent activity", "error", err)
	}
}

func (m *ReplyMonitor) recordReplied(ctx context.Context, campaign *model.Campaign, lead model.LeadActivity, messageID string) {
	if _, err := m.activities.Append(ctx, &model.LeadActivity{
		CampaignID:    campaign.ID,
		RecipientID:   lead.RecipientID,
		RecipientName: lead.RecipientName,
		Status:        model.StatusDMReplied,
		Success:       true,
		MessageID:     messageID,
		ParentID:      &lead.ID,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record dm_replied activity", "error", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
