package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"revos.app/pipeline/common/logger"
	"revos.app/pipeline/internal/model"
	"revos.app/pipeline/internal/queue"
	"revos.app/pipeline/internal/store"
	"revos.app/pipeline/internal/webhook"
)

const responseBodyLimit = 1000 // chars of the response body kept in delivery logs

type WebhookHandlerConfig struct {
	Timeout time.Duration
	Version string // sent as X-Webhook-Version
}

// WebhookHandler handles deliver_webhook tasks: sign the stored payload,
// POST it, classify the response, and either finish the delivery or park
// the next attempt in the delayed set. Retry pacing is computed here, not
// by the broker, so the backoff curve stays explicit.
type WebhookHandler struct {
	deliveries store.DeliveryStore
	activities store.ActivityStore
	producer   queue.Producer
	streams    Streams
	client     *http.Client
	cfg        WebhookHandlerConfig

	now func() time.Time
}

func NewWebhookHandler(
	deliveries store.DeliveryStore,
	activities store.ActivityStore,
	producer queue.Producer,
	streams Streams,
	cfg WebhookHandlerConfig,
) *WebhookHandler {
	return &WebhookHandler{
		deliveries: deliveries,
		activities: activities,
		producer:   producer,
		streams:    streams,
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// 3xx is a terminal failure, never followed.
				return http.ErrUseLastResponse
			},
		},
		cfg: cfg,
		now: time.Now,
	}
}

func (h *WebhookHandler) Handle(ctx context.Context, task queue.Task) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DeliveryID: &task.DeliveryID,
		Component:  "pipeline.worker.webhook",
	})

	delivery, err := h.deliveries.GetByID(ctx, task.DeliveryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Permanent(fmt.Errorf("delivery %d not found", task.DeliveryID))
		}
		return fmt.Errorf("loading delivery: %w", err)
	}

	if delivery.Status == model.DeliverySuccess || delivery.Status == model.DeliveryFailed {
		slog.InfoContext(ctx, "delivery already terminal, skipping",
			"status", delivery.Status)
		return nil
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CampaignID: &delivery.CampaignID,
		LeadID:     &delivery.LeadID,
	})

	attempt := delivery.Attempt + 1
	statusCode, body, postErr := h.post(ctx, delivery)

	switch {
	case postErr == nil && statusCode >= 200 && statusCode < 300:
		return h.finishSuccess(ctx, delivery, attempt, statusCode, body)

	case webhook.ShouldRetry(statusCode, attempt, delivery.MaxAttempts):
		return h.scheduleRetry(ctx, delivery, task, attempt, statusCode, body, postErr)

	default:
		return h.finishFailed(ctx, delivery, attempt, statusCode, body, postErr)
	}
}

// post sends one signed attempt. A transport error reports status 0.
func (h *WebhookHandler) post(ctx context.Context, d *model.WebhookDelivery) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.WebhookURL, bytes.NewReader(d.Payload))
	if err != nil {
		return 0, "", fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", webhook.Sign(d.Payload, d.Secret))
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(h.now().Unix(), 10))
	req.Header.Set("X-Webhook-Version", h.cfg.Version)
	if d.ClientID != "" {
		req.Header.Set("X-Client-ID", d.ClientID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	return resp.StatusCode, string(raw), nil
}

func (h *WebhookHandler) finishSuccess(ctx context.Context, d *model.WebhookDelivery, attempt, statusCode int, body string) error {
	if err := h.deliveries.UpdateAttempt(ctx, d.ID, attempt, model.DeliverySuccess); err != nil {
		return fmt.Errorf("marking delivery success: %w", err)
	}
	h.appendLog(ctx, d.ID, attempt, statusCode, body, "", false)
	h.recordActivity(ctx, d, model.StatusWebhookSent, true, "")

	slog.InfoContext(ctx, "webhook delivered",
		"attempt", attempt, "status_code", statusCode)
	return nil
}

func (h *WebhookHandler) scheduleRetry(ctx context.Context, d *model.WebhookDelivery, task queue.Task, attempt, statusCode int, body string, postErr error) error {
	if err := h.deliveries.UpdateAttempt(ctx, d.ID, attempt, model.DeliverySent); err != nil {
		return fmt.Errorf("recording delivery attempt: %w", err)
	}
	h.appendLog(ctx, d.ID, attempt, statusCode, body, errString(postErr), true)

	delay := webhook.RetryDelay(attempt)
	retry := queue.Task{
		Type:       queue.TaskTypeDeliverWebhook,
		DeliveryID: d.ID,
		LeadID:     d.LeadID,
		CampaignID: d.CampaignID,
	}
	if err := h.producer.EnqueueDelayed(ctx, h.streams.Webhooks, retry, delay); err != nil {
		return fmt.Errorf("scheduling delivery retry: %w", err)
	}

	slog.WarnContext(ctx, "webhook attempt failed, retry scheduled",
		"attempt", attempt,
		"status_code", statusCode,
		"error", errString(postErr),
		"delay", delay)
	return nil
}

func (h *WebhookHandler) finishFailed(ctx context.Context, d *model.WebhookDelivery, attempt, statusCode int, body string, postErr error) error {
	if err := h.deliveries.UpdateAttempt(ctx, d.ID, attempt, model.DeliveryFailed); err != nil {
		return fmt.Errorf("marking delivery failed: %w", err)
	}
	h.appendLog(ctx, d.ID, attempt, statusCode, body, errString(postErr), false)

	reason := fmt.Sprintf("webhook delivery failed after %d attempts (status %d)", attempt, statusCode)
	h.recordActivity(ctx, d, model.StatusFailed, false, reason)

	slog.ErrorContext(ctx, "webhook delivery terminally failed",
		"attempt", attempt,
		"status_code", statusCode,
		"error", errString(postErr))
	return nil
}

func (h *WebhookHandler) appendLog(ctx context.Context, deliveryID int64, attempt, statusCode int, body, errMsg string, retryScheduled bool) {
	if err := h.deliveries.AppendLog(ctx, &model.DeliveryLog{
		DeliveryID:     deliveryID,
		Attempt:        attempt,
		StatusCode:     statusCode,
		ResponseBody:   truncate(body, responseBodyLimit),
		Error:          errMsg,
		RetryScheduled: retryScheduled,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to append delivery log", "error", err)
	}
}

// recordActivity mirrors the delivery outcome onto the lead's audit trail.
// The recipient comes from the dm_sent row the delivery references.
func (h *WebhookHandler) recordActivity(ctx context.Context, d *model.WebhookDelivery, status model.LeadStatus, success bool, reason string) {
	parent, err := h.activities.GetByID(ctx, d.LeadID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load lead activity for delivery",
			"error", err)
		return
	}

	if _, err := h.activities.Append(ctx, &model.LeadActivity{
		CampaignID:    d.CampaignID,
		RecipientID:   parent.RecipientID,
		RecipientName: parent.RecipientName,
		Status:        status,
		Success:       success,
		ParentID:      &parent.ID,
		Error:         reason,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to record delivery activity", "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
