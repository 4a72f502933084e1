package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"revos.app/pipeline/common/id"
	"revos.app/pipeline/internal/model"
)

type deliveryStore struct {
	pool *pgxpool.Pool
}

func (s *deliveryStore) Create(ctx context.Context, delivery *model.WebhookDelivery) (*model.WebhookDelivery, error) {
	const query = `
		INSERT INTO webhook_deliveries
			(id, lead_id, campaign_id, webhook_url, secret, client_id,
			 payload, attempt, max_attempts, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING created_at, updated_at`

	if delivery.ID == 0 {
		delivery.ID = id.New()
	}
	if delivery.Status == "" {
		delivery.Status = model.DeliveryPending
	}

	err := s.pool.QueryRow(ctx, query,
		delivery.ID, delivery.LeadID, delivery.CampaignID,
		delivery.WebhookURL, delivery.Secret, delivery.ClientID,
		delivery.Payload, delivery.Attempt, delivery.MaxAttempts,
		delivery.Status,
	).Scan(&delivery.CreatedAt, &delivery.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return delivery, nil
}

func (s *deliveryStore) GetByID(ctx context.Context, deliveryID int64) (*model.WebhookDelivery, error) {
	const query = `
		SELECT id, lead_id, campaign_id, webhook_url, secret, client_id,
		       payload, attempt, max_attempts, status, created_at, updated_at
		FROM webhook_deliveries
		WHERE id = $1`

	var d model.WebhookDelivery
	err := s.pool.QueryRow(ctx, query, deliveryID).Scan(
		&d.ID, &d.LeadID, &d.CampaignID, &d.WebhookURL, &d.Secret,
		&d.ClientID, &d.Payload, &d.Attempt, &d.MaxAttempts, &d.Status,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *deliveryStore) UpdateAttempt(ctx context.Context, deliveryID int64, attempt int, status model.DeliveryStatus) error {
	const query = `
		UPDATE webhook_deliveries
		SET attempt = $2, status = $3, updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, deliveryID, attempt, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *deliveryStore) AppendLog(ctx context.Context, log *model.DeliveryLog) error {
	const query = `
		INSERT INTO webhook_delivery_logs
			(id, delivery_id, attempt, status_code, response_body,
			 error, retry_scheduled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())`

	if log.ID == 0 {
		log.ID = id.New()
	}

	_, err := s.pool.Exec(ctx, query,
		log.ID, log.DeliveryID, log.Attempt, log.StatusCode,
		log.ResponseBody, log.Error, log.RetryScheduled,
	)
	return err
}
