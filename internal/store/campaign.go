package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"revos.app/pipeline/internal/model"
)

type campaignStore struct {
	pool *pgxpool.Pool
}

func (s *campaignStore) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	const query = `
		SELECT id, user_id, name, account_id, post_id, trigger_words,
		       message_template, lead_magnet_name, lead_magnet_url,
		       webhook_url, webhook_secret, client_id, timezone,
		       daily_dm_limit, active, created_at, updated_at
		FROM campaigns
		WHERE id = $1`

	var c model.Campaign
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.UserID, &c.Name, &c.AccountID, &c.PostID, &c.TriggerWords,
		&c.MessageTemplate, &c.LeadMagnetName, &c.LeadMagnetURL,
		&c.WebhookURL, &c.WebhookSecret, &c.ClientID, &c.Timezone,
		&c.DailyDMLimit, &c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}
