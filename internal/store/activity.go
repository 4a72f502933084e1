package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"revos.app/pipeline/common/id"
	"revos.app/pipeline/internal/model"
)

type activityStore struct {
	pool *pgxpool.Pool
}

func (s *activityStore) Append(ctx context.Context, activity *model.LeadActivity) (*model.LeadActivity, error) {
	const query = `
		INSERT INTO lead_activities
			(id, campaign_id, recipient_id, recipient_name, status, success,
			 comment_id, post_id, message_id, parent_id, email, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		RETURNING created_at`

	if activity.ID == 0 {
		activity.ID = id.New()
	}

	err := s.pool.QueryRow(ctx, query,
		activity.ID, activity.CampaignID, activity.RecipientID,
		activity.RecipientName, activity.Status, activity.Success,
		activity.CommentID, activity.PostID, activity.MessageID,
		activity.ParentID, activity.Email, activity.Error,
	).Scan(&activity.CreatedAt)
	if err != nil {
		return nil, err
	}
	return activity, nil
}

// ReserveDailySlot is the storage-level close of the check-then-send race:
// the counter row is upserted and bumped in one statement, and the bump
// only lands while count < limit. Two concurrent sends cannot both pass.
func (s *activityStore) ReserveDailySlot(ctx context.Context, accountID string, day time.Time, limit int) (bool, error) {
	const query = `
		INSERT INTO dm_daily_counters (account_id, day, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (account_id, day)
		DO UPDATE SET count = dm_daily_counters.count + 1
		WHERE dm_daily_counters.count < $3
		RETURNING count`

	var count int
	err := s.pool.QueryRow(ctx, query, accountID, day.UTC().Truncate(24*time.Hour), limit).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil // limit reached, no row updated
		}
		return false, err
	}
	return count <= limit, nil
}

// ReleaseDailySlot undoes one reservation. Guarded at zero so a stray
// release can never push the counter negative.
func (s *activityStore) ReleaseDailySlot(ctx context.Context, accountID string, day time.Time) error {
	const query = `
		UPDATE dm_daily_counters
		SET count = count - 1
		WHERE account_id = $1 AND day = $2 AND count > 0`

	_, err := s.pool.Exec(ctx, query, accountID, day.UTC().Truncate(24*time.Hour))
	return err
}

func (s *activityStore) HasChild(ctx context.Context, parentID int64, status model.LeadStatus) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM lead_activities
			WHERE parent_id = $1 AND status = $2
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, parentID, status).Scan(&exists)
	return exists, err
}

func (s *activityStore) ListAwaitingReply(ctx context.Context) ([]model.LeadActivity, error) {
	const query = `
		SELECT a.id, a.campaign_id, a.recipient_id, a.recipient_name,
		       a.status, a.success, a.comment_id, a.post_id, a.message_id,
		       a.parent_id, a.email, a.error, a.created_at
		FROM lead_activities a
		WHERE a.status = $1 AND a.success
		  AND NOT EXISTS (
			SELECT 1 FROM lead_activities c
			WHERE c.status = $2 AND c.success AND c.parent_id = a.id
		  )
		ORDER BY a.created_at`

	rows, err := s.pool.Query(ctx, query, model.StatusDMSent, model.StatusEmailCaptured)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.LeadActivity
	for rows.Next() {
		var a model.LeadActivity
		if err := rows.Scan(
			&a.ID, &a.CampaignID, &a.RecipientID, &a.RecipientName,
			&a.Status, &a.Success, &a.CommentID, &a.PostID, &a.MessageID,
			&a.ParentID, &a.Email, &a.Error, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *activityStore) GetByID(ctx context.Context, activityID int64) (*model.LeadActivity, error) {
	const query = `
		SELECT id, campaign_id, recipient_id, recipient_name, status,
		       success, comment_id, post_id, message_id, parent_id,
		       email, error, created_at
		FROM lead_activities
		WHERE id = $1`

	var a model.LeadActivity
	err := s.pool.QueryRow(ctx, query, activityID).Scan(
		&a.ID, &a.CampaignID, &a.RecipientID, &a.RecipientName, &a.Status,
		&a.Success, &a.CommentID, &a.PostID, &a.MessageID, &a.ParentID,
		&a.Email, &a.Error, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}
