package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// processedStore backs the three dedup sets. Each set has exactly one
// writing component; uniqueness is enforced by the primary keys, so a
// duplicate insert reports "already there" instead of racing.
type processedStore struct {
	pool *pgxpool.Pool
}

func (s *processedStore) MarkComment(ctx context.Context, campaignID int64, commentID string) (bool, error) {
	const query = `
		INSERT INTO processed_comments (campaign_id, comment_id, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (campaign_id, comment_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, campaignID, commentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *processedStore) MarkMessage(ctx context.Context, messageID string, leadID int64, email string) (bool, error) {
	const query = `
		INSERT INTO processed_messages (message_id, lead_id, email_extracted, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (message_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, messageID, leadID, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *processedStore) IsMessageProcessed(ctx context.Context, messageID string) (bool, error) {
	const query = `SELECT 1 FROM processed_messages WHERE message_id = $1`

	var one int
	err := s.pool.QueryRow(ctx, query, messageID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *processedStore) MarkSeenPost(ctx context.Context, podID int64, postID string, expiresAt time.Time) (bool, error) {
	const query = `
		INSERT INTO pod_seen_posts (pod_id, post_id, expires_at, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (pod_id, post_id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query, podID, postID, expiresAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *processedStore) PurgeExpiredSeenPosts(ctx context.Context) (int64, error) {
	const query = `DELETE FROM pod_seen_posts WHERE expires_at < now()`

	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
