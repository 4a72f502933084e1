package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"revos.app/pipeline/internal/model"
)

type podStore struct {
	pool *pgxpool.Pool
}

func (s *podStore) GetByID(ctx context.Context, podID int64) (*model.Pod, error) {
	const query = `SELECT id, name, active, created_at FROM pods WHERE id = $1`

	var p model.Pod
	err := s.pool.QueryRow(ctx, query, podID).Scan(&p.ID, &p.Name, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *podStore) ListMembers(ctx context.Context, podID int64) ([]model.PodMember, error) {
	const query = `
		SELECT pod_id, account_id, user_id, created_at
		FROM pod_members
		WHERE pod_id = $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, podID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []model.PodMember
	for rows.Next() {
		var m model.PodMember
		if err := rows.Scan(&m.PodID, &m.AccountID, &m.UserID, &m.CreatedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}
