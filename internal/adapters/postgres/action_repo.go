package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// ActionRepo implements ports.ActionRepository on a single table.
// Rows are the only record of a pending action; claiming deletes the
// row so an action can never fire twice.
type ActionRepo struct {
	db *DB
}

func NewActionRepo(db *DB) *ActionRepo {
	return &ActionRepo{db: db}
}

func (r *ActionRepo) Upsert(ctx context.Context, a *domain.ScheduledAction) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO scheduled_actions (key, fire_at, purpose, kind, unit_code, group_id, owner_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE
		SET fire_at = EXCLUDED.fire_at, purpose = EXCLUDED.purpose,
		    kind = EXCLUDED.kind, unit_code = EXCLUDED.unit_code,
		    group_id = EXCLUDED.group_id, owner_id = EXCLUDED.owner_id
	`, a.Key, a.FireAt, a.Purpose, a.Kind, a.UnitCode, a.GroupID, a.OwnerID)
	return err
}

func (r *ActionRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM scheduled_actions WHERE key = $1`, key)
	return err
}

func (r *ActionRepo) Get(ctx context.Context, key string) (*domain.ScheduledAction, error) {
	a := &domain.ScheduledAction{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT key, fire_at, purpose, kind, unit_code, group_id, owner_id
		FROM scheduled_actions WHERE key = $1
	`, key).Scan(&a.Key, &a.FireAt, &a.Purpose, &a.Kind, &a.UnitCode, &a.GroupID, &a.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrActionNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ClaimDue removes and returns due actions. SKIP LOCKED lets several
// driver instances drain the table without claiming the same rows.
func (r *ActionRepo) ClaimDue(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledAction, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		DELETE FROM scheduled_actions
		WHERE key IN (
			SELECT key FROM scheduled_actions
			WHERE fire_at <= $1
			ORDER BY fire_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING key, fire_at, purpose, kind, unit_code, group_id, owner_id
	`, now, limit)
	if err != nil {
		return nil, err
	}

	var actions []domain.ScheduledAction
	for rows.Next() {
		var a domain.ScheduledAction
		if err := rows.Scan(&a.Key, &a.FireAt, &a.Purpose, &a.Kind, &a.UnitCode, &a.GroupID, &a.OwnerID); err != nil {
			rows.Close()
			return nil, err
		}
		actions = append(actions, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return actions, nil
}
