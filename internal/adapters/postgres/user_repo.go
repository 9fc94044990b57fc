package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u := &domain.User{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, COALESCE(full_name, ''), COALESCE(phone, ''), COALESCE(language, 'uk'), notifications_enabled
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.FullName, &u.Phone, &u.Language, &u.NotificationsEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// FindOrCreatePerson reuses a saved person with the same name and phone
// so repeat bookings do not multiply person rows.
func (r *UserRepo) FindOrCreatePerson(ctx context.Context, ownerID int64, p domain.Person) (*domain.Person, error) {
	out := p
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id FROM persons
		WHERE owner_id = $1 AND name = $2 AND surname = $3 AND COALESCE(phone, '') = $4
	`, ownerID, p.Name, p.Surname, p.Phone).Scan(&out.ID)
	if err == nil {
		return &out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	err = r.db.Pool.QueryRow(ctx, `
		INSERT INTO persons (owner_id, name, surname, phone)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id
	`, ownerID, p.Name, p.Surname, p.Phone).Scan(&out.ID)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
