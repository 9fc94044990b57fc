package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/olehbas/marshrut/internal/core/domain"
)

// CategoryRepo implements ports.CategoryRepository.
type CategoryRepo struct {
	db *DB
}

func NewCategoryRepo(db *DB) *CategoryRepo {
	return &CategoryRepo{db: db}
}

func (r *CategoryRepo) GetByID(ctx context.Context, id int64) (*domain.PassengerCategory, error) {
	c := &domain.PassengerCategory{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, discount_percent
		FROM passenger_categories WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.DiscountPercent)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("passenger category %d: not found", id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CategoryRepo) List(ctx context.Context) ([]domain.PassengerCategory, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, discount_percent
		FROM passenger_categories ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []domain.PassengerCategory
	for rows.Next() {
		var c domain.PassengerCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.DiscountPercent); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
