package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ds124wfegd/travel-booking/internal/entity"
)

// tourRepository reads the catalog; tours are maintained elsewhere
type tourRepository struct {
	db *sql.DB
}

func NewTourRepository(db *sql.DB) TourRepository {
	return &tourRepository{db: db}
}

func (r *tourRepository) GetByID(ctx context.Context, id string) (*entity.Tour, error) {
	query := `
		SELECT id, title, price, duration_days, created_at, updated_at
		FROM tours
		WHERE id = $1
	`

	var tour entity.Tour
	err := conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&tour.ID,
		&tour.Title,
		&tour.Price,
		&tour.DurationDays,
		&tour.CreatedAt,
		&tour.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrTourNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tour: %w", err)
	}
	return &tour, nil
}
