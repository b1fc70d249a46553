package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mypup/backend/internal/models"
)

type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

func (r *ListingRepo) Create(ctx context.Context, l *models.Listing) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO listings (seller_id, title, breed, sex, birth_date, price_cents, currency, description, city, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, l.SellerID, l.Title, l.Breed, l.Sex, l.BirthDate, l.PriceCents, l.Currency, l.Description, l.City, l.Status,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
}

func (r *ListingRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var l models.Listing
	err := r.pool.QueryRow(ctx, `
		SELECT id, seller_id, title, breed, sex, birth_date, price_cents, currency,
		       description, city, status, created_at, updated_at
		FROM listings WHERE id = $1
	`, id).Scan(&l.ID, &l.SellerID, &l.Title, &l.Breed, &l.Sex, &l.BirthDate, &l.PriceCents, &l.Currency,
		&l.Description, &l.City, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &l, nil
}

type ListingFilter struct {
	SellerID *uuid.UUID
	Breed    *string
	City     *string
	Status   *string
	Limit    int
	Offset   int
}

func (r *ListingRepo) List(ctx context.Context, f ListingFilter) ([]models.Listing, error) {
	query := `
		SELECT id, seller_id, title, breed, sex, birth_date, price_cents, currency,
		       description, city, status, created_at, updated_at
		FROM listings
	`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.SellerID != nil {
		where = append(where, fmt.Sprintf("seller_id = $%d", argIdx))
		args = append(args, *f.SellerID)
		argIdx++
	}
	if f.Breed != nil {
		where = append(where, fmt.Sprintf("breed = $%d", argIdx))
		args = append(args, *f.Breed)
		argIdx++
	}
	if f.City != nil {
		where = append(where, fmt.Sprintf("city = $%d", argIdx))
		args = append(args, *f.City)
		argIdx++
	}
	if f.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *f.Status)
		argIdx++
	}

	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.SellerID, &l.Title, &l.Breed, &l.Sex, &l.BirthDate, &l.PriceCents, &l.Currency,
			&l.Description, &l.City, &l.Status, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, nil
}

// MarkSold flips an active listing to sold when its escrow completes.
func (r *ListingRepo) MarkSold(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE listings SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
	`, models.ListingStatusSold, id, models.ListingStatusActive)
	return err
}

func (r *ListingRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE listings SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	return err
}
