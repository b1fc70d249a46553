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

// ErrStaleState is returned when a conditional update matched no row:
// either the transaction does not exist or a concurrent writer moved it
// out of the expected state first. Callers re-read and decide.
var ErrStaleState = errors.New("transaction state changed concurrently")

const txColumns = `
	id, payment_intent_id, buyer_id, seller_id, listing_id,
	amount_cents, commission_rate, commission_cents, seller_cents, currency,
	status, buyer_confirmed_at, seller_confirmed_at,
	meeting_location, meeting_scheduled_at,
	dispute_reason, dispute_created_at,
	funds_released_at, created_at, updated_at`

type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func scanTx(row pgx.Row) (*models.EscrowTransaction, error) {
	var t models.EscrowTransaction
	err := row.Scan(
		&t.ID, &t.PaymentIntentID, &t.BuyerID, &t.SellerID, &t.ListingID,
		&t.AmountCents, &t.CommissionRate, &t.CommissionCents, &t.SellerCents, &t.Currency,
		&t.Status, &t.BuyerConfirmedAt, &t.SellerConfirmedAt,
		&t.MeetingLocation, &t.MeetingScheduledAt,
		&t.DisputeReason, &t.DisputeCreatedAt,
		&t.FundsReleasedAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) Create(ctx context.Context, t *models.EscrowTransaction) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO escrow_transactions
			(id, payment_intent_id, buyer_id, seller_id, listing_id,
			 amount_cents, commission_rate, commission_cents, seller_cents, currency,
			 status, meeting_location, meeting_scheduled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, t.ID, t.PaymentIntentID, t.BuyerID, t.SellerID, t.ListingID,
		t.AmountCents, t.CommissionRate, t.CommissionCents, t.SellerCents, t.Currency,
		t.Status, t.MeetingLocation, t.MeetingScheduledAt,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return scanTx(r.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM escrow_transactions WHERE id = $1`, id))
}

func (r *TransactionRepo) GetByPaymentIntentID(ctx context.Context, intentID string) (*models.EscrowTransaction, error) {
	return scanTx(r.pool.QueryRow(ctx,
		`SELECT `+txColumns+` FROM escrow_transactions WHERE payment_intent_id = $1`, intentID))
}

type TransactionFilter struct {
	ParticipantID *uuid.UUID
	BuyerID       *uuid.UUID
	SellerID      *uuid.UUID
	Status        *string
	Limit         int
	Offset        int
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilter) ([]models.EscrowTransaction, error) {
	query := `SELECT ` + txColumns + ` FROM escrow_transactions`
	args := []any{}
	argIdx := 1
	where := []string{}

	if f.ParticipantID != nil {
		where = append(where, fmt.Sprintf("(buyer_id = $%d OR seller_id = $%d)", argIdx, argIdx))
		args = append(args, *f.ParticipantID)
		argIdx++
	}
	if f.BuyerID != nil {
		where = append(where, fmt.Sprintf("buyer_id = $%d", argIdx))
		args = append(args, *f.BuyerID)
		argIdx++
	}
	if f.SellerID != nil {
		where = append(where, fmt.Sprintf("seller_id = $%d", argIdx))
		args = append(args, *f.SellerID)
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

	var txs []models.EscrowTransaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, nil
}

// MarkFundsHeld moves pending -> funds_held. Conditioned on the prior
// status so a replayed webhook is harmless.
func (r *TransactionRepo) MarkFundsHeld(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	t, err := scanTx(r.pool.QueryRow(ctx, `
		UPDATE escrow_transactions
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3
		RETURNING `+txColumns,
		id, models.TxStatusFundsHeld, models.TxStatusPending))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrStaleState
	}
	return t, err
}

// ConfirmBuyer records the buyer's confirmation in a single conditional
// write. If the seller already confirmed, the same statement completes
// the transaction and stamps funds_released_at, so two near-simultaneous
// confirmations serialize at the row and exactly one writer completes.
func (r *TransactionRepo) ConfirmBuyer(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	t, err := scanTx(r.pool.QueryRow(ctx, `
		UPDATE escrow_transactions
		SET buyer_confirmed_at = now(),
		    status = CASE WHEN seller_confirmed_at IS NOT NULL THEN $2 ELSE $3 END,
		    funds_released_at = CASE WHEN seller_confirmed_at IS NOT NULL THEN now() ELSE funds_released_at END,
		    updated_at = now()
		WHERE id = $1
		  AND buyer_confirmed_at IS NULL
		  AND status IN ($4, $5)
		RETURNING `+txColumns,
		id, models.TxStatusCompleted, models.TxStatusBuyerConfirmed,
		models.TxStatusFundsHeld, models.TxStatusSellerConfirmed))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrStaleState
	}
	return t, err
}

// ConfirmSeller mirrors ConfirmBuyer for the seller's side.
func (r *TransactionRepo) ConfirmSeller(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	t, err := scanTx(r.pool.QueryRow(ctx, `
		UPDATE escrow_transactions
		SET seller_confirmed_at = now(),
		    status = CASE WHEN buyer_confirmed_at IS NOT NULL THEN $2 ELSE $3 END,
		    funds_released_at = CASE WHEN buyer_confirmed_at IS NOT NULL THEN now() ELSE funds_released_at END,
		    updated_at = now()
		WHERE id = $1
		  AND seller_confirmed_at IS NULL
		  AND status IN ($4, $5)
		RETURNING `+txColumns,
		id, models.TxStatusCompleted, models.TxStatusSellerConfirmed,
		models.TxStatusFundsHeld, models.TxStatusBuyerConfirmed))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrStaleState
	}
	return t, err
}

// MarkDisputed moves any non-terminal, non-disputed state to disputed.
func (r *TransactionRepo) MarkDisputed(ctx context.Context, id uuid.UUID, reason string) (*models.EscrowTransaction, error) {
	t, err := scanTx(r.pool.QueryRow(ctx, `
		UPDATE escrow_transactions
		SET status = $2, dispute_reason = $3, dispute_created_at = now(), updated_at = now()
		WHERE id = $1 AND status IN ($4, $5, $6, $7)
		RETURNING `+txColumns,
		id, models.TxStatusDisputed, reason,
		models.TxStatusPending, models.TxStatusFundsHeld,
		models.TxStatusBuyerConfirmed, models.TxStatusSellerConfirmed))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrStaleState
	}
	return t, err
}

// Resolve applies a dispute resolution. funds_released_at is stamped for
// completed and refunded outcomes, never for cancelled.
func (r *TransactionRepo) Resolve(ctx context.Context, id uuid.UUID, newStatus string) (*models.EscrowTransaction, error) {
	t, err := scanTx(r.pool.QueryRow(ctx, `
		UPDATE escrow_transactions
		SET status = $2,
		    funds_released_at = CASE WHEN $2 IN ($3, $4) THEN now() ELSE funds_released_at END,
		    updated_at = now()
		WHERE id = $1 AND status = $5
		RETURNING `+txColumns,
		id, newStatus, models.TxStatusCompleted, models.TxStatusRefunded,
		models.TxStatusDisputed))
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrStaleState
	}
	return t, err
}
