package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mypup/backend/internal/config"
	"github.com/mypup/backend/internal/events"
	"github.com/mypup/backend/internal/models"
	"github.com/mypup/backend/internal/payments"
	"github.com/mypup/backend/internal/repositories"
	"go.uber.org/zap"
)

// TransactionRepository is the escrow state store. Transition methods
// are conditional writes: they return repositories.ErrStaleState when a
// concurrent writer moved the row out of the expected state first.
type TransactionRepository interface {
	Create(ctx context.Context, t *models.EscrowTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	GetByPaymentIntentID(ctx context.Context, intentID string) (*models.EscrowTransaction, error)
	List(ctx context.Context, f repositories.TransactionFilter) ([]models.EscrowTransaction, error)
	MarkFundsHeld(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	ConfirmBuyer(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	ConfirmSeller(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	MarkDisputed(ctx context.Context, id uuid.UUID, reason string) (*models.EscrowTransaction, error)
	Resolve(ctx context.Context, id uuid.UUID, newStatus string) (*models.EscrowTransaction, error)
}

type ListingStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	MarkSold(ctx context.Context, id uuid.UUID) error
}

type PaymentProvider interface {
	CreateIntent(ctx context.Context, req payments.CreateIntentRequest) (*payments.Intent, error)
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// EscrowService owns the transaction lifecycle. Every transition is a
// single conditional write against the authoritative row; audit entries
// and notification intents are dispatched after the write commits and
// never roll it back.
type EscrowService struct {
	txRepo    TransactionRepository
	listings  ListingStore
	processor PaymentProvider
	audit     AuditLogger
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewEscrowService(
	txRepo TransactionRepository,
	listings ListingStore,
	processor PaymentProvider,
	audit AuditLogger,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *EscrowService {
	return &EscrowService{
		txRepo:    txRepo,
		listings:  listings,
		processor: processor,
		audit:     audit,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// CreateTransaction opens an escrow for a listing. The payment intent
// is created first; nothing is persisted if the processor call fails.
func (s *EscrowService) CreateTransaction(ctx context.Context, buyerID, listingID uuid.UUID, meetingLocation *string) (*models.EscrowTransaction, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("listing not found: %w", err)
	}
	if listing.Status != models.ListingStatusActive {
		return nil, fmt.Errorf("listing is not available for purchase (status %s)", listing.Status)
	}
	if buyerID == listing.SellerID {
		return nil, models.ErrInvalidParticipants
	}
	if listing.PriceCents <= 0 {
		return nil, fmt.Errorf("listing price must be positive")
	}

	rate := s.cfg.CommissionRate
	if rate < 0 || rate > 1 {
		return nil, fmt.Errorf("commission rate %v outside [0, 1]", rate)
	}

	commission := models.CommissionFor(listing.PriceCents, rate)

	txID := uuid.New()
	intent, err := s.processor.CreateIntent(ctx, payments.CreateIntentRequest{
		AmountCents: listing.PriceCents,
		Currency:    listing.Currency,
		Metadata:    map[string]string{"transaction_id": txID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrPaymentIntentFailed, err)
	}

	t := &models.EscrowTransaction{
		ID:              txID,
		PaymentIntentID: intent.ID,
		BuyerID:         buyerID,
		SellerID:        listing.SellerID,
		ListingID:       listing.ID,
		AmountCents:     listing.PriceCents,
		CommissionRate:  rate,
		CommissionCents: commission,
		SellerCents:     listing.PriceCents - commission,
		Currency:        listing.Currency,
		Status:          models.TxStatusPending,
		MeetingLocation: meetingLocation,
	}
	if err := s.txRepo.Create(ctx, t); err != nil {
		return nil, err
	}

	s.auditLog(ctx, &buyerID, "user", "escrow_created", t.ID, map[string]any{
		"listing_id":   listing.ID.String(),
		"amount_cents": t.AmountCents,
	})

	return t, nil
}

// MarkFundsHeld moves pending -> funds_held on processor capture
// confirmation. Replayed confirmations are no-ops.
func (s *EscrowService) MarkFundsHeld(ctx context.Context, txID uuid.UUID) (*models.EscrowTransaction, error) {
	t, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if t.Status == models.TxStatusFundsHeld {
		return t, nil
	}
	if !models.IsValidTxTransition(t.Status, models.TxStatusFundsHeld) {
		return nil, statusErr(t.Status)
	}

	updated, err := s.txRepo.MarkFundsHeld(ctx, txID)
	if errors.Is(err, repositories.ErrStaleState) {
		// lost the race: a duplicate webhook may have won
		current, rerr := s.txRepo.GetByID(ctx, txID)
		if rerr == nil && current.Status == models.TxStatusFundsHeld {
			return current, nil
		}
		return nil, statusErr(t.Status)
	}
	if err != nil {
		return nil, err
	}

	s.afterTransition(ctx, updated, models.TxStatusPending, nil, "system",
		s.intentsForBoth(updated, events.FundsHeld{AmountCents: updated.AmountCents, Currency: updated.Currency}))
	return updated, nil
}

// MarkFundsHeldByIntent resolves the transaction from the processor's
// payment intent id when webhook metadata is missing.
func (s *EscrowService) MarkFundsHeldByIntent(ctx context.Context, intentID string) (*models.EscrowTransaction, error) {
	t, err := s.txRepo.GetByPaymentIntentID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	return s.MarkFundsHeld(ctx, t.ID)
}

// Confirm records that one party confirmed the handover. Confirming
// twice is a no-op; the second party's confirmation completes the
// transaction and releases funds exactly once.
func (s *EscrowService) Confirm(ctx context.Context, txID, actorID uuid.UUID) (*models.EscrowTransaction, error) {
	t, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(actorID) {
		return nil, models.ErrUnauthorized
	}

	// status gate first: a party who confirmed before a dispute or
	// resolution must not get a silent success afterwards
	switch t.Status {
	case models.TxStatusFundsHeld, models.TxStatusBuyerConfirmed, models.TxStatusSellerConfirmed:
	default:
		return nil, statusErr(t.Status)
	}

	isBuyer := t.BuyerID == actorID
	if (isBuyer && t.BuyerConfirmedAt != nil) || (!isBuyer && t.SellerConfirmedAt != nil) {
		return t, nil
	}

	confirm := s.txRepo.ConfirmSeller
	if isBuyer {
		confirm = s.txRepo.ConfirmBuyer
	}

	updated, err := confirm(ctx, txID)
	if errors.Is(err, repositories.ErrStaleState) {
		current, rerr := s.txRepo.GetByID(ctx, txID)
		if rerr == nil {
			switch current.Status {
			case models.TxStatusFundsHeld, models.TxStatusBuyerConfirmed,
				models.TxStatusSellerConfirmed, models.TxStatusCompleted:
				already := (isBuyer && current.BuyerConfirmedAt != nil) || (!isBuyer && current.SellerConfirmedAt != nil)
				if already {
					return current, nil
				}
			}
			return nil, statusErr(current.Status)
		}
		return nil, statusErr(t.Status)
	}
	if err != nil {
		return nil, err
	}

	var intents []events.Intent
	if updated.Status == models.TxStatusCompleted {
		intents = s.intentsForBoth(updated, events.Completed{
			SellerCents:     updated.SellerCents,
			CommissionCents: updated.CommissionCents,
			Currency:        updated.Currency,
		})
		if err := s.listings.MarkSold(ctx, updated.ListingID); err != nil {
			s.log.Warn("failed to mark listing sold",
				zap.String("listing_id", updated.ListingID.String()), zap.Error(err))
		}
	} else {
		confirmedAt := updated.BuyerConfirmedAt
		if !isBuyer {
			confirmedAt = updated.SellerConfirmedAt
		}
		intents = []events.Intent{{
			RecipientID:   updated.Counterparty(actorID),
			TransactionID: updated.ID,
			Payload:       events.ConfirmationRecorded{ConfirmedBy: actorID, ConfirmedAt: *confirmedAt},
		}}
	}

	s.afterTransition(ctx, updated, t.Status, &actorID, "user", intents)
	return updated, nil
}

// OpenDispute freezes the transaction for administrative review.
func (s *EscrowService) OpenDispute(ctx context.Context, txID, actorID uuid.UUID, reason string) (*models.EscrowTransaction, error) {
	if reason == "" {
		return nil, fmt.Errorf("dispute reason is required")
	}

	t, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(actorID) {
		return nil, models.ErrUnauthorized
	}

	switch t.Status {
	case models.TxStatusDisputed:
		return nil, models.ErrAlreadyDisputed
	case models.TxStatusCompleted:
		return nil, models.ErrCannotDisputeCompleted
	}
	if !models.IsValidTxTransition(t.Status, models.TxStatusDisputed) {
		return nil, statusErr(t.Status)
	}

	updated, err := s.txRepo.MarkDisputed(ctx, txID, reason)
	if errors.Is(err, repositories.ErrStaleState) {
		current, rerr := s.txRepo.GetByID(ctx, txID)
		if rerr == nil && current.Status == models.TxStatusDisputed {
			return nil, models.ErrAlreadyDisputed
		}
		return nil, statusErr(t.Status)
	}
	if err != nil {
		return nil, err
	}

	payload := events.DisputeOpened{OpenedBy: actorID, Reason: reason}
	intents := []events.Intent{{
		RecipientID:   updated.Counterparty(actorID),
		TransactionID: updated.ID,
		Payload:       payload,
	}}
	if s.cfg.AdminReviewQueue != uuid.Nil {
		intents = append(intents, events.Intent{
			RecipientID:   s.cfg.AdminReviewQueue,
			TransactionID: updated.ID,
			Payload:       payload,
		})
	}

	s.afterTransition(ctx, updated, t.Status, &actorID, "user", intents)
	return updated, nil
}

// ResolveDispute applies an administrative decision to a disputed
// transaction. All three outcomes are terminal.
func (s *EscrowService) ResolveDispute(ctx context.Context, txID, adminID uuid.UUID, outcome string) (*models.EscrowTransaction, error) {
	var newStatus string
	switch outcome {
	case models.ResolutionReleaseToSeller:
		newStatus = models.TxStatusCompleted
	case models.ResolutionRefundToBuyer:
		newStatus = models.TxStatusRefunded
	case models.ResolutionCancel:
		newStatus = models.TxStatusCancelled
	default:
		return nil, fmt.Errorf("unknown resolution outcome %q", outcome)
	}

	t, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !models.IsValidTxTransition(t.Status, newStatus) {
		return nil, statusErr(t.Status)
	}

	updated, err := s.txRepo.Resolve(ctx, txID, newStatus)
	if errors.Is(err, repositories.ErrStaleState) {
		return nil, statusErr(t.Status)
	}
	if err != nil {
		return nil, err
	}

	if updated.Status == models.TxStatusCompleted {
		if err := s.listings.MarkSold(ctx, updated.ListingID); err != nil {
			s.log.Warn("failed to mark listing sold",
				zap.String("listing_id", updated.ListingID.String()), zap.Error(err))
		}
	}

	s.afterTransition(ctx, updated, models.TxStatusDisputed, &adminID, "admin",
		s.intentsForBoth(updated, events.DisputeResolved{Outcome: outcome}))
	return updated, nil
}

// GetTransaction is restricted to the two parties and admins.
func (s *EscrowService) GetTransaction(ctx context.Context, txID, requesterID uuid.UUID, isAdmin bool) (*models.EscrowTransaction, error) {
	t, err := s.txRepo.GetByID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if !t.IsParticipant(requesterID) && !isAdmin {
		return nil, models.ErrUnauthorized
	}
	return t, nil
}

// ListTransactions returns the requester's transactions, optionally
// narrowed to one side or one status.
func (s *EscrowService) ListTransactions(ctx context.Context, requesterID uuid.UUID, role string, status *string, limit, offset int) ([]models.EscrowTransaction, error) {
	f := repositories.TransactionFilter{Status: status, Limit: limit, Offset: offset}
	switch role {
	case "buyer":
		f.BuyerID = &requesterID
	case "seller":
		f.SellerID = &requesterID
	default:
		f.ParticipantID = &requesterID
	}
	return s.txRepo.List(ctx, f)
}

// --- side effects ---

// afterTransition dispatches audit + events for a committed transition.
// Failures here are logged and never surface to the caller.
func (s *EscrowService) afterTransition(ctx context.Context, t *models.EscrowTransaction, oldStatus string, actorID *uuid.UUID, actorType string, intents []events.Intent) {
	actor := actorType
	if actor == "" {
		actor = "system"
	}
	s.auditLog(ctx, actorID, actor,
		fmt.Sprintf("escrow_status_%s_to_%s", oldStatus, t.Status), t.ID,
		map[string]any{"old_status": oldStatus, "new_status": t.Status})

	if err := s.publisher.Publish(ctx, events.StreamEscrow, events.StatusChange{
		TransactionID: t.ID,
		BuyerID:       t.BuyerID,
		SellerID:      t.SellerID,
		OldStatus:     oldStatus,
		NewStatus:     t.Status,
	}); err != nil {
		s.log.Warn("failed to publish status change",
			zap.String("transaction_id", t.ID.String()), zap.Error(err))
	}

	for _, intent := range intents {
		if err := s.publisher.Publish(ctx, events.StreamNotify, intent); err != nil {
			s.log.Warn("failed to publish notification intent",
				zap.String("transaction_id", t.ID.String()),
				zap.String("kind", intent.Payload.Kind()),
				zap.Error(err))
		}
	}
}

func (s *EscrowService) intentsForBoth(t *models.EscrowTransaction, payload events.Payload) []events.Intent {
	return []events.Intent{
		{RecipientID: t.BuyerID, TransactionID: t.ID, Payload: payload},
		{RecipientID: t.SellerID, TransactionID: t.ID, Payload: payload},
	}
}

func (s *EscrowService) auditLog(ctx context.Context, actorID *uuid.UUID, actorType, action string, entityID uuid.UUID, meta map[string]any) {
	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      action,
		EntityType:  "escrow_transaction",
		EntityID:    &entityID,
		Meta:        meta,
	}); err != nil {
		s.log.Warn("failed to write audit entry", zap.String("action", action), zap.Error(err))
	}
}

func statusErr(status string) error {
	return fmt.Errorf("%w: transaction is %s", models.ErrInvalidStateTransition, status)
}
