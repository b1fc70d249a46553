package models

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Escrow transaction statuses
const (
	TxStatusPending         = "pending"
	TxStatusFundsHeld       = "funds_held"
	TxStatusBuyerConfirmed  = "buyer_confirmed"
	TxStatusSellerConfirmed = "seller_confirmed"
	TxStatusCompleted       = "completed"
	TxStatusDisputed        = "disputed"
	TxStatusCancelled       = "cancelled"
	TxStatusRefunded        = "refunded"
)

// Valid state transitions: from -> []to
var ValidTxTransitions = map[string][]string{
	TxStatusPending:         {TxStatusFundsHeld, TxStatusDisputed},
	TxStatusFundsHeld:       {TxStatusBuyerConfirmed, TxStatusSellerConfirmed, TxStatusDisputed},
	TxStatusBuyerConfirmed:  {TxStatusCompleted, TxStatusDisputed},
	TxStatusSellerConfirmed: {TxStatusCompleted, TxStatusDisputed},
	TxStatusDisputed:        {TxStatusCompleted, TxStatusRefunded, TxStatusCancelled},
	TxStatusCompleted:       {},
	TxStatusCancelled:       {},
	TxStatusRefunded:        {},
}

func IsValidTxTransition(from, to string) bool {
	allowed, ok := ValidTxTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalTxStatus reports whether no further transition is permitted.
func IsTerminalTxStatus(status string) bool {
	allowed, ok := ValidTxTransitions[status]
	return ok && len(allowed) == 0
}

// Dispute resolution outcomes
const (
	ResolutionReleaseToSeller = "release_to_seller"
	ResolutionRefundToBuyer   = "refund_to_buyer"
	ResolutionCancel          = "cancel"
)

type EscrowTransaction struct {
	ID              uuid.UUID `json:"id"`
	PaymentIntentID string    `json:"payment_intent_id"`
	BuyerID         uuid.UUID `json:"buyer_id"`
	SellerID        uuid.UUID `json:"seller_id"`
	ListingID       uuid.UUID `json:"listing_id"`

	// Money, in currency minor units
	AmountCents     int64   `json:"amount_cents"`
	CommissionRate  float64 `json:"commission_rate"`
	CommissionCents int64   `json:"commission_cents"`
	SellerCents     int64   `json:"seller_cents"`
	Currency        string  `json:"currency"`

	Status string `json:"status"`

	BuyerConfirmedAt  *time.Time `json:"buyer_confirmed_at,omitempty"`
	SellerConfirmedAt *time.Time `json:"seller_confirmed_at,omitempty"`

	MeetingLocation    *string    `json:"meeting_location,omitempty"`
	MeetingScheduledAt *time.Time `json:"meeting_scheduled_at,omitempty"`

	DisputeReason    *string    `json:"dispute_reason,omitempty"`
	DisputeCreatedAt *time.Time `json:"dispute_created_at,omitempty"`

	FundsReleasedAt *time.Time `json:"funds_released_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsParticipant reports whether userID is the buyer or the seller.
func (t *EscrowTransaction) IsParticipant(userID uuid.UUID) bool {
	return t.BuyerID == userID || t.SellerID == userID
}

// Counterparty returns the other side of the transaction.
func (t *EscrowTransaction) Counterparty(userID uuid.UUID) uuid.UUID {
	if t.BuyerID == userID {
		return t.SellerID
	}
	return t.BuyerID
}

// CommissionFor computes the platform commission in minor units,
// rounded half away from zero. The seller share is always the exact
// remainder, so commission + seller == amount holds for any rate.
func CommissionFor(amountCents int64, rate float64) int64 {
	return int64(math.Round(float64(amountCents) * rate))
}
