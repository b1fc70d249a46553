package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Streams
const (
	StreamEscrow = "events:escrow" // status changes, fanned out to websocket clients
	StreamNotify = "events:notify" // notification intents, consumed by the notifier
)

// Notification kinds
const (
	KindFundsHeld            = "escrow.funds_held"
	KindConfirmationRecorded = "escrow.confirmation_recorded"
	KindDisputeOpened        = "escrow.dispute_opened"
	KindCompleted            = "escrow.completed"
	KindDisputeResolved      = "escrow.dispute_resolved"
)

// Payload is one variant of a notification intent. Each kind carries
// only the fields that kind needs; decoding dispatches on the type tag.
type Payload interface {
	Kind() string
}

type FundsHeld struct {
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

func (FundsHeld) Kind() string { return KindFundsHeld }

type ConfirmationRecorded struct {
	ConfirmedBy uuid.UUID `json:"confirmed_by"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

func (ConfirmationRecorded) Kind() string { return KindConfirmationRecorded }

type DisputeOpened struct {
	OpenedBy uuid.UUID `json:"opened_by"`
	Reason   string    `json:"reason"`
}

func (DisputeOpened) Kind() string { return KindDisputeOpened }

type Completed struct {
	SellerCents     int64  `json:"seller_cents"`
	CommissionCents int64  `json:"commission_cents"`
	Currency        string `json:"currency"`
}

func (Completed) Kind() string { return KindCompleted }

type DisputeResolved struct {
	Outcome string `json:"outcome"`
}

func (DisputeResolved) Kind() string { return KindDisputeResolved }

// Intent is one notification to one recipient about one transaction.
type Intent struct {
	RecipientID   uuid.UUID
	TransactionID uuid.UUID
	Payload       Payload
}

type intentEnvelope struct {
	Type          string          `json:"type"`
	RecipientID   uuid.UUID       `json:"recipient_id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	Payload       json.RawMessage `json:"payload"`
}

func (i Intent) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(i.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(intentEnvelope{
		Type:          i.Payload.Kind(),
		RecipientID:   i.RecipientID,
		TransactionID: i.TransactionID,
		Payload:       payload,
	})
}

// DecodeIntent parses an intent envelope into its typed variant.
func DecodeIntent(data []byte) (Intent, error) {
	var env intentEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Intent{}, err
	}

	var payload Payload
	switch env.Type {
	case KindFundsHeld:
		payload = &FundsHeld{}
	case KindConfirmationRecorded:
		payload = &ConfirmationRecorded{}
	case KindDisputeOpened:
		payload = &DisputeOpened{}
	case KindCompleted:
		payload = &Completed{}
	case KindDisputeResolved:
		payload = &DisputeResolved{}
	default:
		return Intent{}, fmt.Errorf("unknown intent type %q", env.Type)
	}

	if err := json.Unmarshal(env.Payload, payload); err != nil {
		return Intent{}, err
	}

	return Intent{
		RecipientID:   env.RecipientID,
		TransactionID: env.TransactionID,
		Payload:       payload,
	}, nil
}

// StatusChange is broadcast on StreamEscrow for realtime UI updates.
type StatusChange struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	BuyerID       uuid.UUID `json:"buyer_id"`
	SellerID      uuid.UUID `json:"seller_id"`
	OldStatus     string    `json:"old_status"`
	NewStatus     string    `json:"new_status"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, v any) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func([]byte)) error
}
