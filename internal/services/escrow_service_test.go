package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mypup/backend/internal/config"
	"github.com/mypup/backend/internal/events"
	"github.com/mypup/backend/internal/models"
	"github.com/mypup/backend/internal/payments"
	"github.com/mypup/backend/internal/repositories"
	"go.uber.org/zap"
)

// memTxRepo mirrors the conditional-update semantics of the Postgres
// repo: transition methods fail with ErrStaleState when the row is not
// in the expected prior state.
type memTxRepo struct {
	mu  sync.Mutex
	txs map[uuid.UUID]*models.EscrowTransaction
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{txs: make(map[uuid.UUID]*models.EscrowTransaction)}
}

func (r *memTxRepo) Create(_ context.Context, t *models.EscrowTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	r.txs[t.ID] = &cp
	return nil
}

func (r *memTxRepo) GetByID(_ context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *memTxRepo) GetByPaymentIntentID(_ context.Context, intentID string) (*models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.txs {
		if t.PaymentIntentID == intentID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memTxRepo) List(_ context.Context, f repositories.TransactionFilter) ([]models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.EscrowTransaction
	for _, t := range r.txs {
		if f.ParticipantID != nil && !t.IsParticipant(*f.ParticipantID) {
			continue
		}
		if f.BuyerID != nil && t.BuyerID != *f.BuyerID {
			continue
		}
		if f.SellerID != nil && t.SellerID != *f.SellerID {
			continue
		}
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *memTxRepo) MarkFundsHeld(_ context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || t.Status != models.TxStatusPending {
		return nil, repositories.ErrStaleState
	}
	t.Status = models.TxStatusFundsHeld
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (r *memTxRepo) ConfirmBuyer(_ context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return r.confirm(id, true)
}

func (r *memTxRepo) ConfirmSeller(_ context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return r.confirm(id, false)
}

func (r *memTxRepo) confirm(id uuid.UUID, buyer bool) (*models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return nil, repositories.ErrStaleState
	}

	now := time.Now()
	if buyer {
		if t.BuyerConfirmedAt != nil ||
			(t.Status != models.TxStatusFundsHeld && t.Status != models.TxStatusSellerConfirmed) {
			return nil, repositories.ErrStaleState
		}
		t.BuyerConfirmedAt = &now
		if t.SellerConfirmedAt != nil {
			t.Status = models.TxStatusCompleted
			t.FundsReleasedAt = &now
		} else {
			t.Status = models.TxStatusBuyerConfirmed
		}
	} else {
		if t.SellerConfirmedAt != nil ||
			(t.Status != models.TxStatusFundsHeld && t.Status != models.TxStatusBuyerConfirmed) {
			return nil, repositories.ErrStaleState
		}
		t.SellerConfirmedAt = &now
		if t.BuyerConfirmedAt != nil {
			t.Status = models.TxStatusCompleted
			t.FundsReleasedAt = &now
		} else {
			t.Status = models.TxStatusSellerConfirmed
		}
	}
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (r *memTxRepo) MarkDisputed(_ context.Context, id uuid.UUID, reason string) (*models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok {
		return nil, repositories.ErrStaleState
	}
	switch t.Status {
	case models.TxStatusPending, models.TxStatusFundsHeld,
		models.TxStatusBuyerConfirmed, models.TxStatusSellerConfirmed:
	default:
		return nil, repositories.ErrStaleState
	}
	now := time.Now()
	t.Status = models.TxStatusDisputed
	t.DisputeReason = &reason
	t.DisputeCreatedAt = &now
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

func (r *memTxRepo) Resolve(_ context.Context, id uuid.UUID, newStatus string) (*models.EscrowTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.txs[id]
	if !ok || t.Status != models.TxStatusDisputed {
		return nil, repositories.ErrStaleState
	}
	now := time.Now()
	t.Status = newStatus
	if newStatus == models.TxStatusCompleted || newStatus == models.TxStatusRefunded {
		t.FundsReleasedAt = &now
	}
	t.UpdatedAt = now
	cp := *t
	return &cp, nil
}

type memListingStore struct {
	mu       sync.Mutex
	listings map[uuid.UUID]*models.Listing
}

func newMemListingStore() *memListingStore {
	return &memListingStore{listings: make(map[uuid.UUID]*models.Listing)}
}

func (s *memListingStore) GetByID(_ context.Context, id uuid.UUID) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *memListingStore) MarkSold(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.listings[id]; ok && l.Status == models.ListingStatusActive {
		l.Status = models.ListingStatusSold
	}
	return nil
}

type fakeProcessor struct {
	fail    bool
	created int
}

func (p *fakeProcessor) CreateIntent(_ context.Context, req payments.CreateIntentRequest) (*payments.Intent, error) {
	if p.fail {
		return nil, errors.New("processor unavailable")
	}
	p.created++
	return &payments.Intent{ID: fmt.Sprintf("pi_test_%d", p.created), Status: "requires_capture"}, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *memAudit) Log(_ context.Context, entry models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

type published struct {
	stream string
	value  any
}

type memPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *memPublisher) Publish(_ context.Context, stream string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{stream: stream, value: v})
	return nil
}

func (p *memPublisher) intents() []events.Intent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Intent
	for _, e := range p.events {
		if e.stream == events.StreamNotify {
			out = append(out, e.value.(events.Intent))
		}
	}
	return out
}

type testEnv struct {
	svc       *EscrowService
	txRepo    *memTxRepo
	listings  *memListingStore
	processor *fakeProcessor
	audit     *memAudit
	publisher *memPublisher
	cfg       *config.Config

	buyerID  uuid.UUID
	sellerID uuid.UUID
	listing  *models.Listing
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		txRepo:    newMemTxRepo(),
		listings:  newMemListingStore(),
		processor: &fakeProcessor{},
		audit:     &memAudit{},
		publisher: &memPublisher{},
		cfg: &config.Config{
			CommissionRate:   0.10,
			DefaultCurrency:  "USD",
			AdminReviewQueue: uuid.New(),
		},
		buyerID:  uuid.New(),
		sellerID: uuid.New(),
	}
	env.listing = &models.Listing{
		ID:         uuid.New(),
		SellerID:   env.sellerID,
		Title:      "Golden retriever puppy",
		Breed:      "golden_retriever",
		PriceCents: 100000,
		Currency:   "USD",
		Status:     models.ListingStatusActive,
	}
	env.listings.listings[env.listing.ID] = env.listing
	env.svc = NewEscrowService(env.txRepo, env.listings, env.processor, env.audit,
		env.publisher, env.cfg, zap.NewNop())
	return env
}

func (env *testEnv) createFunded(t *testing.T) *models.EscrowTransaction {
	t.Helper()
	ctx := context.Background()
	tx, err := env.svc.CreateTransaction(ctx, env.buyerID, env.listing.ID, nil)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	tx, err = env.svc.MarkFundsHeld(ctx, tx.ID)
	if err != nil {
		t.Fatalf("MarkFundsHeld: %v", err)
	}
	return tx
}

func TestCreateTransactionSplitsAmountExactly(t *testing.T) {
	env := newTestEnv(t)

	tx, err := env.svc.CreateTransaction(context.Background(), env.buyerID, env.listing.ID, nil)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if tx.Status != models.TxStatusPending {
		t.Errorf("status = %s, want pending", tx.Status)
	}
	if tx.CommissionCents != 10000 {
		t.Errorf("commission = %d, want 10000", tx.CommissionCents)
	}
	if tx.SellerCents != 90000 {
		t.Errorf("seller share = %d, want 90000", tx.SellerCents)
	}
	if tx.CommissionCents+tx.SellerCents != tx.AmountCents {
		t.Errorf("split %d + %d does not sum to %d",
			tx.CommissionCents, tx.SellerCents, tx.AmountCents)
	}
	if tx.PaymentIntentID == "" {
		t.Error("payment intent id not recorded")
	}
}

func TestCreateTransactionRejectsSelfPurchase(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.CreateTransaction(context.Background(), env.sellerID, env.listing.ID, nil)
	if !errors.Is(err, models.ErrInvalidParticipants) {
		t.Fatalf("err = %v, want ErrInvalidParticipants", err)
	}
	if len(env.txRepo.txs) != 0 {
		t.Error("transaction persisted despite invalid participants")
	}
	if env.processor.created != 0 {
		t.Error("payment intent created despite invalid participants")
	}
}

func TestCreateTransactionPaymentFailurePersistsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.processor.fail = true

	_, err := env.svc.CreateTransaction(context.Background(), env.buyerID, env.listing.ID, nil)
	if !errors.Is(err, models.ErrPaymentIntentFailed) {
		t.Fatalf("err = %v, want ErrPaymentIntentFailed", err)
	}
	if len(env.txRepo.txs) != 0 {
		t.Error("transaction persisted despite payment intent failure")
	}
}

func TestCreateTransactionRejectsInactiveListing(t *testing.T) {
	env := newTestEnv(t)
	env.listing.Status = models.ListingStatusSold

	if _, err := env.svc.CreateTransaction(context.Background(), env.buyerID, env.listing.ID, nil); err == nil {
		t.Fatal("expected error for sold listing")
	}
}

func TestMarkFundsHeldIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.svc.CreateTransaction(ctx, env.buyerID, env.listing.ID, nil)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	first, err := env.svc.MarkFundsHeld(ctx, tx.ID)
	if err != nil {
		t.Fatalf("first MarkFundsHeld: %v", err)
	}
	if first.Status != models.TxStatusFundsHeld {
		t.Fatalf("status = %s, want funds_held", first.Status)
	}

	intentsBefore := len(env.publisher.intents())

	second, err := env.svc.MarkFundsHeld(ctx, tx.ID)
	if err != nil {
		t.Fatalf("replayed MarkFundsHeld: %v", err)
	}
	if second.Status != models.TxStatusFundsHeld {
		t.Errorf("status after replay = %s", second.Status)
	}
	if got := len(env.publisher.intents()); got != intentsBefore {
		t.Errorf("replay published %d extra intents", got-intentsBefore)
	}
}

func TestMarkFundsHeldNotifiesBothParties(t *testing.T) {
	env := newTestEnv(t)
	env.createFunded(t)

	intents := env.publisher.intents()
	if len(intents) != 2 {
		t.Fatalf("got %d intents, want 2", len(intents))
	}
	recipients := map[uuid.UUID]bool{}
	for _, in := range intents {
		if in.Payload.Kind() != events.KindFundsHeld {
			t.Errorf("intent kind = %s", in.Payload.Kind())
		}
		recipients[in.RecipientID] = true
	}
	if !recipients[env.buyerID] || !recipients[env.sellerID] {
		t.Error("funds held intents did not reach both parties")
	}
}

func TestConfirmCompletesAfterBothParties(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	afterBuyer, err := env.svc.Confirm(ctx, tx.ID, env.buyerID)
	if err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}
	if afterBuyer.Status != models.TxStatusBuyerConfirmed {
		t.Fatalf("status = %s, want buyer_confirmed", afterBuyer.Status)
	}
	if afterBuyer.FundsReleasedAt != nil {
		t.Error("funds released after a single confirmation")
	}

	afterSeller, err := env.svc.Confirm(ctx, tx.ID, env.sellerID)
	if err != nil {
		t.Fatalf("seller confirm: %v", err)
	}
	if afterSeller.Status != models.TxStatusCompleted {
		t.Fatalf("status = %s, want completed", afterSeller.Status)
	}
	if afterSeller.FundsReleasedAt == nil {
		t.Error("funds_released_at not stamped on completion")
	}

	listing, _ := env.listings.GetByID(ctx, env.listing.ID)
	if listing.Status != models.ListingStatusSold {
		t.Errorf("listing status = %s, want sold", listing.Status)
	}
}

func TestConfirmOrderDoesNotMatter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	if _, err := env.svc.Confirm(ctx, tx.ID, env.sellerID); err != nil {
		t.Fatalf("seller confirm: %v", err)
	}
	final, err := env.svc.Confirm(ctx, tx.ID, env.buyerID)
	if err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}
	if final.Status != models.TxStatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
}

func TestConfirmTwiceIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	first, err := env.svc.Confirm(ctx, tx.ID, env.buyerID)
	if err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	intentsBefore := len(env.publisher.intents())

	second, err := env.svc.Confirm(ctx, tx.ID, env.buyerID)
	if err != nil {
		t.Fatalf("repeat confirm: %v", err)
	}
	if second.Status != first.Status {
		t.Errorf("repeat confirm changed status %s -> %s", first.Status, second.Status)
	}
	if got := len(env.publisher.intents()); got != intentsBefore {
		t.Errorf("repeat confirm published %d extra intents", got-intentsBefore)
	}
}

func TestConfirmAfterDisputeFailsEvenIfAlreadyConfirmed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	if _, err := env.svc.Confirm(ctx, tx.ID, env.buyerID); err != nil {
		t.Fatalf("buyer confirm: %v", err)
	}
	if _, err := env.svc.OpenDispute(ctx, tx.ID, env.sellerID, "wrong breed"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}

	// the earlier confirmation must not turn into a silent success now
	_, err := env.svc.Confirm(ctx, tx.ID, env.buyerID)
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("confirm on disputed: err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := env.svc.ResolveDispute(ctx, tx.ID, uuid.New(), models.ResolutionRefundToBuyer); err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	_, err = env.svc.Confirm(ctx, tx.ID, env.buyerID)
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("confirm on refunded: err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestConfirmRejectsNonParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	_, err := env.svc.Confirm(ctx, tx.ID, uuid.New())
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}

	current, _ := env.txRepo.GetByID(ctx, tx.ID)
	if current.Status != models.TxStatusFundsHeld {
		t.Errorf("stranger mutated status to %s", current.Status)
	}
}

func TestConfirmRequiresHeldFunds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx, err := env.svc.CreateTransaction(ctx, env.buyerID, env.listing.ID, nil)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	_, err = env.svc.Confirm(ctx, tx.ID, env.buyerID)
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestDisputeFreezesTransaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	disputed, err := env.svc.OpenDispute(ctx, tx.ID, env.buyerID, "seller never showed up")
	if err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}
	if disputed.Status != models.TxStatusDisputed {
		t.Fatalf("status = %s, want disputed", disputed.Status)
	}
	if disputed.DisputeReason == nil || *disputed.DisputeReason != "seller never showed up" {
		t.Error("dispute reason not recorded")
	}

	// no confirmations once frozen
	if _, err := env.svc.Confirm(ctx, tx.ID, env.sellerID); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Errorf("confirm on disputed: err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := env.svc.OpenDispute(ctx, tx.ID, env.sellerID, "counter claim"); !errors.Is(err, models.ErrAlreadyDisputed) {
		t.Errorf("second dispute: err = %v, want ErrAlreadyDisputed", err)
	}
}

func TestDisputeNotifiesCounterpartyAndReviewQueue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)
	before := len(env.publisher.intents())

	if _, err := env.svc.OpenDispute(ctx, tx.ID, env.buyerID, "pup not as described"); err != nil {
		t.Fatalf("OpenDispute: %v", err)
	}

	intents := env.publisher.intents()[before:]
	if len(intents) != 2 {
		t.Fatalf("got %d intents, want 2", len(intents))
	}
	recipients := map[uuid.UUID]bool{}
	for _, in := range intents {
		recipients[in.RecipientID] = true
	}
	if !recipients[env.sellerID] {
		t.Error("counterparty not notified of dispute")
	}
	if !recipients[env.cfg.AdminReviewQueue] {
		t.Error("admin review queue not notified of dispute")
	}
	if recipients[env.buyerID] {
		t.Error("dispute opener notified of their own dispute")
	}
}

func TestDisputeRejectedOnTerminalStates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	if _, err := env.svc.Confirm(ctx, tx.ID, env.buyerID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Confirm(ctx, tx.ID, env.sellerID); err != nil {
		t.Fatal(err)
	}

	_, err := env.svc.OpenDispute(ctx, tx.ID, env.buyerID, "changed my mind")
	if !errors.Is(err, models.ErrCannotDisputeCompleted) {
		t.Fatalf("dispute on completed: err = %v, want ErrCannotDisputeCompleted", err)
	}
}

func TestResolveDisputeRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)
	adminID := uuid.New()

	if _, err := env.svc.OpenDispute(ctx, tx.ID, env.buyerID, "sick puppy"); err != nil {
		t.Fatal(err)
	}

	resolved, err := env.svc.ResolveDispute(ctx, tx.ID, adminID, models.ResolutionRefundToBuyer)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if resolved.Status != models.TxStatusRefunded {
		t.Fatalf("status = %s, want refunded", resolved.Status)
	}
	if resolved.FundsReleasedAt == nil {
		t.Error("funds_released_at not stamped on refund")
	}

	// refunded is terminal
	if _, err := env.svc.Confirm(ctx, tx.ID, env.buyerID); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Errorf("confirm on refunded: err = %v, want ErrInvalidStateTransition", err)
	}
	if _, err := env.svc.OpenDispute(ctx, tx.ID, env.buyerID, "again"); !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Errorf("dispute on refunded: err = %v, want ErrInvalidStateTransition", err)
	}
}

func TestResolveDisputeCancelKeepsFundsUnreleased(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	if _, err := env.svc.OpenDispute(ctx, tx.ID, env.sellerID, "buyer harassment"); err != nil {
		t.Fatal(err)
	}

	resolved, err := env.svc.ResolveDispute(ctx, tx.ID, uuid.New(), models.ResolutionCancel)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if resolved.Status != models.TxStatusCancelled {
		t.Fatalf("status = %s, want cancelled", resolved.Status)
	}
	if resolved.FundsReleasedAt != nil {
		t.Error("funds_released_at stamped on cancellation")
	}
}

func TestResolveDisputeReleaseMarksListingSold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	if _, err := env.svc.OpenDispute(ctx, tx.ID, env.buyerID, "cold feet"); err != nil {
		t.Fatal(err)
	}

	resolved, err := env.svc.ResolveDispute(ctx, tx.ID, uuid.New(), models.ResolutionReleaseToSeller)
	if err != nil {
		t.Fatalf("ResolveDispute: %v", err)
	}
	if resolved.Status != models.TxStatusCompleted {
		t.Fatalf("status = %s, want completed", resolved.Status)
	}

	listing, _ := env.listings.GetByID(ctx, env.listing.ID)
	if listing.Status != models.ListingStatusSold {
		t.Errorf("listing status = %s, want sold", listing.Status)
	}
}

func TestResolveDisputeRequiresDisputedState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	_, err := env.svc.ResolveDispute(ctx, tx.ID, uuid.New(), models.ResolutionRefundToBuyer)
	if !errors.Is(err, models.ErrInvalidStateTransition) {
		t.Fatalf("err = %v, want ErrInvalidStateTransition", err)
	}

	if _, err := env.svc.ResolveDispute(ctx, tx.ID, uuid.New(), "split_the_difference"); err == nil {
		t.Error("expected error for unknown resolution outcome")
	}
}

func TestGetTransactionAccessControl(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tx := env.createFunded(t)

	if _, err := env.svc.GetTransaction(ctx, tx.ID, env.buyerID, false); err != nil {
		t.Errorf("buyer read: %v", err)
	}
	if _, err := env.svc.GetTransaction(ctx, tx.ID, uuid.New(), false); !errors.Is(err, models.ErrUnauthorized) {
		t.Errorf("stranger read: err = %v, want ErrUnauthorized", err)
	}
	if _, err := env.svc.GetTransaction(ctx, tx.ID, uuid.New(), true); err != nil {
		t.Errorf("admin read: %v", err)
	}
}

func TestFullHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.listing.PriceCents = 100000 // $1000.00 at 10% commission

	tx, err := env.svc.CreateTransaction(ctx, env.buyerID, env.listing.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.MarkFundsHeld(ctx, tx.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Confirm(ctx, tx.ID, env.buyerID); err != nil {
		t.Fatal(err)
	}
	final, err := env.svc.Confirm(ctx, tx.ID, env.sellerID)
	if err != nil {
		t.Fatal(err)
	}

	if final.Status != models.TxStatusCompleted {
		t.Fatalf("status = %s", final.Status)
	}
	if final.CommissionCents != 10000 || final.SellerCents != 90000 {
		t.Errorf("split = %d / %d, want 10000 / 90000", final.CommissionCents, final.SellerCents)
	}

	var completed int
	for _, in := range env.publisher.intents() {
		if in.Payload.Kind() == events.KindCompleted {
			completed++
		}
	}
	if completed != 2 {
		t.Errorf("completion intents = %d, want one per party", completed)
	}
}
