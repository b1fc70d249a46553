package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mypup/backend/internal/models"
	"github.com/mypup/backend/internal/repositories"
	"go.uber.org/zap"
)

type ListingRepository interface {
	Create(ctx context.Context, l *models.Listing) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	List(ctx context.Context, f repositories.ListingFilter) ([]models.Listing, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
}

type ListingService struct {
	repo  ListingRepository
	audit AuditLogger
	log   *zap.Logger
}

func NewListingService(repo ListingRepository, audit AuditLogger, log *zap.Logger) *ListingService {
	return &ListingService{repo: repo, audit: audit, log: log}
}

type CreateListingInput struct {
	Title       string
	Breed       string
	Sex         string
	BirthDate   time.Time
	PriceCents  int64
	Currency    string
	Description *string
	City        string
}

func (s *ListingService) Create(ctx context.Context, sellerID uuid.UUID, in CreateListingInput) (*models.Listing, error) {
	if in.Title == "" || in.Breed == "" || in.City == "" {
		return nil, fmt.Errorf("title, breed and city are required")
	}
	if !models.IsValidSex(in.Sex) {
		return nil, fmt.Errorf("invalid sex %q", in.Sex)
	}
	if in.PriceCents <= 0 {
		return nil, fmt.Errorf("price must be positive")
	}
	if in.BirthDate.After(time.Now()) {
		return nil, fmt.Errorf("birth date is in the future")
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}

	l := &models.Listing{
		SellerID:    sellerID,
		Title:       in.Title,
		Breed:       in.Breed,
		Sex:         in.Sex,
		BirthDate:   in.BirthDate,
		PriceCents:  in.PriceCents,
		Currency:    in.Currency,
		Description: in.Description,
		City:        in.City,
		Status:      models.ListingStatusActive,
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}

	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &sellerID,
		ActorType:   "user",
		Action:      "listing_created",
		EntityType:  "listing",
		EntityID:    &l.ID,
	}); err != nil {
		s.log.Warn("failed to write audit entry", zap.Error(err))
	}

	return l, nil
}

func (s *ListingService) Get(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ListingService) List(ctx context.Context, f repositories.ListingFilter) ([]models.Listing, error) {
	return s.repo.List(ctx, f)
}

// Remove takes a listing off the market. Only the seller may remove it,
// and sold listings stay sold.
func (s *ListingService) Remove(ctx context.Context, id, sellerID uuid.UUID) error {
	l, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if l.SellerID != sellerID {
		return models.ErrUnauthorized
	}
	if l.Status == models.ListingStatusSold {
		return fmt.Errorf("sold listings cannot be removed")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.ListingStatusRemoved); err != nil {
		return err
	}

	if err := s.audit.Log(ctx, models.AuditLog{
		ActorUserID: &sellerID,
		ActorType:   "user",
		Action:      "listing_removed",
		EntityType:  "listing",
		EntityID:    &id,
	}); err != nil {
		s.log.Warn("failed to write audit entry", zap.Error(err))
	}
	return nil
}
