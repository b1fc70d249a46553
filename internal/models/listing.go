package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing statuses
const (
	ListingStatusActive  = "active"
	ListingStatusSold    = "sold"
	ListingStatusRemoved = "removed"
)

// Puppy sex values
const (
	SexMale   = "male"
	SexFemale = "female"
)

type Listing struct {
	ID          uuid.UUID  `json:"id"`
	SellerID    uuid.UUID  `json:"seller_id"`
	Title       string     `json:"title"`
	Breed       string     `json:"breed"`
	Sex         string     `json:"sex"`
	BirthDate   time.Time  `json:"birth_date"`
	PriceCents  int64      `json:"price_cents"`
	Currency    string     `json:"currency"`
	Description *string    `json:"description,omitempty"`
	City        string     `json:"city"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func IsValidSex(s string) bool {
	return s == SexMale || s == SexFemale
}
