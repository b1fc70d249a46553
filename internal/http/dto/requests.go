package dto

import "time"

type RegisterRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	DisplayName string  `json:"display_name"`
	City        *string `json:"city,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateListingRequest struct {
	Title       string    `json:"title"`
	Breed       string    `json:"breed"`
	Sex         string    `json:"sex"` // male / female
	BirthDate   time.Time `json:"birth_date"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency,omitempty"`
	Description *string   `json:"description,omitempty"`
	City        string    `json:"city"`
}

type CreateTransactionRequest struct {
	ListingID       string  `json:"listing_id"`
	MeetingLocation *string `json:"meeting_location,omitempty"`
}

type OpenDisputeRequest struct {
	Reason string `json:"reason"`
}

type ResolveDisputeRequest struct {
	Outcome string `json:"outcome"` // release_to_seller / refund_to_buyer / cancel
}
