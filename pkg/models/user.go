package models

import (
	"time"
)

// UserProfile is a point-in-time copy of a user's interaction state.
type UserProfile struct {
	UserID         string             `json:"user_id"`
	Viewed         map[int64]struct{} `json:"-"`
	Purchased      map[int64]struct{} `json:"-"`
	Ratings        map[int64]int      `json:"ratings"`
	CategoryCounts map[int64]int      `json:"category_counts"`
	PurchaseCount  int                `json:"purchase_count"`
	Hydrated       bool               `json:"hydrated"`
	Version        uint64             `json:"version"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

type InteractionType string

const (
	InteractionView     InteractionType = "view"
	InteractionPurchase InteractionType = "purchase"
	InteractionRating   InteractionType = "rating"
)

// InteractionEvent is the payload carried on the user-interactions topic and
// accepted by the interaction endpoints.
type InteractionEvent struct {
	EventID    string          `json:"event_id"`
	Type       InteractionType `json:"type" validate:"required,oneof=view purchase rating"`
	UserID     string          `json:"user_id" validate:"required"`
	ProductID  int64           `json:"product_id" validate:"required,gt=0"`
	CategoryID *int64          `json:"category_id,omitempty"`
	Rating     int             `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type ViewRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
}

type PurchaseRequest struct {
	UserID     string `json:"user_id" validate:"required"`
	ProductID  int64  `json:"product_id" validate:"required,gt=0"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

type RatingRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Rating    int    `json:"rating" validate:"required,min=1,max=5"`
}
