package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is a sellable event published by an organizer.  Events are created
// through the admin chat wizard or the admin HTTP API and read by the
// purchase and listing flows.
//
// Fields:
//  ID        – opaque unique identifier.
//  Title     – display name shown in lists and on the ticket.
//  City      – city where the event happens.
//  Venue     – venue name or address.
//  Date      – start instant; always stored as an absolute time.
//  Price     – unit price in the organizer's currency.
//  MediaURL  – public URL of the banner image (optional).
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Event struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	City      string          `json:"city"`
	Venue     string          `json:"venue"`
	Date      time.Time       `json:"date"`
	Price     decimal.Decimal `json:"price"`
	MediaURL  string          `json:"media,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
