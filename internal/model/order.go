package model

import "time"

// ValidationStatus is the scan state of an order's ticket.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending" // not yet scanned at the door
	ValidationUsed    ValidationStatus = "used"    // scanned once; later scans are rejected
)

// Order records a buyer's purchase intent for an event.  Code is the only
// external handle and doubles as a capability token: whoever holds it can
// download and present the ticket.
//
// Fields:
//  Code       – unguessable unique identifier.
//  EventID    – event being purchased.
//  BuyerName  – name printed on the ticket.
//  BuyerPhone – chat number that receives the ticket (digits only).
//  Quantity   – number of admissions, at least 1.
//  CreatedAt  – creation timestamp.
//  Issued     – flips once from false to true on first fulfillment.
//  IssuedAt   – when the ticket was first sent.
//  Status     – validation state (pending, used).
//  UsedAt     – when the ticket was first scanned.
type Order struct {
	Code       string           `json:"code"`
	EventID    string           `json:"event_id"`
	BuyerName  string           `json:"buyer_name"`
	BuyerPhone string           `json:"buyer_phone"`
	Quantity   int              `json:"quantity"`
	CreatedAt  time.Time        `json:"created_at"`
	Issued     bool             `json:"issued"`
	IssuedAt   *time.Time       `json:"issued_at,omitempty"`
	Status     ValidationStatus `json:"status"`
	UsedAt     *time.Time       `json:"used_at,omitempty"`
}
