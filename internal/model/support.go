package model

import "time"

// SupportStatus is the lifecycle state of a support ticket.
type SupportStatus string

const (
	SupportOpen   SupportStatus = "open"   // waiting for an admin
	SupportClosed SupportStatus = "closed" // resolved; no more messages accepted
)

// SupportMessage is one entry in a support conversation.  From holds the
// sender's phone number, or "admin" for replies written by the team.
type SupportMessage struct {
	From string    `json:"from"` // phone digits or "admin"
	Body string    `json:"body"`
	At   time.Time `json:"at"`
}

// SupportTicket groups the messages a user sent about a single problem.
// Tickets are opened when the user picks a category and move from open to
// closed when an admin resolves them.
type SupportTicket struct {
	ID        string           `json:"id"`       // uuid
	From      string           `json:"from"`     // requester phone
	Category  string           `json:"category"` // option picked from the support menu
	Messages  []SupportMessage `json:"messages"` // oldest first
	Status    SupportStatus    `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
}
