package repository

import (
	"context"
	"time"

	"github.com/iliyamo/chat-ticketing/internal/model"
)

// EventStore persists events.
type EventStore interface {
	CreateEvent(ctx context.Context, ev *model.Event) error
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	UpdateEvent(ctx context.Context, ev *model.Event) error
	DeleteEvent(ctx context.Context, id string) error
}

// OrderFilter narrows ListOrders.  Empty fields match everything.
type OrderFilter struct {
	EventID string
	Phone   string
}

// OrderStore persists orders.  MarkIssued and MarkUsed are compare-and-set
// operations: they report true only for the call that performed the
// transition, so callers can rely on them to detect a concurrent winner.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *model.Order) error
	GetOrder(ctx context.Context, code string) (*model.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error)
	MarkIssued(ctx context.Context, code string, at time.Time) (bool, error)
	MarkUsed(ctx context.Context, code string, at time.Time) (bool, error)
}

// SupportStore persists support tickets.
type SupportStore interface {
	CreateSupportTicket(ctx context.Context, t *model.SupportTicket) error
	GetSupportTicket(ctx context.Context, id string) (*model.SupportTicket, error)
	AppendSupportMessage(ctx context.Context, id string, msg model.SupportMessage) error
	ListOpenSupportTickets(ctx context.Context) ([]model.SupportTicket, error)
	CloseSupportTicket(ctx context.Context, id string) error
}

// Store is the full Message Store used by the service.
type Store interface {
	EventStore
	OrderStore
	SupportStore
}
