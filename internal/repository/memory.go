package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/chat-ticketing/internal/model"
)

// MemoryStore keeps events, orders and support tickets in process memory.
// It is the default store and the one used in tests.  All methods are safe
// for concurrent use; returned values are copies so callers cannot mutate
// stored records behind the store's back.
type MemoryStore struct {
	mu      sync.RWMutex
	events  map[string]model.Event
	orders  map[string]model.Order
	support map[string]model.SupportTicket
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:  make(map[string]model.Event),
		orders:  make(map[string]model.Order),
		support: make(map[string]model.SupportTicket),
	}
}

// ---- Events ----

// CreateEvent stores a copy of ev.  The id must be unused.
func (s *MemoryStore) CreateEvent(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; ok {
		return ErrConflict
	}
	s.events[ev.ID] = *ev
	return nil
}

func (s *MemoryStore) GetEvent(_ context.Context, id string) (*model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &ev, nil
}

// ListEvents returns all events ordered by date, earliest first.
func (s *MemoryStore) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	out := make([]model.Event, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (s *MemoryStore) UpdateEvent(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[ev.ID]; !ok {
		return ErrEventNotFound
	}
	s.events[ev.ID] = *ev
	return nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrEventNotFound
	}
	delete(s.events, id)
	return nil
}

// ---- Orders ----

func (s *MemoryStore) CreateOrder(_ context.Context, o *model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.Code]; ok {
		return ErrDuplicateCode
	}
	s.orders[o.Code] = *o
	return nil
}

// GetOrder returns ErrNotFound for unknown codes.
func (s *MemoryStore) GetOrder(_ context.Context, code string) (*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[code]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &o, nil
}

// ListOrders returns matching orders, newest first.
func (s *MemoryStore) ListOrders(_ context.Context, f OrderFilter) ([]model.Order, error) {
	s.mu.RLock()
	out := make([]model.Order, 0)
	for _, o := range s.orders {
		if f.EventID != "" && o.EventID != f.EventID {
			continue
		}
		if f.Phone != "" && o.BuyerPhone != f.Phone {
			continue
		}
		out = append(out, o)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// MarkIssued flips Issued exactly once.  It reports whether this call
// performed the flip.
func (s *MemoryStore) MarkIssued(_ context.Context, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[code]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.Issued {
		return false, nil
	}
	o.Issued = true
	o.IssuedAt = &at
	s.orders[code] = o
	return true, nil
}

// MarkUsed moves a pending order to used.  False means the ticket was
// already scanned.
func (s *MemoryStore) MarkUsed(_ context.Context, code string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[code]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.Status == model.ValidationUsed {
		return false, nil
	}
	o.Status = model.ValidationUsed
	o.UsedAt = &at
	s.orders[code] = o
	return true, nil
}

// ---- Support tickets ----

func (s *MemoryStore) CreateSupportTicket(_ context.Context, t *model.SupportTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.support[t.ID]; ok {
		return ErrConflict
	}
	cp := *t
	cp.Messages = append([]model.SupportMessage(nil), t.Messages...)
	s.support[t.ID] = cp
	return nil
}

func (s *MemoryStore) GetSupportTicket(_ context.Context, id string) (*model.SupportTicket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.support[id]
	if !ok {
		return nil, ErrSupportTicketNotFound
	}
	t.Messages = append([]model.SupportMessage(nil), t.Messages...)
	return &t, nil
}

// AppendSupportMessage fails with ErrConflict once the ticket is closed.
func (s *MemoryStore) AppendSupportMessage(_ context.Context, id string, msg model.SupportMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.support[id]
	if !ok {
		return ErrSupportTicketNotFound
	}
	if t.Status == model.SupportClosed {
		return ErrConflict
	}
	t.Messages = append(append([]model.SupportMessage(nil), t.Messages...), msg)
	s.support[id] = t
	return nil
}

// ListOpenSupportTickets returns open tickets, oldest first.
func (s *MemoryStore) ListOpenSupportTickets(_ context.Context) ([]model.SupportTicket, error) {
	s.mu.RLock()
	out := make([]model.SupportTicket, 0)
	for _, t := range s.support {
		if t.Status != model.SupportOpen {
			continue
		}
		t.Messages = append([]model.SupportMessage(nil), t.Messages...)
		out = append(out, t)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CloseSupportTicket(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.support[id]
	if !ok {
		return ErrSupportTicketNotFound
	}
	t.Status = model.SupportClosed
	s.support[id] = t
	return nil
}
