package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/chat-ticketing/internal/model"
)

// SupportRepo stores support tickets in support_tickets and their
// conversation in support_messages.
type SupportRepo struct {
	db *sql.DB
}

// NewSupportRepo returns a SupportRepo on db.
func NewSupportRepo(db *sql.DB) *SupportRepo { return &SupportRepo{db: db} }

// CreateSupportTicket inserts the ticket and any initial messages in one
// transaction.
func (r *SupportRepo) CreateSupportTicket(ctx context.Context, t *model.SupportTicket) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO support_tickets (id, from_phone, category, status, created_at) VALUES (?, ?, ?, ?, ?)",
		t.ID, t.From, t.Category, string(t.Status), t.CreatedAt.UTC())
	if isDuplicateKey(err) {
		return ErrConflict
	}
	if err != nil {
		return err
	}
	for _, m := range t.Messages {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO support_messages (ticket_id, from_phone, body, sent_at) VALUES (?, ?, ?, ?)",
			t.ID, m.From, m.Body, m.At.UTC()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetSupportTicket loads a ticket with its messages in arrival order.
func (r *SupportRepo) GetSupportTicket(ctx context.Context, id string) (*model.SupportTicket, error) {
	var (
		t      model.SupportTicket
		status string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT id, from_phone, category, status, created_at FROM support_tickets WHERE id = ?", id).
		Scan(&t.ID, &t.From, &t.Category, &status, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSupportTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = model.SupportStatus(status)
	if t.Messages, err = r.messages(ctx, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *SupportRepo) messages(ctx context.Context, id string) ([]model.SupportMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT from_phone, body, sent_at FROM support_messages WHERE ticket_id = ? ORDER BY id", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.SupportMessage, 0)
	for rows.Next() {
		var m model.SupportMessage
		if err := rows.Scan(&m.From, &m.Body, &m.At); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendSupportMessage adds a message to an open ticket.  Closed tickets
// return ErrConflict.
func (r *SupportRepo) AppendSupportMessage(ctx context.Context, id string, msg model.SupportMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM support_tickets WHERE id = ? FOR UPDATE", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrSupportTicketNotFound
	}
	if err != nil {
		return err
	}
	if model.SupportStatus(status) == model.SupportClosed {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO support_messages (ticket_id, from_phone, body, sent_at) VALUES (?, ?, ?, ?)",
		id, msg.From, msg.Body, msg.At.UTC()); err != nil {
		return err
	}
	return tx.Commit()
}

// ListOpenSupportTickets returns open tickets, oldest first, with messages.
func (r *SupportRepo) ListOpenSupportTickets(ctx context.Context) ([]model.SupportTicket, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, from_phone, category, status, created_at FROM support_tickets WHERE status = ? ORDER BY created_at, id",
		string(model.SupportOpen))
	if err != nil {
		return nil, err
	}
	out := make([]model.SupportTicket, 0)
	for rows.Next() {
		var (
			t      model.SupportTicket
			status string
		)
		if err := rows.Scan(&t.ID, &t.From, &t.Category, &status, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		t.Status = model.SupportStatus(status)
		out = append(out, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Messages, err = r.messages(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CloseSupportTicket marks the ticket closed.  Closing twice is allowed.
func (r *SupportRepo) CloseSupportTicket(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE support_tickets SET status = ? WHERE id = ?", string(model.SupportClosed), id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrSupportTicketNotFound)
}

// MySQLStore combines the table repositories into a Store.
type MySQLStore struct {
	*EventRepo
	*OrderRepo
	*SupportRepo
}

// NewMySQLStore builds a Store backed by db.  The schema must exist; see
// database.Migrate.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		EventRepo:   NewEventRepo(db),
		OrderRepo:   NewOrderRepo(db),
		SupportRepo: NewSupportRepo(db),
	}
}

var (
	_ Store = (*MySQLStore)(nil)
	_ Store = (*MemoryStore)(nil)
)
