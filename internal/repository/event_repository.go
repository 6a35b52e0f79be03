package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/chat-ticketing/internal/model"
)

// EventRepo encapsulates the queries against the events table.  Dates are
// stored as UTC DATETIME values and prices as DECIMAL(10,2).
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo constructs an EventRepo with the provided DB handle.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

const eventColumns = "id, title, city, venue, starts_at, price, media_url, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.Event, error) {
	var (
		ev    model.Event
		media sql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.Title, &ev.City, &ev.Venue, &ev.Date, &ev.Price, &media, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return nil, err
	}
	ev.MediaURL = media.String
	return &ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateEvent inserts a new event.  The caller assigns the ID.
func (r *EventRepo) CreateEvent(ctx context.Context, ev *model.Event) error {
	const q = `INSERT INTO events (id, title, city, venue, starts_at, price, media_url, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, ev.ID, ev.Title, ev.City, ev.Venue, ev.Date.UTC(), ev.Price,
		nullString(ev.MediaURL), ev.CreatedAt.UTC(), ev.UpdatedAt.UTC())
	if isDuplicateKey(err) {
		return ErrConflict
	}
	return err
}

// GetEvent returns ErrEventNotFound when no row matches.
func (r *EventRepo) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	ev, err := scanEvent(r.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	return ev, err
}

// ListEvents returns every event ordered by start date.
func (r *EventRepo) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+eventColumns+" FROM events ORDER BY starts_at, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

// UpdateEvent overwrites every mutable column of an existing event.
func (r *EventRepo) UpdateEvent(ctx context.Context, ev *model.Event) error {
	const q = `UPDATE events SET title=?, city=?, venue=?, starts_at=?, price=?, media_url=?, updated_at=? WHERE id=?`
	res, err := r.db.ExecContext(ctx, q, ev.Title, ev.City, ev.Venue, ev.Date.UTC(), ev.Price,
		nullString(ev.MediaURL), ev.UpdatedAt.UTC(), ev.ID)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrEventNotFound)
}

// DeleteEvent removes the event row.  Orders keep their event id.
func (r *EventRepo) DeleteEvent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(res, ErrEventNotFound)
}

// requireAffected maps a zero-row write to notFound.  MySQL reports zero
// affected rows for an UPDATE that changes nothing, so the DSN must set
// clientFoundRows=true (see database.Open).
func requireAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
