package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/chat-ticketing/internal/model"
)

// OrderRepo persists orders in the orders table.  The issued and used
// transitions are single conditional UPDATEs so the database arbitrates
// concurrent callers.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns an OrderRepo on db.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderColumns = "code, event_id, buyer_name, buyer_phone, quantity, created_at, issued, issued_at, status, used_at"

func scanOrder(row rowScanner) (*model.Order, error) {
	var (
		o        model.Order
		issuedAt sql.NullTime
		usedAt   sql.NullTime
		status   string
	)
	if err := row.Scan(&o.Code, &o.EventID, &o.BuyerName, &o.BuyerPhone, &o.Quantity, &o.CreatedAt,
		&o.Issued, &issuedAt, &status, &usedAt); err != nil {
		return nil, err
	}
	o.Status = model.ValidationStatus(status)
	if issuedAt.Valid {
		t := issuedAt.Time
		o.IssuedAt = &t
	}
	if usedAt.Valid {
		t := usedAt.Time
		o.UsedAt = &t
	}
	return &o, nil
}

// CreateOrder inserts the order.  A primary key collision on code is
// reported as ErrDuplicateCode so the caller can retry with a fresh code.
func (r *OrderRepo) CreateOrder(ctx context.Context, o *model.Order) error {
	const q = `INSERT INTO orders (code, event_id, buyer_name, buyer_phone, quantity, created_at, issued, status)
VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	status := o.Status
	if status == "" {
		status = model.ValidationPending
	}
	_, err := r.db.ExecContext(ctx, q, o.Code, o.EventID, o.BuyerName, o.BuyerPhone, o.Quantity, o.CreatedAt.UTC(), string(status))
	if isDuplicateKey(err) {
		return ErrDuplicateCode
	}
	return err
}

// GetOrder loads an order by code.
func (r *OrderRepo) GetOrder(ctx context.Context, code string) (*model.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM orders WHERE code = ?", code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

// ListOrders returns matching orders, newest first.
func (r *OrderRepo) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	var (
		where []string
		args  []any
	)
	if f.EventID != "" {
		where = append(where, "event_id = ?")
		args = append(args, f.EventID)
	}
	if f.Phone != "" {
		where = append(where, "buyer_phone = ?")
		args = append(args, f.Phone)
	}
	q := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, code"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// MarkIssued flips issued from false to true.  It reports false when the
// order was already issued.
func (r *OrderRepo) MarkIssued(ctx context.Context, code string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE orders SET issued = 1, issued_at = ? WHERE code = ? AND issued = 0", at.UTC(), code)
	if err != nil {
		return false, err
	}
	return r.flipped(ctx, res, code)
}

// MarkUsed moves the validation status from pending to used.
func (r *OrderRepo) MarkUsed(ctx context.Context, code string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, "UPDATE orders SET status = ?, used_at = ? WHERE code = ? AND status <> ?",
		string(model.ValidationUsed), at.UTC(), code, string(model.ValidationUsed))
	if err != nil {
		return false, err
	}
	return r.flipped(ctx, res, code)
}

// flipped distinguishes "already transitioned" from "no such order" when a
// conditional UPDATE touched no rows.
func (r *OrderRepo) flipped(ctx context.Context, res sql.Result, code string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var one int
	err = r.db.QueryRowContext(ctx, "SELECT 1 FROM orders WHERE code = ?", code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrOrderNotFound
	}
	return false, err
}

// isDuplicateKey reports a MySQL ER_DUP_ENTRY error.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}
