// Package ticket creates orders, delivers their tickets exactly once and
// validates ticket codes at the door.
package ticket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/chat-ticketing/internal/keylock"
	"github.com/iliyamo/chat-ticketing/internal/metrics"
	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/queue"
	"github.com/iliyamo/chat-ticketing/internal/repository"
)

var (
	// ErrInvalidQuantity is returned when an order asks for less than one
	// admission.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrInvalidBuyer is returned when the buyer name is empty.
	ErrInvalidBuyer = errors.New("buyer name is required")
)

// Validation status strings reported by Validate and the /validate route.
const (
	StatusValid   = "valid"
	StatusUsed    = "used"
	StatusInvalid = "invalid"
)

const maxCodeAttempts = 5

// DocumentSender delivers the ticket link to the buyer.
type DocumentSender interface {
	Document(ctx context.Context, to, link, filename, caption string) error
}

// Publisher announces issued tickets.  Optional.
type Publisher interface {
	PublishTicketIssued(ctx context.Context, ev queue.TicketIssuedEvent) error
}

// Store is the subset of the repository the engine needs.
type Store interface {
	repository.EventStore
	repository.OrderStore
}

// Options configures an Engine.  Zero values fall back to sensible defaults.
type Options struct {
	BaseURL   string
	Brand     string
	Location  *time.Location
	Publisher Publisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine is the ticket issuance and validation service.
type Engine struct {
	store Store
	docs  DocumentSender
	pub   Publisher
	locks *keylock.Locker
	opts  RenderOptions
	log   *slog.Logger
	now   func() time.Time
}

// NewEngine wires an Engine.
func NewEngine(store Store, docs DocumentSender, o Options) *Engine {
	if o.Location == nil {
		o.Location = time.FixedZone("-03:00", -3*60*60)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Engine{
		store: store,
		docs:  docs,
		pub:   o.Publisher,
		locks: keylock.New(),
		opts:  RenderOptions{BaseURL: strings.TrimRight(o.BaseURL, "/"), Brand: o.Brand, Location: o.Location},
		log:   o.Logger,
		now:   o.Now,
	}
}

// IssueResult is returned by Issue and Resend.
type IssueResult struct {
	Code          string `json:"code"`
	PDFURL        string `json:"pdfUrl"`
	AlreadyIssued bool   `json:"alreadyIssued"`
}

// ValidationResult is returned by Validate.
type ValidationResult struct {
	Valid     bool         `json:"valid"`
	FirstScan bool         `json:"firstScan"`
	Status    string       `json:"status"`
	Order     *model.Order `json:"-"`
}

// CreateOrder records a purchase intent for eventID.  The code is a random
// UUID; on the unlikely collision a new one is drawn.
func (e *Engine) CreateOrder(ctx context.Context, eventID string, qty int, buyerName, buyerPhone string) (*model.Order, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}
	buyerName = strings.TrimSpace(buyerName)
	if buyerName == "" {
		return nil, ErrInvalidBuyer
	}
	if _, err := e.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		o := &model.Order{
			Code:       uuid.NewString(),
			EventID:    eventID,
			BuyerName:  buyerName,
			BuyerPhone: buyerPhone,
			Quantity:   qty,
			CreatedAt:  e.now().UTC(),
			Status:     model.ValidationPending,
		}
		err := e.store.CreateOrder(ctx, o)
		if errors.Is(err, repository.ErrDuplicateCode) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		return o, nil
	}
	return nil, fmt.Errorf("create order: %w", repository.ErrDuplicateCode)
}

// Issue delivers the ticket for code once.  Concurrent and repeated calls
// for the same code are serialized; only the first one sends the document
// and flips the issued flag, the others report AlreadyIssued.  A failed
// send leaves the order unissued so the caller can retry.
func (e *Engine) Issue(ctx context.Context, code string) (IssueResult, error) {
	unlock := e.locks.Lock(code)
	defer unlock()

	o, err := e.store.GetOrder(ctx, code)
	if err != nil {
		return IssueResult{}, err
	}
	res := IssueResult{Code: code, PDFURL: PDFURL(e.opts.BaseURL, code)}
	if o.Issued {
		res.AlreadyIssued = true
		return res, nil
	}
	ev, err := e.store.GetEvent(ctx, o.EventID)
	if err != nil {
		return IssueResult{}, err
	}
	if _, err := RenderTicketPDF(ev, o, e.opts); err != nil {
		return IssueResult{}, err
	}
	if err := e.deliver(ctx, ev, o); err != nil {
		return IssueResult{}, err
	}

	at := e.now().UTC()
	flipped, err := e.store.MarkIssued(ctx, code, at)
	if err != nil {
		return IssueResult{}, fmt.Errorf("mark issued: %w", err)
	}
	if !flipped {
		res.AlreadyIssued = true
		return res, nil
	}
	metrics.TicketsIssued.Inc()
	e.log.Info("ticket issued", "code", code, "event_id", ev.ID, "phone", o.BuyerPhone)
	e.publish(ctx, ev, o, res.PDFURL, at)
	return res, nil
}

// Resend delivers the document of an already issued order again.  Orders
// never issued go through Issue instead.
func (e *Engine) Resend(ctx context.Context, code string) (IssueResult, error) {
	o, err := e.store.GetOrder(ctx, code)
	if err != nil {
		return IssueResult{}, err
	}
	if !o.Issued {
		return e.Issue(ctx, code)
	}
	ev, err := e.store.GetEvent(ctx, o.EventID)
	if err != nil {
		return IssueResult{}, err
	}
	if err := e.deliver(ctx, ev, o); err != nil {
		return IssueResult{}, err
	}
	return IssueResult{Code: code, PDFURL: PDFURL(e.opts.BaseURL, code), AlreadyIssued: true}, nil
}

func (e *Engine) deliver(ctx context.Context, ev *model.Event, o *model.Order) error {
	if o.BuyerPhone == "" || e.docs == nil {
		return nil
	}
	caption := fmt.Sprintf("Seu ingresso para %s", ev.Title)
	if err := e.docs.Document(ctx, o.BuyerPhone, PDFURL(e.opts.BaseURL, o.Code), Filename(ev.Title, o.Code), caption); err != nil {
		return fmt.Errorf("send ticket %s: %w", o.Code, err)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, ev *model.Event, o *model.Order, pdfURL string, at time.Time) {
	if e.pub == nil {
		return
	}
	msg := queue.TicketIssuedEvent{
		Code:       o.Code,
		EventID:    ev.ID,
		EventTitle: ev.Title,
		StartsAt:   ev.Date.UTC().Format(time.RFC3339),
		BuyerName:  o.BuyerName,
		BuyerPhone: o.BuyerPhone,
		Quantity:   o.Quantity,
		PDFURL:     pdfURL,
		IssuedAt:   at.Format(time.RFC3339),
	}
	if err := e.pub.PublishTicketIssued(ctx, msg); err != nil {
		e.log.Warn("publish ticket.issued failed", "code", o.Code, "error", err)
	}
}

// Order looks up an order by code.
func (e *Engine) Order(ctx context.Context, code string) (*model.Order, error) {
	return e.store.GetOrder(ctx, code)
}

// PDF renders the ticket for code and returns it with its filename.
func (e *Engine) PDF(ctx context.Context, code string) ([]byte, string, error) {
	o, err := e.store.GetOrder(ctx, code)
	if err != nil {
		return nil, "", err
	}
	ev, err := e.store.GetEvent(ctx, o.EventID)
	if err != nil {
		return nil, "", err
	}
	data, err := RenderTicketPDF(ev, o, e.opts)
	if err != nil {
		return nil, "", err
	}
	return data, Filename(ev.Title, o.Code), nil
}

// Validate consumes a ticket code.  The first scan reports valid and
// firstScan; every later scan reports used.
func (e *Engine) Validate(ctx context.Context, code string) (ValidationResult, error) {
	o, err := e.store.GetOrder(ctx, code)
	if err != nil {
		metrics.Validations.WithLabelValues(StatusInvalid).Inc()
		return ValidationResult{Status: StatusInvalid}, err
	}
	first, err := e.store.MarkUsed(ctx, code, e.now().UTC())
	if err != nil {
		return ValidationResult{}, fmt.Errorf("mark used: %w", err)
	}
	if !first {
		metrics.Validations.WithLabelValues(StatusUsed).Inc()
		return ValidationResult{Status: StatusUsed, Order: o}, nil
	}
	metrics.Validations.WithLabelValues(StatusValid).Inc()
	return ValidationResult{Valid: true, FirstScan: true, Status: StatusValid, Order: o}, nil
}

// PDFURL returns the public ticket link for code.
func (e *Engine) PDFURL(code string) string { return PDFURL(e.opts.BaseURL, code) }

// Location is the zone used to present dates.
func (e *Engine) Location() *time.Location { return e.opts.Location }
