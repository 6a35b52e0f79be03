package ticket

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/queue"
	"github.com/iliyamo/chat-ticketing/internal/repository"
)

type sentDoc struct {
	to, link, filename, caption string
}

type fakeDocs struct {
	mu   sync.Mutex
	sent []sentDoc
	err  error
}

func (f *fakeDocs) Document(_ context.Context, to, link, filename, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	time.Sleep(2 * time.Millisecond)
	f.sent = append(f.sent, sentDoc{to, link, filename, caption})
	return nil
}

func (f *fakeDocs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.TicketIssuedEvent
}

func (p *fakePublisher) PublishTicketIssued(_ context.Context, ev queue.TicketIssuedEvent) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *repository.MemoryStore, *fakeDocs, *fakePublisher) {
	t.Helper()
	store := repository.NewMemoryStore()
	require.NoError(t, store.CreateEvent(context.Background(), &model.Event{
		ID:    "ev1",
		Title: "Sunset",
		City:  "Uberaba",
		Venue: "Terraço 21",
		Date:  time.Date(2025, 9, 21, 2, 0, 0, 0, time.UTC),
		Price: decimal.NewFromInt(60),
	}))
	docs := &fakeDocs{}
	pub := &fakePublisher{}
	e := NewEngine(store, docs, Options{BaseURL: "https://tickets.example.com/", Brand: "IngressAI", Publisher: pub})
	return e, store, docs, pub
}

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t)

	_, err := e.CreateOrder(ctx, "missing", 1, "Maria", "551")
	assert.ErrorIs(t, err, repository.ErrEventNotFound)
	_, err = e.CreateOrder(ctx, "ev1", 0, "Maria", "551")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = e.CreateOrder(ctx, "ev1", 1, "   ", "551")
	assert.ErrorIs(t, err, ErrInvalidBuyer)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		o, err := e.CreateOrder(ctx, "ev1", 1, "Maria Silva", "551")
		require.NoError(t, err)
		assert.False(t, seen[o.Code], "duplicate code %s", o.Code)
		seen[o.Code] = true
		assert.False(t, o.Issued)
		assert.Equal(t, model.ValidationPending, o.Status)
	}
}

func TestIssueIsIdempotentUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	e, store, docs, pub := newTestEngine(t)
	o, err := e.CreateOrder(ctx, "ev1", 2, "Maria Silva", "5534999990000")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]IssueResult, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := e.Issue(ctx, o.Code)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, docs.count())
	assert.Len(t, pub.events, 1)
	fresh := 0
	for _, r := range results {
		assert.Equal(t, "https://tickets.example.com/tickets/pdf?code="+o.Code, r.PDFURL)
		if !r.AlreadyIssued {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)

	got, err := store.GetOrder(ctx, o.Code)
	require.NoError(t, err)
	assert.True(t, got.Issued)
	assert.Equal(t, "Sunset_"+o.Code+".pdf", docs.sent[0].filename)
}

func TestIssueFailedSendCanRetry(t *testing.T) {
	ctx := context.Background()
	e, store, docs, _ := newTestEngine(t)
	o, err := e.CreateOrder(ctx, "ev1", 1, "Maria", "551")
	require.NoError(t, err)

	docs.err = errors.New("timeout")
	_, err = e.Issue(ctx, o.Code)
	assert.Error(t, err)
	got, _ := store.GetOrder(ctx, o.Code)
	assert.False(t, got.Issued)

	docs.err = nil
	r, err := e.Issue(ctx, o.Code)
	require.NoError(t, err)
	assert.False(t, r.AlreadyIssued)
	assert.Equal(t, 1, docs.count())
}

func TestIssueUnknownOrder(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	_, err := e.Issue(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestResend(t *testing.T) {
	ctx := context.Background()
	e, _, docs, pub := newTestEngine(t)
	o, _ := e.CreateOrder(ctx, "ev1", 1, "Maria", "551")

	_, err := e.Resend(ctx, o.Code)
	require.NoError(t, err)
	r, err := e.Resend(ctx, o.Code)
	require.NoError(t, err)
	assert.True(t, r.AlreadyIssued)
	assert.Equal(t, 2, docs.count())
	assert.Len(t, pub.events, 1)
}

func TestValidateSingleUse(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t)
	o, _ := e.CreateOrder(ctx, "ev1", 1, "Maria", "551")

	first, err := e.Validate(ctx, o.Code)
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.True(t, first.FirstScan)
	assert.Equal(t, StatusValid, first.Status)

	second, err := e.Validate(ctx, o.Code)
	require.NoError(t, err)
	assert.False(t, second.Valid)
	assert.False(t, second.FirstScan)
	assert.Equal(t, StatusUsed, second.Status)

	r, err := e.Validate(ctx, "unknown")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
	assert.Equal(t, StatusInvalid, r.Status)
}

func TestRenderIsDeterministic(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine(t)
	o, _ := e.CreateOrder(ctx, "ev1", 1, "Maria Silva", "551")

	a, name, err := e.PDF(ctx, o.Code)
	require.NoError(t, err)
	b, _, err := e.PDF(ctx, o.Code)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(a, []byte("%PDF-")))
	assert.Equal(t, a, b)
	assert.Equal(t, "Sunset_"+o.Code+".pdf", name)
}

func TestFormatDate(t *testing.T) {
	loc := time.FixedZone("-03:00", -3*60*60)
	d := time.Date(2025, 9, 21, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, "20 de setembro de 2025 às 23:00", FormatDate(d, loc))
	assert.Equal(t, "", FormatDate(time.Time{}, loc))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "Sunset_no_Terraço", SanitizeFilename("Sunset no Terraço!"))
	assert.Equal(t, "ingresso", SanitizeFilename("  /// "))
	assert.Equal(t, "a_b", SanitizeFilename("a / b"))
}

func TestURLs(t *testing.T) {
	assert.Equal(t, "https://x/validate?c=abc", ValidationURL("https://x/", "abc"))
	assert.Equal(t, "https://x/tickets/pdf?code=abc", PDFURL("https://x", "abc"))
}
