package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/chat-ticketing/internal/dedup"
	"github.com/iliyamo/chat-ticketing/internal/inbound"
)

const testSecret = "test-app-secret"

type fakeBot struct {
	mu    sync.Mutex
	seen  []inbound.Message
	err   error
	panic bool
}

func (b *fakeBot) Dispatch(_ context.Context, m inbound.Message) error {
	b.mu.Lock()
	b.seen = append(b.seen, m)
	b.mu.Unlock()
	if b.panic {
		panic("boom")
	}
	return b.err
}

func (b *fakeBot) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen)
}

type fakeReplier struct {
	mu   sync.Mutex
	sent []string
}

func (r *fakeReplier) Text(_ context.Context, to, body string) error {
	r.mu.Lock()
	r.sent = append(r.sent, to+": "+body)
	r.mu.Unlock()
	return nil
}

type fakeReader struct {
	mu  sync.Mutex
	ids []string
}

func (r *fakeReader) MarkRead(_ context.Context, id string) error {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
	return errors.New("ignored")
}

func payload(ids ...string) []byte {
	msgs := make([]string, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, fmt.Sprintf(`{"id":%q,"from":"5534999990000","type":"text","text":{"body":"oi"}}`, id))
	}
	return []byte(`{"entry":[{"changes":[{"field":"messages","value":{"messages":[` + strings.Join(msgs, ",") + `]}}]}]}`)
}

func newGateway(cfg Config) (*Gateway, *fakeBot, *fakeReplier, *fakeReader) {
	bot := &fakeBot{}
	rep := &fakeReplier{}
	rd := &fakeReader{}
	g := New(cfg, Deps{
		Dedup:   dedup.NewMemory(time.Minute),
		Bot:     bot,
		Replier: rep,
		Reader:  rd,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return g, bot, rep, rd
}

func TestVerifyChallenge(t *testing.T) {
	g, _, _, _ := newGateway(Config{VerifyToken: "tok"})

	got, err := g.VerifyChallenge("subscribe", "tok", "12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", got)

	_, err = g.VerifyChallenge("subscribe", "wrong", "12345")
	assert.ErrorIs(t, err, ErrVerifyRejected)
	_, err = g.VerifyChallenge("unsubscribe", "tok", "12345")
	assert.ErrorIs(t, err, ErrVerifyRejected)

	empty, _, _, _ := newGateway(Config{})
	_, err = empty.VerifyChallenge("subscribe", "", "1")
	assert.ErrorIs(t, err, ErrVerifyRejected)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"entry":[]}`)
	sig := Sign([]byte(testSecret), body)

	assert.NoError(t, VerifySignature([]byte(testSecret), body, sig))
	assert.NoError(t, VerifySignature([]byte(testSecret), body, strings.TrimPrefix(sig, "sha256=")))
	assert.ErrorIs(t, VerifySignature([]byte(testSecret), []byte(`{"entry":[1]}`), sig), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature([]byte("other"), body, sig), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature([]byte(testSecret), body, ""), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature([]byte(testSecret), body, "sha256=zz"), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(nil, body, sig), ErrBadSignature)
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	g, bot, rep, _ := newGateway(Config{AppSecret: testSecret})
	err := g.Receive(payload("wamid.1"), "sha256="+strings.Repeat("ab", 32))
	assert.ErrorIs(t, err, ErrBadSignature)
	g.Wait()
	assert.Zero(t, bot.count())
	assert.Empty(t, rep.sent)
}

func TestReceiveWithoutSecret(t *testing.T) {
	body := payload("wamid.1")

	strict, bot, _, _ := newGateway(Config{})
	assert.ErrorIs(t, strict.Receive(body, ""), ErrBadSignature)
	strict.Wait()
	assert.Zero(t, bot.count())

	open, bot, _, _ := newGateway(Config{AllowUnsigned: true})
	require.NoError(t, open.Receive(body, ""))
	open.Wait()
	assert.Equal(t, 1, bot.count())
}

func TestReceiveDispatchesOncePerMessageID(t *testing.T) {
	g, bot, _, rd := newGateway(Config{AppSecret: testSecret})
	body := payload("wamid.1", "wamid.2")
	sig := Sign([]byte(testSecret), body)

	require.NoError(t, g.Receive(body, sig))
	require.NoError(t, g.Receive(body, sig))
	g.Wait()

	assert.Equal(t, 2, bot.count())
	assert.ElementsMatch(t, []string{"wamid.1", "wamid.2"}, rd.ids)
}

func TestReceiveAcknowledgesMalformedPayload(t *testing.T) {
	g, bot, _, _ := newGateway(Config{AppSecret: testSecret})
	body := []byte(`not json`)
	assert.NoError(t, g.Receive(body, Sign([]byte(testSecret), body)))
	g.Wait()
	assert.Zero(t, bot.count())
}

func TestDispatchFailureSendsApology(t *testing.T) {
	g, bot, rep, _ := newGateway(Config{AllowUnsigned: true})
	bot.err = errors.New("store down")
	g.Process(context.Background(), inbound.Batch{Messages: []inbound.Message{{ID: "wamid.1", From: "5534999990000", Kind: inbound.KindText}}})
	require.Len(t, rep.sent, 1)
	assert.Equal(t, "5534999990000: "+Apology, rep.sent[0])
}

type blockingBot struct{}

func (blockingBot) Dispatch(ctx context.Context, _ inbound.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

// ctxReplier fails like a real transport when its context is done.
type ctxReplier struct {
	fakeReplier
}

func (r *ctxReplier) Text(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.fakeReplier.Text(ctx, to, body)
}

func TestApologyAfterDispatchTimeout(t *testing.T) {
	rep := &ctxReplier{}
	g := New(Config{AllowUnsigned: true, ProcessTimeout: 50 * time.Millisecond, ReplyTimeout: time.Second}, Deps{
		Bot:     blockingBot{},
		Replier: rep,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	g.Process(context.Background(), inbound.Batch{Messages: []inbound.Message{{ID: "wamid.slow", From: "5534999990000", Kind: inbound.KindText}}})

	rep.mu.Lock()
	defer rep.mu.Unlock()
	require.Len(t, rep.sent, 1)
	assert.Equal(t, "5534999990000: "+Apology, rep.sent[0])
}

func TestDispatchPanicIsRecovered(t *testing.T) {
	g, bot, rep, _ := newGateway(Config{AllowUnsigned: true})
	bot.panic = true
	assert.NotPanics(t, func() {
		g.Process(context.Background(), inbound.Batch{Messages: []inbound.Message{
			{ID: "wamid.1", From: "5534999990000", Kind: inbound.KindText},
			{ID: "wamid.2", From: "5534999990001", Kind: inbound.KindText},
		}})
	})
	assert.Equal(t, 2, bot.count())
	assert.Len(t, rep.sent, 2)
}

func TestStatusesAreNotDispatched(t *testing.T) {
	g, bot, _, _ := newGateway(Config{AllowUnsigned: true})
	g.Process(context.Background(), inbound.Batch{Statuses: []inbound.Status{
		{ID: "wamid.out", RecipientID: "5534999990000", Status: "delivered"},
		{ID: "wamid.out2", RecipientID: "5534999990000", Status: "failed", Errors: []inbound.StatusError{{Code: 131047, Title: "Re-engagement message"}}},
	}})
	assert.Zero(t, bot.count())
}
