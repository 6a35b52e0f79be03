// Package webhook is the inbound side of the chat channel: the provider's
// subscription handshake, payload authentication, deduplication and the
// hand-off to the dispatcher after the delivery has been acknowledged.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/chat-ticketing/internal/dedup"
	"github.com/iliyamo/chat-ticketing/internal/inbound"
	"github.com/iliyamo/chat-ticketing/internal/metrics"
)

var (
	// ErrBadSignature is returned when the payload signature is missing or
	// does not match.
	ErrBadSignature = errors.New("webhook signature mismatch")
	// ErrVerifyRejected is returned when a subscription handshake carries
	// the wrong mode or token.
	ErrVerifyRejected = errors.New("webhook verification rejected")
)

// Apology is sent when processing a message fails unexpectedly.
const Apology = "Deu ruim aqui 😓. Tenta de novo em instantes ou manda “menu”."

// Dispatcher consumes one inbound message.  *bot.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, m inbound.Message) error
}

// Replier sends the apology text.
type Replier interface {
	Text(ctx context.Context, to, body string) error
}

// ReadMarker marks an inbound message as read on the provider.
type ReadMarker interface {
	MarkRead(ctx context.Context, messageID string) error
}

// Config holds the gateway secrets and limits.
type Config struct {
	VerifyToken    string
	AppSecret      string
	AllowUnsigned  bool
	ProcessTimeout time.Duration // bound on one message's dispatch
	ReplyTimeout   time.Duration // bound on the apology send, counted after dispatch ends
}

// Deps are the gateway collaborators.  Reader and BaseContext are optional.
type Deps struct {
	Dedup       dedup.Deduper
	Bot         Dispatcher
	Replier     Replier
	Reader      ReadMarker
	Logger      *slog.Logger
	BaseContext context.Context
}

// Gateway authenticates webhook deliveries and processes their messages
// in the background.
type Gateway struct {
	cfg    Config
	dedup  dedup.Deduper
	bot    Dispatcher
	out    Replier
	reader ReadMarker
	log    *slog.Logger
	base   context.Context
	wg     sync.WaitGroup
}

// New builds a Gateway.
func New(cfg Config, deps Deps) *Gateway {
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 60 * time.Second
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 15 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.BaseContext == nil {
		deps.BaseContext = context.Background()
	}
	if deps.Dedup == nil {
		deps.Dedup = dedup.NewMemory(dedup.DefaultTTL)
	}
	return &Gateway{
		cfg:    cfg,
		dedup:  deps.Dedup,
		bot:    deps.Bot,
		out:    deps.Replier,
		reader: deps.Reader,
		log:    deps.Logger,
		base:   deps.BaseContext,
	}
}

// VerifyChallenge answers the subscription handshake.  It returns the
// challenge to echo back, or ErrVerifyRejected.
func (g *Gateway) VerifyChallenge(mode, token, challenge string) (string, error) {
	if mode != "subscribe" || g.cfg.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.VerifyToken)) != 1 {
		return "", ErrVerifyRejected
	}
	return challenge, nil
}

// VerifySignature checks an HMAC-SHA256 signature over body.  The header
// value is the hex digest, with or without the "sha256=" prefix.
func VerifySignature(secret, body []byte, header string) error {
	if len(secret) == 0 {
		return fmt.Errorf("%w: secret is empty", ErrBadSignature)
	}
	if header == "" {
		return fmt.Errorf("%w: signature is empty", ErrBadSignature)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil {
		return fmt.Errorf("%w: invalid hex signature", ErrBadSignature)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), sig) != 1 {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the signature header value for body.  Used by tests and the
// local replay tool.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Authenticate applies the configured signature policy to a delivery.
func (g *Gateway) Authenticate(body []byte, header string) error {
	if g.cfg.AppSecret == "" && g.cfg.AllowUnsigned {
		return nil
	}
	if err := VerifySignature([]byte(g.cfg.AppSecret), body, header); err != nil {
		metrics.SignatureFailures.Inc()
		return err
	}
	return nil
}

// Receive authenticates and parses a delivery and schedules its messages
// for processing.  It returns before any message is dispatched; the only
// error it reports is ErrBadSignature.  Malformed payloads are logged and
// acknowledged since a retry would not fix them.
func (g *Gateway) Receive(body []byte, signature string) error {
	if err := g.Authenticate(body, signature); err != nil {
		g.log.Warn("webhook signature rejected", "error", err, "bytes", len(body))
		return err
	}
	batch, err := inbound.Parse(body)
	if err != nil {
		g.log.Warn("webhook payload ignored", "error", err)
		return nil
	}
	if len(batch.Messages) == 0 && len(batch.Statuses) == 0 {
		return nil
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.Process(g.base, batch)
	}()
	return nil
}

// Wait blocks until every scheduled batch has been processed.
func (g *Gateway) Wait() { g.wg.Wait() }

// Process handles a parsed batch synchronously.  Messages are handled in
// payload order.
func (g *Gateway) Process(ctx context.Context, b inbound.Batch) {
	for _, st := range b.Statuses {
		g.status(st)
	}
	for _, m := range b.Messages {
		g.handle(ctx, m)
	}
}

func (g *Gateway) status(st inbound.Status) {
	metrics.DeliveryStatuses.WithLabelValues(st.Status).Inc()
	if len(st.Errors) > 0 {
		g.log.Warn("delivery failed", "message_id", st.ID, "phone", st.RecipientID, "status", st.Status, "errors", st.Errors)
		return
	}
	g.log.Debug("delivery status", "message_id", st.ID, "phone", st.RecipientID, "status", st.Status)
}

func (g *Gateway) handle(parent context.Context, m inbound.Message) {
	ctx, cancel := context.WithTimeout(parent, g.cfg.ProcessTimeout)
	defer cancel()

	if m.ID != "" {
		fresh, err := g.dedup.MarkNew(ctx, m.ID)
		if err != nil {
			// Fail open: an unavailable dedup store must not drop messages.
			g.log.Warn("dedup unavailable, processing anyway", "message_id", m.ID, "phone", m.From, "error", err)
		} else if !fresh {
			metrics.DuplicatesDropped.Inc()
			g.log.Debug("duplicate message dropped", "message_id", m.ID, "phone", m.From)
			return
		}
	}
	metrics.InboundMessages.WithLabelValues(string(m.Kind)).Inc()

	if g.reader != nil && m.ID != "" {
		if err := g.reader.MarkRead(ctx, m.ID); err != nil {
			g.log.Debug("mark read failed", "message_id", m.ID, "error", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchFailures.WithLabelValues("panic").Inc()
			g.log.Error("dispatch panic", "message_id", m.ID, "phone", m.From, "error", r, "stack", string(debug.Stack()))
			g.apologize(parent, m)
		}
	}()
	if err := g.bot.Dispatch(ctx, m); err != nil {
		metrics.DispatchFailures.WithLabelValues("error").Inc()
		g.log.Error("dispatch failed", "message_id", m.ID, "phone", m.From, "error", err)
		g.apologize(parent, m)
	}
}

// apologize runs on its own deadline: the dispatch context may already be
// expired, which is the usual reason for the failure.
func (g *Gateway) apologize(parent context.Context, m inbound.Message) {
	if g.out == nil || m.From == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), g.cfg.ReplyTimeout)
	defer cancel()
	if err := g.out.Text(ctx, m.From, Apology); err != nil {
		g.log.Warn("apology send failed", "message_id", m.ID, "phone", m.From, "error", err)
	}
}
