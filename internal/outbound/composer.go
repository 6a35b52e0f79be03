package outbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/chat-ticketing/internal/metrics"
)

// ErrTransport wraps every failure to hand a message to the provider.
var ErrTransport = errors.New("outbound transport failure")

// Sender delivers a normalized message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Composer is the entry point the rest of the service uses to talk to a
// user.  It normalizes each message, bounds the send with a timeout and
// records the outcome.
type Composer struct {
	sender  Sender
	timeout time.Duration
	log     *slog.Logger
}

// NewComposer wraps sender.  A zero timeout defaults to 15s.
func NewComposer(sender Sender, timeout time.Duration, log *slog.Logger) *Composer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Composer{sender: sender, timeout: timeout, log: log}
}

// Send normalizes and delivers m.
func (c *Composer) Send(ctx context.Context, m Message) error {
	m = Normalize(m)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.sender.Send(ctx, m); err != nil {
		metrics.OutboundSends.WithLabelValues(string(m.Kind), "error").Inc()
		c.log.Warn("outbound send failed", "phone", m.To, "kind", m.Kind, "error", err)
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return err
	}
	metrics.OutboundSends.WithLabelValues(string(m.Kind), "ok").Inc()
	return nil
}

// Text sends a plain text body.
func (c *Composer) Text(ctx context.Context, to, body string) error {
	return c.Send(ctx, Message{To: to, Kind: KindText, Body: body})
}

// Buttons sends body with up to three reply buttons.  Extra options are
// dropped by Normalize.
func (c *Composer) Buttons(ctx context.Context, to, body string, options ...Button) error {
	return c.Send(ctx, Message{To: to, Kind: KindButtons, Body: body, Buttons: options})
}

// List sends a single-select list.  Sections and rows are clipped to the
// provider limits.
func (c *Composer) List(ctx context.Context, to string, l List) error {
	return c.Send(ctx, Message{To: to, Kind: KindList, List: l})
}

// Document sends the file at link as an attachment named filename.
func (c *Composer) Document(ctx context.Context, to, link, filename, caption string) error {
	return c.Send(ctx, Message{To: to, Kind: KindDocument, Attachment: Attachment{Link: link, Filename: filename, Caption: caption}})
}

// Image sends the picture at link with an optional caption.
func (c *Composer) Image(ctx context.Context, to, link, caption string) error {
	return c.Send(ctx, Message{To: to, Kind: KindImage, Attachment: Attachment{Link: link, Caption: caption}})
}
