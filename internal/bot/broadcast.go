package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/iliyamo/chat-ticketing/internal/inbound"
	"github.com/iliyamo/chat-ticketing/internal/outbound"
	"github.com/iliyamo/chat-ticketing/internal/repository"
	"github.com/iliyamo/chat-ticketing/internal/session"
)

// Broadcast modes.
const (
	BroadcastAll   = "all"
	BroadcastEvent = "event"
	BroadcastPhone = "phone"
)

func (d *Dispatcher) startBroadcast(t *turn) error {
	t.sess.Reset()
	t.sess.State = session.BroadcastChooseMode
	return d.out.Buttons(t.ctx, t.phone(), "📣 Transmissão. Para quem você quer enviar?",
		outbound.Button{ID: SelectionID(ActAdminBroadcastMode, BroadcastAll), Title: "Todos compradores"},
		outbound.Button{ID: SelectionID(ActAdminBroadcastMode, BroadcastEvent), Title: "Compradores evento"},
		outbound.Button{ID: SelectionID(ActAdminBroadcastMode, BroadcastPhone), Title: "Um número"},
	)
}

func (d *Dispatcher) onBroadcastModeText(t *turn, _ string) error {
	return d.startBroadcast(t)
}

func (d *Dispatcher) chooseBroadcastMode(t *turn, a Action) error {
	t.sess.Reset()
	t.sess.Broadcast = session.Broadcast{Mode: a.ID}
	switch a.ID {
	case BroadcastAll:
		t.sess.State = session.BroadcastWriteText
		return d.out.Text(t.ctx, t.phone(), "Escreva a mensagem para *todos os compradores*.")
	case BroadcastEvent:
		if err := d.pickEvent(t, ActAdminBroadcastEvt, "Transmissão", "Para os compradores de qual evento?", ""); err != nil {
			return err
		}
		// pickEvent resets the session; keep the chosen mode.
		t.sess.Broadcast = session.Broadcast{Mode: BroadcastEvent}
		return nil
	case BroadcastPhone:
		t.sess.State = session.BroadcastAskTarget
		return d.out.Text(t.ctx, t.phone(), "Qual o número? Com DDI e DDD, ex.: 5534999999999.")
	}
	return d.startBroadcast(t)
}

func (d *Dispatcher) chooseBroadcastEvent(t *turn, a Action) error {
	t.sess.Reset()
	ev, err := d.store.GetEvent(t.ctx, a.ID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return d.out.Text(t.ctx, t.phone(), "Esse evento não existe mais.")
	}
	if err != nil {
		return err
	}
	t.sess.State = session.BroadcastWriteText
	t.sess.Broadcast = session.Broadcast{Mode: BroadcastEvent, Target: ev.ID}
	return d.out.Text(t.ctx, t.phone(), fmt.Sprintf("Escreva a mensagem para os compradores de *%s*.", ev.Title))
}

func (d *Dispatcher) onBroadcastTarget(t *turn, text string) error {
	phone := inbound.Digits(text)
	if len(phone) < 10 || len(phone) > 15 {
		return d.out.Text(t.ctx, t.phone(), "Número inválido. Envie só dígitos com DDI e DDD, ex.: 5534999999999.")
	}
	t.sess.State = session.BroadcastWriteText
	t.sess.Broadcast = session.Broadcast{Mode: BroadcastPhone, Target: phone}
	return d.out.Text(t.ctx, t.phone(), fmt.Sprintf("Escreva a mensagem para +%s.", phone))
}

func (d *Dispatcher) onBroadcastText(t *turn, text string) error {
	if text == "" {
		return d.out.Text(t.ctx, t.phone(), "A mensagem está vazia. Escreva o texto ou “cancelar”.")
	}
	b := t.sess.Broadcast
	t.sess.Reset()

	to, err := d.recipients(t.ctx, b)
	if err != nil {
		return err
	}
	if len(to) == 0 {
		return d.out.Text(t.ctx, t.phone(), "Nenhum destinatário encontrado.")
	}
	// The fan-out is not bound by the message deadline; its own budget
	// grows with the audience at the configured rate.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(t.ctx), d.broadcastBudget(len(to)))
	defer cancel()
	sent := d.fanOut(ctx, to, text)
	d.log.Info("broadcast finished", "admin", t.phone(), "mode", b.Mode, "target", b.Target, "sent", sent, "total", len(to))
	return d.out.Text(ctx, t.phone(), fmt.Sprintf("📣 Transmissão concluída: enviado para %d de %d.", sent, len(to)))
}

// broadcastBudget is the time allowed for n sends at BroadcastRate plus
// a minute of slack for the slowest sends and the summary.
func (d *Dispatcher) broadcastBudget(n int) time.Duration {
	return time.Duration(float64(n)/d.cfg.BroadcastRate*float64(time.Second)) + time.Minute
}

// recipients resolves a broadcast to unique phones in stable order.
func (d *Dispatcher) recipients(ctx context.Context, b session.Broadcast) ([]string, error) {
	switch b.Mode {
	case BroadcastPhone:
		if b.Target == "" {
			return nil, nil
		}
		return []string{b.Target}, nil
	case BroadcastAll, BroadcastEvent:
	default:
		return nil, nil
	}
	f := repository.OrderFilter{}
	if b.Mode == BroadcastEvent {
		if b.Target == "" {
			return nil, nil
		}
		f.EventID = b.Target
	}
	orders, err := d.store.ListOrders(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list broadcast recipients: %w", err)
	}
	seen := make(map[string]bool, len(orders))
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.BuyerPhone == "" || seen[o.BuyerPhone] {
			continue
		}
		seen[o.BuyerPhone] = true
		out = append(out, o.BuyerPhone)
	}
	sort.Strings(out)
	return out, nil
}

// fanOut sends body to every phone, bounded by the configured concurrency
// and rate.  It returns how many sends succeeded.
func (d *Dispatcher) fanOut(ctx context.Context, to []string, body string) int {
	limiter := rate.NewLimiter(rate.Limit(d.cfg.BroadcastRate), 1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.BroadcastConcurrency)

	var sent atomic.Int64
	for _, phone := range to {
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			if err := d.out.Text(gctx, phone, body); err != nil {
				d.log.Warn("broadcast send failed", "phone", phone, "error", err)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(sent.Load())
}
