package bot

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/chat-ticketing/internal/input"
	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/outbound"
	"github.com/iliyamo/chat-ticketing/internal/repository"
	"github.com/iliyamo/chat-ticketing/internal/session"
)

const maxNameLen = 80

func (d *Dispatcher) eventSubtitle(ev *model.Event) string {
	parts := make([]string, 0, 2)
	if ev.City != "" {
		parts = append(parts, ev.City)
	}
	if s := shortDate(ev.Date, d.cfg.Location); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " • ")
}

func (d *Dispatcher) eventRows(events []model.Event, kind ActionKind, titlePrefix string) []outbound.Row {
	rows := make([]outbound.Row, 0, len(events))
	for i := range events {
		ev := &events[i]
		rows = append(rows, outbound.Row{
			ID:          SelectionID(kind, ev.ID),
			Title:       titlePrefix + ev.Title,
			Description: d.eventSubtitle(ev),
		})
	}
	return rows
}

func (d *Dispatcher) showEvents(t *turn) error {
	events, err := d.store.ListEvents(t.ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return d.out.Text(t.ctx, t.phone(), "Ainda não publicamos eventos. ✨")
	}
	return d.out.List(t.ctx, t.phone(), outbound.List{
		Header:   "Vitrine",
		Body:     "Escolha um evento:",
		Button:   "Ver opções",
		Sections: []outbound.Section{{Title: "Eventos", Rows: d.eventRows(events, ActViewEvent, "")}},
	})
}

// viewEvent starts the purchase flow for the chosen event.
func (d *Dispatcher) viewEvent(t *turn, a Action) error {
	ev, err := d.store.GetEvent(t.ctx, a.ID)
	if errors.Is(err, repository.ErrEventNotFound) {
		t.sess.Reset()
		return d.out.Text(t.ctx, t.phone(), "Não encontrei o evento. Manda “Ver eventos”.")
	}
	if err != nil {
		return err
	}
	t.sess.Reset()
	t.sess.State = session.AwaitingName
	t.sess.PendingEventID = ev.ID

	if ev.MediaURL != "" {
		if err := d.out.Image(t.ctx, t.phone(), ev.MediaURL, ev.Title); err != nil {
			d.log.Warn("event banner send failed", "phone", t.phone(), "event_id", ev.ID, "error", err)
		}
	}
	details := fmt.Sprintf("*%s*\n%s", ev.Title, d.eventSubtitle(ev))
	if ev.Venue != "" {
		details += "\n📍 " + ev.Venue
	}
	if !ev.Price.IsZero() {
		details += "\n💳 " + input.FormatPrice(ev.Price)
	}

	if name := strings.TrimSpace(t.msg.ProfileName); name != "" {
		t.sess.CandidateName = name
		return d.out.Buttons(t.ctx, t.phone(),
			fmt.Sprintf("Comprar %s?\n\nPosso usar este nome no ingresso:\n• %s", details, name),
			outbound.Button{ID: SelectionID(ActNameYes), Title: "Sim"},
			outbound.Button{ID: SelectionID(ActNameNo), Title: "Outro nome"},
		)
	}
	return d.out.Text(t.ctx, t.phone(), fmt.Sprintf("%s\n\nComo devo escrever *seu nome* no ingresso?", details))
}

func (d *Dispatcher) confirmName(t *turn, _ Action) error {
	if t.sess.PendingEventID == "" || t.sess.CandidateName == "" {
		t.sess.Reset()
		return d.out.Text(t.ctx, t.phone(), "Vamos lá! Manda “Ver eventos”.")
	}
	return d.finalizePurchase(t, t.sess.PendingEventID, t.sess.CandidateName)
}

func (d *Dispatcher) rejectName(t *turn, _ Action) error {
	if t.sess.PendingEventID == "" {
		t.sess.Reset()
		return d.out.Text(t.ctx, t.phone(), "Vamos lá! Manda “Ver eventos”.")
	}
	t.sess.State = session.AwaitingName
	t.sess.CandidateName = ""
	return d.out.Text(t.ctx, t.phone(), "Sem problema! Qual nome devo colocar no ingresso?")
}

// onName takes the buyer name typed in awaiting_name.
func (d *Dispatcher) onName(t *turn, text string) error {
	if t.sess.PendingEventID == "" {
		t.sess.Reset()
		return d.mainMenu(t, "Posso te ajudar com:")
	}
	if text == "" || utf8.RuneCountInString(text) > maxNameLen {
		return d.out.Text(t.ctx, t.phone(), "Me manda só o nome que vai no ingresso, por favor.")
	}
	return d.finalizePurchase(t, t.sess.PendingEventID, text)
}

// finalizePurchase creates the order and delivers the ticket.  The session
// returns to idle whatever happens; a failed delivery can be retried from
// "Meus ingressos" because the order code is kept.
func (d *Dispatcher) finalizePurchase(t *turn, eventID, name string) error {
	t.sess.Reset()
	o, err := d.tickets.CreateOrder(t.ctx, eventID, 1, name, t.phone())
	if errors.Is(err, repository.ErrEventNotFound) {
		return d.out.Text(t.ctx, t.phone(), "Esse evento não está mais disponível. Manda “Ver eventos”.")
	}
	if err != nil {
		d.log.Error("create order failed", "phone", t.phone(), "message_id", t.msg.ID, "error", err)
		return d.out.Text(t.ctx, t.phone(), "Não consegui emitir agora 😓. Tenta de novo em instantes.")
	}
	t.sess.LastOrderCode = o.Code

	if _, err := d.tickets.Issue(t.ctx, o.Code); err != nil {
		d.log.Error("issue ticket failed", "phone", t.phone(), "message_id", t.msg.ID, "code", o.Code, "error", err)
		return d.out.Text(t.ctx, t.phone(), "Sua compra foi registrada, mas não consegui enviar o ingresso agora 😓. Tenta em “Meus ingressos” daqui a pouco.")
	}
	if err := d.out.Text(t.ctx, t.phone(), fmt.Sprintf("✅ Compra confirmada!\nNome: %s\nTe mandei o PDF aqui (se não aparecer, posso reenviar em “Meus ingressos”).", name)); err != nil {
		return err
	}
	return d.out.Buttons(t.ctx, t.phone(), "Quer mais alguma coisa?",
		outbound.Button{ID: SelectionID(ActEvents), Title: "Ver eventos"},
		outbound.Button{ID: SelectionID(ActMyTickets), Title: "Meus ingressos"},
	)
}

func (d *Dispatcher) myTickets(t *turn) error {
	orders, err := d.store.ListOrders(t.ctx, repository.OrderFilter{Phone: t.phone()})
	if err != nil {
		return err
	}
	switch len(orders) {
	case 0:
		return d.out.Text(t.ctx, t.phone(), "Ainda não vi compras por este número. Manda “Ver eventos” para começar. 😉")
	case 1:
		return d.resend(t, orders[0].Code)
	}
	rows := make([]outbound.Row, 0, len(orders))
	for _, o := range orders {
		title := o.EventID
		desc := o.BuyerName
		if ev, err := d.store.GetEvent(t.ctx, o.EventID); err == nil {
			title = ev.Title
			desc = shortDate(ev.Date, d.cfg.Location) + " • " + o.BuyerName
		}
		rows = append(rows, outbound.Row{ID: SelectionID(ActResend, o.Code), Title: title, Description: desc})
	}
	return d.out.List(t.ctx, t.phone(), outbound.List{
		Header:   "Meus ingressos",
		Body:     "Qual ingresso você quer receber de novo?",
		Button:   "Ver ingressos",
		Sections: []outbound.Section{{Title: "Ingressos", Rows: rows}},
	})
}

func (d *Dispatcher) resendTicket(t *turn, a Action) error {
	t.sess.Reset()
	return d.resend(t, a.ID)
}

func (d *Dispatcher) resend(t *turn, code string) error {
	o, err := d.store.GetOrder(t.ctx, code)
	if errors.Is(err, repository.ErrOrderNotFound) || (err == nil && o.BuyerPhone != t.phone()) {
		return d.out.Text(t.ctx, t.phone(), "Não encontrei esse ingresso.")
	}
	if err != nil {
		return err
	}
	if _, err := d.tickets.Resend(t.ctx, code); err != nil {
		d.log.Warn("resend failed", "phone", t.phone(), "code", code, "error", err)
		return d.out.Text(t.ctx, t.phone(), "Tentei reenviar mas falhou agora. Tenta novamente.")
	}
	t.sess.LastOrderCode = code
	return d.out.Text(t.ctx, t.phone(), "Reenviei seu ingresso aqui no chat. 📩")
}
