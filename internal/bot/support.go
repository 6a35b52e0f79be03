package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/outbound"
	"github.com/iliyamo/chat-ticketing/internal/repository"
	"github.com/iliyamo/chat-ticketing/internal/session"
)

// supportCategories are offered when a user opens a support request.
var supportCategories = []struct{ key, label string }{
	{"pagamento", "Pagamento"},
	{"ingresso", "Meu ingresso"},
	{"evento", "Dúvida sobre evento"},
	{"outro", "Outro assunto"},
}

func categoryLabel(key string) (string, bool) {
	for _, c := range supportCategories {
		if c.key == key {
			return c.label, true
		}
	}
	return "", false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (d *Dispatcher) startSupport(t *turn) error {
	t.sess.Reset()
	t.sess.State = session.SupportChooseCategory
	rows := make([]outbound.Row, 0, len(supportCategories))
	for _, c := range supportCategories {
		rows = append(rows, outbound.Row{ID: SelectionID(ActSupportCat, c.key), Title: c.label})
	}
	return d.out.List(t.ctx, t.phone(), outbound.List{
		Header:   "Suporte",
		Body:     "Sobre o que você precisa de ajuda?",
		Button:   "Assuntos",
		Sections: []outbound.Section{{Title: "Assuntos", Rows: rows}},
	})
}

func (d *Dispatcher) onCategoryText(t *turn, _ string) error {
	return d.startSupport(t)
}

// chooseCategory opens the support ticket for the chosen category.
func (d *Dispatcher) chooseCategory(t *turn, a Action) error {
	label, ok := categoryLabel(a.ID)
	if !ok {
		return d.startSupport(t)
	}
	tk := &model.SupportTicket{
		ID:        uuid.NewString(),
		From:      t.phone(),
		Category:  a.ID,
		Status:    model.SupportOpen,
		CreatedAt: d.now().UTC(),
	}
	if err := d.store.CreateSupportTicket(t.ctx, tk); err != nil {
		return fmt.Errorf("create support ticket: %w", err)
	}
	t.sess.Reset()
	t.sess.State = session.SupportCollectMessage
	t.sess.Category = a.ID
	t.sess.TicketID = tk.ID
	return d.out.Buttons(t.ctx, t.phone(),
		fmt.Sprintf("Beleza, assunto: *%s*.\nDescreva o problema em uma ou mais mensagens. Quando terminar, toque em *Finalizar*.", label),
		outbound.Button{ID: SelectionID(ActSupportEnd), Title: "Finalizar"},
	)
}

func (d *Dispatcher) onSupportText(t *turn, text string) error {
	if oneOf(keyword(text), "finalizar", "pronto", "enviar") {
		return d.finishSupport(t)
	}
	if text == "" {
		return nil
	}
	err := d.store.AppendSupportMessage(t.ctx, t.sess.TicketID, model.SupportMessage{
		From: t.phone(),
		Body: text,
		At:   d.now().UTC(),
	})
	if errors.Is(err, repository.ErrSupportTicketNotFound) || errors.Is(err, repository.ErrConflict) {
		t.sess.Reset()
		return d.out.Text(t.ctx, t.phone(), "Esse chamado já foi encerrado. Manda “suporte” para abrir outro.")
	}
	if err != nil {
		return fmt.Errorf("append support message: %w", err)
	}
	return d.out.Buttons(t.ctx, t.phone(), "Anotado ✅ Pode mandar mais detalhes ou tocar em *Finalizar*.",
		outbound.Button{ID: SelectionID(ActSupportEnd), Title: "Finalizar"},
	)
}

// finishSupport closes the collection step and notifies the admins.
func (d *Dispatcher) finishSupport(t *turn) error {
	if t.sess.State != session.SupportCollectMessage || t.sess.TicketID == "" {
		t.sess.Reset()
		return d.mainMenu(t, "Posso te ajudar com:")
	}
	tk, err := d.store.GetSupportTicket(t.ctx, t.sess.TicketID)
	if errors.Is(err, repository.ErrSupportTicketNotFound) {
		t.sess.Reset()
		return d.mainMenu(t, "Posso te ajudar com:")
	}
	if err != nil {
		return err
	}
	if len(tk.Messages) == 0 {
		return d.out.Text(t.ctx, t.phone(), "Antes de finalizar, me conta o que aconteceu. 🙂")
	}
	t.sess.Reset()

	reply := fmt.Sprintf("Seu chamado #%s foi registrado. Nossa equipe responde por aqui.", shortID(tk.ID))
	if d.cfg.SupportContact != "" {
		reply += "\nSe preferir, fale direto: " + d.cfg.SupportContact
	}
	if err := d.out.Text(t.ctx, t.phone(), reply); err != nil {
		return err
	}
	d.notifyAdmins(t, tk)
	return nil
}

func (d *Dispatcher) notifyAdmins(t *turn, tk *model.SupportTicket) {
	label, _ := categoryLabel(tk.Category)
	body := fmt.Sprintf("🆘 Novo chamado #%s (%s) de +%s:\n%s", shortID(tk.ID), label, tk.From, tk.Messages[0].Body)
	for _, admin := range d.Admins() {
		if admin == tk.From {
			continue
		}
		err := d.out.Buttons(t.ctx, admin, body,
			outbound.Button{ID: SelectionID(ActAdminSupportView, tk.ID), Title: "Ver chamado"},
		)
		if err != nil {
			d.log.Warn("support notify failed", "phone", admin, "ticket_id", tk.ID, "error", err)
		}
	}
}

// ---- admin triage ----

func (d *Dispatcher) listSupport(t *turn) error {
	t.sess.Reset()
	open, err := d.store.ListOpenSupportTickets(t.ctx)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return d.out.Text(t.ctx, t.phone(), "Nenhum chamado aberto. 🎉")
	}
	rows := make([]outbound.Row, 0, len(open))
	for _, tk := range open {
		label, _ := categoryLabel(tk.Category)
		desc := "+" + tk.From
		if len(tk.Messages) > 0 {
			desc += " • " + tk.Messages[0].Body
		}
		rows = append(rows, outbound.Row{
			ID:          SelectionID(ActAdminSupportView, tk.ID),
			Title:       "#" + shortID(tk.ID) + " " + label,
			Description: desc,
		})
	}
	return d.out.List(t.ctx, t.phone(), outbound.List{
		Header:   "Chamados abertos",
		Body:     fmt.Sprintf("%d chamado(s) aguardando.", len(open)),
		Button:   "Ver chamados",
		Sections: []outbound.Section{{Title: "Abertos", Rows: rows}},
	})
}

func (d *Dispatcher) loadTicket(t *turn, id string) (*model.SupportTicket, error) {
	tk, err := d.store.GetSupportTicket(t.ctx, id)
	if errors.Is(err, repository.ErrSupportTicketNotFound) {
		return nil, d.out.Text(t.ctx, t.phone(), "Não achei esse chamado.")
	}
	return tk, err
}

func (d *Dispatcher) viewSupport(t *turn, a Action) error {
	t.sess.Reset()
	tk, err := d.loadTicket(t, a.ID)
	if tk == nil {
		return err
	}
	label, _ := categoryLabel(tk.Category)
	var b strings.Builder
	fmt.Fprintf(&b, "Chamado #%s • %s • +%s • %s\n", shortID(tk.ID), label, tk.From, tk.Status)
	for _, m := range tk.Messages {
		who := "+" + m.From
		if m.From == "admin" {
			who = "Equipe"
		}
		fmt.Fprintf(&b, "\n[%s] %s: %s", shortDate(m.At, d.cfg.Location), who, m.Body)
	}
	if tk.Status != model.SupportOpen {
		return d.out.Text(t.ctx, t.phone(), b.String())
	}
	return d.out.Buttons(t.ctx, t.phone(), b.String(),
		outbound.Button{ID: SelectionID(ActAdminSupportReply, tk.ID), Title: "Responder"},
		outbound.Button{ID: SelectionID(ActAdminSupportClose, tk.ID), Title: "Encerrar"},
		outbound.Button{ID: SelectionID(ActAdminSupportList), Title: "Outros chamados"},
	)
}

func (d *Dispatcher) startReply(t *turn, a Action) error {
	t.sess.Reset()
	tk, err := d.loadTicket(t, a.ID)
	if tk == nil {
		return err
	}
	if tk.Status != model.SupportOpen {
		return d.out.Text(t.ctx, t.phone(), "Esse chamado já foi encerrado.")
	}
	t.sess.State = session.AdminReplyTo
	t.sess.ReplyTo = tk.ID
	return d.out.Text(t.ctx, t.phone(), fmt.Sprintf("Escreva a resposta para +%s.", tk.From))
}

// onAdminReply relays the admin's text to the ticket owner.
func (d *Dispatcher) onAdminReply(t *turn, text string) error {
	id := t.sess.ReplyTo
	if text == "" {
		return d.out.Text(t.ctx, t.phone(), "Escreva a resposta ou “cancelar”.")
	}
	t.sess.Reset()
	tk, err := d.loadTicket(t, id)
	if tk == nil {
		return err
	}
	err = d.store.AppendSupportMessage(t.ctx, id, model.SupportMessage{From: "admin", Body: text, At: d.now().UTC()})
	if errors.Is(err, repository.ErrConflict) {
		return d.out.Text(t.ctx, t.phone(), "Esse chamado já foi encerrado.")
	}
	if err != nil {
		return fmt.Errorf("append support reply: %w", err)
	}
	if err := d.out.Text(t.ctx, tk.From, fmt.Sprintf("💬 Suporte %s (chamado #%s):\n%s", d.cfg.Brand, shortID(tk.ID), text)); err != nil {
		d.log.Warn("support reply delivery failed", "phone", tk.From, "ticket_id", tk.ID, "error", err)
		return d.out.Text(t.ctx, t.phone(), "Não consegui entregar a resposta agora. Tenta de novo.")
	}
	return d.out.Buttons(t.ctx, t.phone(), "Resposta enviada ✅",
		outbound.Button{ID: SelectionID(ActAdminSupportClose, tk.ID), Title: "Encerrar"},
		outbound.Button{ID: SelectionID(ActAdminSupportList), Title: "Outros chamados"},
	)
}

func (d *Dispatcher) closeSupport(t *turn, a Action) error {
	t.sess.Reset()
	tk, err := d.loadTicket(t, a.ID)
	if tk == nil {
		return err
	}
	if tk.Status == model.SupportClosed {
		return d.out.Text(t.ctx, t.phone(), "Esse chamado já estava encerrado.")
	}
	if err := d.store.CloseSupportTicket(t.ctx, tk.ID); err != nil {
		return fmt.Errorf("close support ticket: %w", err)
	}
	if err := d.out.Text(t.ctx, tk.From, fmt.Sprintf("Seu chamado #%s foi encerrado. Se precisar, é só mandar “suporte”.", shortID(tk.ID))); err != nil {
		d.log.Warn("support close notify failed", "phone", tk.From, "ticket_id", tk.ID, "error", err)
	}
	return d.out.Text(t.ctx, t.phone(), "Chamado encerrado ✅")
}
