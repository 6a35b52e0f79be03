package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iliyamo/chat-ticketing/internal/input"
	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/outbound"
	"github.com/iliyamo/chat-ticketing/internal/repository"
	"github.com/iliyamo/chat-ticketing/internal/session"
)

// editableFields lists the event fields the edit flow accepts, in menu order.
var editableFields = []struct{ key, label string }{
	{"title", "Título"},
	{"city", "Cidade"},
	{"venue", "Local"},
	{"date", "Data e hora"},
	{"price", "Preço"},
	{"media", "Banner"},
}

var fieldPrompts = map[string]string{
	"title": "Qual *título*?",
	"city":  "Qual *cidade*?",
	"venue": "Qual o *local* (casa ou endereço)?",
	"date":  "Data e hora? Formato `dd/mm/aaaa hh:mm` ou ISO.",
	"price": "Qual o *preço* do ingresso? Ex.: `60` ou `60,00`.",
	"media": "Envie a *imagem* do banner ou escreva “pular”.",
}

var skipWords = []string{"pular", "skip", "sem imagem", "sem banner"}

func (d *Dispatcher) adminPanel(t *turn) error {
	t.sess.Reset()
	if err := d.out.Buttons(t.ctx, t.phone(), "Painel Admin",
		outbound.Button{ID: SelectionID(ActAdminCreate), Title: "Criar evento"},
		outbound.Button{ID: SelectionID(ActAdminListEdit), Title: "Editar evento"},
		outbound.Button{ID: SelectionID(ActAdminListDelete), Title: "Excluir evento"},
	); err != nil {
		return err
	}
	return d.out.Buttons(t.ctx, t.phone(), "Mais opções",
		outbound.Button{ID: SelectionID(ActAdminListMedia), Title: "Definir mídia"},
		outbound.Button{ID: SelectionID(ActAdminSupportList), Title: "Chamados"},
		outbound.Button{ID: SelectionID(ActAdminBroadcast), Title: "Transmissão"},
	)
}

// pickEvent sends the event list whose rows lead to kind.
func (d *Dispatcher) pickEvent(t *turn, kind ActionKind, header, body, titlePrefix string) error {
	t.sess.Reset()
	events, err := d.store.ListEvents(t.ctx)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return d.out.Text(t.ctx, t.phone(), "Nenhum evento cadastrado ainda.")
	}
	return d.out.List(t.ctx, t.phone(), outbound.List{
		Header:   header,
		Body:     body,
		Button:   "Ver eventos",
		Sections: []outbound.Section{{Title: "Eventos", Rows: d.eventRows(events, kind, titlePrefix)}},
	})
}

func (d *Dispatcher) eventSummary(ev *model.Event) string {
	lines := []string{"• " + ev.Title}
	if sub := d.eventSubtitle(ev); sub != "" {
		lines = append(lines, "• "+sub)
	}
	if ev.Venue != "" {
		lines = append(lines, "• "+ev.Venue)
	}
	lines = append(lines, "• "+input.FormatPrice(ev.Price))
	if ev.MediaURL != "" {
		lines = append(lines, "• banner: "+ev.MediaURL)
	}
	lines = append(lines, "ID: "+ev.ID)
	return strings.Join(lines, "\n")
}

// ---- create wizard ----

func (d *Dispatcher) startCreate(t *turn) error {
	t.sess.Reset()
	t.sess.State = session.AdminCreateTitle
	t.sess.Draft = &session.EventDraft{}
	return d.out.Text(t.ctx, t.phone(), "Vamos criar um evento.\n"+fieldPrompts["title"])
}

// draft returns the wizard payload, recreating it if the session lost it.
func draft(t *turn) *session.EventDraft {
	if t.sess.Draft == nil {
		t.sess.Draft = &session.EventDraft{}
	}
	return t.sess.Draft
}

func (d *Dispatcher) onCreateTitle(t *turn, text string) error {
	if text == "" {
		return d.out.Text(t.ctx, t.phone(), fieldPrompts["title"])
	}
	draft(t).Title = text
	t.sess.State = session.AdminCreateCity
	return d.out.Text(t.ctx, t.phone(), fieldPrompts["city"])
}

func (d *Dispatcher) onCreateCity(t *turn, text string) error {
	if text == "" {
		return d.out.Text(t.ctx, t.phone(), fieldPrompts["city"])
	}
	draft(t).City = text
	t.sess.State = session.AdminCreateVenue
	return d.out.Text(t.ctx, t.phone(), fieldPrompts["venue"])
}

func (d *Dispatcher) onCreateVenue(t *turn, text string) error {
	if text == "" {
		return d.out.Text(t.ctx, t.phone(), fieldPrompts["venue"])
	}
	draft(t).Venue = text
	t.sess.State = session.AdminCreateDate
	return d.out.Text(t.ctx, t.phone(), fieldPrompts["date"])
}

func (d *Dispatcher) onCreateDate(t *turn, text string) error {
	at, err := input.ParseDate(text, d.cfg.Location)
	if err != nil {
		return d.out.Text(t.ctx, t.phone(), "Não entendi a data. Tenta `20/09/2025 23:00` ou `2025-09-20T23:00`.")
	}
	draft(t).Date = at
	t.sess.State = session.AdminCreatePrice
	return d.out.Text(t.ctx, t.phone(), fieldPrompts["price"])
}

func (d *Dispatcher) onCreatePrice(t *turn, text string) error {
	price, err := input.ParsePrice(text)
	if err != nil {
		return d.out.Text(t.ctx, t.phone(), "Não entendi o preço. Manda só o valor, por exemplo `60` ou `45,50`.")
	}
	draft(t).Price = price
	t.sess.State = session.AdminCreateMedia
	return d.out.Text(t.ctx, t.phone(), fieldPrompts["media"])
}

func (d *Dispatcher) onCreateMediaText(t *turn, text string) error {
	if oneOf(keyword(text), skipWords...) {
		return d.createEvent(t)
	}
	return d.out.Text(t.ctx, t.phone(), "Preciso de uma imagem. Envie a foto do banner ou escreva “pular”.")
}

func (d *Dispatcher) onCreateMedia(t *turn) error {
	if !t.msg.Media.IsImage() {
		return d.out.Text(t.ctx, t.phone(), "Isso não parece uma imagem. Envie a foto do banner ou escreva “pular”.")
	}
	u, err := d.saveBanner(t)
	if err != nil {
		d.log.Warn("banner upload failed", "phone", t.phone(), "message_id", t.msg.ID, "error", err)
		return d.out.Text(t.ctx, t.phone(), "Não consegui salvar a imagem agora. Tenta de novo ou escreva “pular”.")
	}
	draft(t).MediaURL = u
	return d.createEvent(t)
}

// createEvent persists the draft.  It is the only exit of the wizard that
// writes to the store, and it leaves the session idle.
func (d *Dispatcher) createEvent(t *turn) error {
	dr := draft(t)
	now := d.now().UTC()
	ev := &model.Event{
		ID:        uuid.NewString(),
		Title:     dr.Title,
		City:      dr.City,
		Venue:     dr.Venue,
		Date:      dr.Date.UTC(),
		Price:     dr.Price,
		MediaURL:  dr.MediaURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.sess.Reset()
	if err := d.store.CreateEvent(t.ctx, ev); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	d.log.Info("event created", "phone", t.phone(), "event_id", ev.ID, "title", ev.Title)
	if err := d.out.Text(t.ctx, t.phone(), "Evento criado ✅\n"+d.eventSummary(ev)); err != nil {
		return err
	}
	return d.out.Buttons(t.ctx, t.phone(), "E agora?",
		outbound.Button{ID: SelectionID(ActAdminPanel), Title: "Painel"},
		outbound.Button{ID: SelectionID(ActEvents), Title: "Ver vitrine"},
	)
}

// ---- edit ----

func (d *Dispatcher) chooseEditField(t *turn, a Action) error {
	t.sess.Reset()
	ev, err := d.store.GetEvent(t.ctx, a.ID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return d.out.Text(t.ctx, t.phone(), "Não achei esse evento.")
	}
	if err != nil {
		return err
	}
	rows := make([]outbound.Row, 0, len(editableFields))
	for _, f := range editableFields {
		rows = append(rows, outbound.Row{ID: SelectionID(ActAdminEditField, ev.ID, f.key), Title: f.label})
	}
	return d.out.List(t.ctx, t.phone(), outbound.List{
		Header:   "Editar evento",
		Body:     d.eventSummary(ev) + "\n\nO que deseja alterar?",
		Button:   "Campos",
		Sections: []outbound.Section{{Title: "Campos", Rows: rows}},
	})
}

func (d *Dispatcher) startEditField(t *turn, a Action) error {
	t.sess.Reset()
	if _, ok := fieldPrompts[a.Field]; !ok {
		return d.out.Text(t.ctx, t.phone(), "Campo desconhecido.")
	}
	if _, err := d.store.GetEvent(t.ctx, a.ID); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return d.out.Text(t.ctx, t.phone(), "Não achei esse evento.")
		}
		return err
	}
	t.sess.State = session.EditState(a.Field)
	t.sess.EditEventID = a.ID
	return d.out.Text(t.ctx, t.phone(), "Novo valor. "+fieldPrompts[a.Field])
}

func (d *Dispatcher) startMedia(t *turn, a Action) error {
	return d.startEditField(t, Action{Kind: ActAdminEditField, ID: a.ID, Field: "media", Raw: a.Raw})
}

// onEditValue applies the text answer of an admin_edit_<field> state.
// Invalid values re-prompt without leaving the state.
func (d *Dispatcher) onEditValue(t *turn, field, text string) error {
	if field == "media" {
		if oneOf(keyword(text), skipWords...) {
			t.sess.Reset()
			return d.out.Text(t.ctx, t.phone(), "Ok, banner mantido.")
		}
		return d.out.Text(t.ctx, t.phone(), "Preciso de uma imagem. Envie a foto do banner ou escreva “pular”.")
	}
	ev, err := d.store.GetEvent(t.ctx, t.sess.EditEventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		t.sess.Reset()
		return d.out.Text(t.ctx, t.phone(), "Não achei esse evento.")
	}
	if err != nil {
		return err
	}
	if text == "" {
		return d.out.Text(t.ctx, t.phone(), fieldPrompts[field])
	}
	switch field {
	case "title":
		ev.Title = text
	case "city":
		ev.City = text
	case "venue":
		ev.Venue = text
	case "date":
		at, err := input.ParseDate(text, d.cfg.Location)
		if err != nil {
			return d.out.Text(t.ctx, t.phone(), "Não entendi a data. Tenta `20/09/2025 23:00` ou `2025-09-20T23:00`.")
		}
		ev.Date = at.UTC()
	case "price":
		p, err := input.ParsePrice(text)
		if err != nil {
			return d.out.Text(t.ctx, t.phone(), "Não entendi o preço. Manda só o valor, por exemplo `60` ou `45,50`.")
		}
		ev.Price = p
	default:
		t.sess.Reset()
		return d.out.Text(t.ctx, t.phone(), "Campo desconhecido.")
	}
	return d.saveEdit(t, ev)
}

func (d *Dispatcher) onEditMedia(t *turn) error {
	if !t.msg.Media.IsImage() {
		return d.out.Text(t.ctx, t.phone(), "Isso não parece uma imagem. Envie a foto do banner ou escreva “pular”.")
	}
	ev, err := d.store.GetEvent(t.ctx, t.sess.EditEventID)
	if errors.Is(err, repository.ErrEventNotFound) {
		t.sess.Reset()
		return d.out.Text(t.ctx, t.phone(), "Não achei esse evento.")
	}
	if err != nil {
		return err
	}
	u, err := d.saveBanner(t)
	if err != nil {
		d.log.Warn("banner upload failed", "phone", t.phone(), "message_id", t.msg.ID, "error", err)
		return d.out.Text(t.ctx, t.phone(), "Não consegui salvar a imagem agora. Tenta novamente.")
	}
	ev.MediaURL = u
	return d.saveEdit(t, ev)
}

func (d *Dispatcher) saveEdit(t *turn, ev *model.Event) error {
	ev.UpdatedAt = d.now().UTC()
	t.sess.Reset()
	if err := d.store.UpdateEvent(t.ctx, ev); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return d.out.Text(t.ctx, t.phone(), "Não achei esse evento.")
		}
		return fmt.Errorf("update event: %w", err)
	}
	d.log.Info("event updated", "phone", t.phone(), "event_id", ev.ID)
	return d.out.Text(t.ctx, t.phone(), "Evento atualizado ✅\n"+d.eventSummary(ev))
}

// ---- delete ----

func (d *Dispatcher) confirmDelete(t *turn, a Action) error {
	t.sess.Reset()
	ev, err := d.store.GetEvent(t.ctx, a.ID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return d.out.Text(t.ctx, t.phone(), "Não achei esse evento.")
	}
	if err != nil {
		return err
	}
	return d.out.Buttons(t.ctx, t.phone(), fmt.Sprintf("Remover *%s*? Essa ação não pode ser desfeita.", ev.Title),
		outbound.Button{ID: SelectionID(ActAdminDeleteConfirm, ev.ID), Title: "Excluir"},
		outbound.Button{ID: SelectionID(ActAdminPanel), Title: "Cancelar"},
	)
}

func (d *Dispatcher) deleteEvent(t *turn, a Action) error {
	t.sess.Reset()
	err := d.store.DeleteEvent(t.ctx, a.ID)
	if errors.Is(err, repository.ErrEventNotFound) {
		return d.out.Text(t.ctx, t.phone(), "Não achei esse evento.")
	}
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	d.log.Info("event deleted", "phone", t.phone(), "event_id", a.ID)
	return d.out.Text(t.ctx, t.phone(), "Evento removido ✅")
}
