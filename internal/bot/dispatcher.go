// Package bot is the conversation engine.  It reads one inbound message at
// a time per phone, moves that phone's session through the state machine
// and answers through the Messenger.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/chat-ticketing/internal/inbound"
	"github.com/iliyamo/chat-ticketing/internal/metrics"
	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/outbound"
	"github.com/iliyamo/chat-ticketing/internal/repository"
	"github.com/iliyamo/chat-ticketing/internal/session"
	"github.com/iliyamo/chat-ticketing/internal/ticket"
)

// Messenger sends replies.  *outbound.Composer implements it.
type Messenger interface {
	Text(ctx context.Context, to, body string) error
	Buttons(ctx context.Context, to, body string, options ...outbound.Button) error
	List(ctx context.Context, to string, l outbound.List) error
	Image(ctx context.Context, to, link, caption string) error
}

// Tickets is the part of the ticket engine the purchase flow drives.
type Tickets interface {
	CreateOrder(ctx context.Context, eventID string, qty int, buyerName, buyerPhone string) (*model.Order, error)
	Issue(ctx context.Context, code string) (ticket.IssueResult, error)
	Resend(ctx context.Context, code string) (ticket.IssueResult, error)
}

// MediaFetcher downloads an inbound attachment by provider media id.
type MediaFetcher interface {
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// MediaSaver stores a banner and returns its public URL.
type MediaSaver interface {
	Save(data []byte, mimeType string) (string, error)
}

// Config holds the dispatcher's business settings.
type Config struct {
	Brand                string
	Admins               []string
	SupportContact       string
	Location             *time.Location
	BroadcastRate        float64
	BroadcastConcurrency int
}

// Deps are the collaborators of a Dispatcher.  Media and Uploads are
// optional; without them banner uploads are refused.
type Deps struct {
	Store     repository.Store
	Sessions  session.Store
	Tickets   Tickets
	Messenger Messenger
	Media     MediaFetcher
	Uploads   MediaSaver
	Logger    *slog.Logger
}

// Dispatcher routes inbound messages through the conversation state
// machine.
type Dispatcher struct {
	cfg      Config
	store    repository.Store
	sessions session.Store
	tickets  Tickets
	out      Messenger
	media    MediaFetcher
	uploads  MediaSaver
	admins   map[string]bool
	log      *slog.Logger
	now      func() time.Time
}

// New builds a Dispatcher.
func New(cfg Config, deps Deps) *Dispatcher {
	if cfg.Brand == "" {
		cfg.Brand = "IngressAI"
	}
	if cfg.Location == nil {
		cfg.Location = time.FixedZone("-03:00", -3*60*60)
	}
	if cfg.BroadcastRate <= 0 {
		cfg.BroadcastRate = 20
	}
	if cfg.BroadcastConcurrency <= 0 {
		cfg.BroadcastConcurrency = 4
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	admins := make(map[string]bool, len(cfg.Admins))
	for _, p := range cfg.Admins {
		if p = inbound.Digits(p); p != "" {
			admins[p] = true
		}
	}
	return &Dispatcher{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		tickets:  deps.Tickets,
		out:      deps.Messenger,
		media:    deps.Media,
		uploads:  deps.Uploads,
		admins:   admins,
		log:      deps.Logger,
		now:      time.Now,
	}
}

// IsAdmin reports whether phone is on the admin allow-list.
func (d *Dispatcher) IsAdmin(phone string) bool { return d.admins[inbound.Digits(phone)] }

// Admins returns the admin phones.
func (d *Dispatcher) Admins() []string {
	out := make([]string, 0, len(d.admins))
	for p := range d.admins {
		out = append(out, p)
	}
	return out
}

// turn carries everything one handler invocation needs.
type turn struct {
	ctx   context.Context
	msg   inbound.Message
	sess  *session.Session
	admin bool
}

func (t *turn) phone() string { return t.msg.From }

// Dispatch handles one inbound message.  All work for a phone is
// serialized by the session lock, so a double tap or a duplicate delivery
// that slipped past dedup sees the state left by the previous message.
func (d *Dispatcher) Dispatch(ctx context.Context, m inbound.Message) error {
	if m.From == "" {
		return nil
	}
	start := time.Now()
	defer metrics.Since(start)

	unlock := d.sessions.Lock(m.From)
	defer unlock()

	s := d.sessions.Get(m.From)
	t := &turn{ctx: ctx, msg: m, sess: &s, admin: d.IsAdmin(m.From)}

	var err error
	switch m.Kind {
	case inbound.KindSelection:
		err = d.onSelection(t, ParseSelection(m.SelectionID))
	case inbound.KindText:
		err = d.onText(t)
	case inbound.KindMedia:
		err = d.onMedia(t)
	default:
		err = d.out.Text(ctx, m.From, "Ainda não entendo esse tipo de mensagem. Manda “menu” para ver as opções.")
	}
	d.sessions.Set(s)
	if err != nil {
		return fmt.Errorf("dispatch %s from %s: %w", m.Kind, m.From, err)
	}
	return nil
}

// ---- selections ----

type selectionHandler func(d *Dispatcher, t *turn, a Action) error

var selectionHandlers map[ActionKind]selectionHandler

func init() {
	selectionHandlers = map[ActionKind]selectionHandler{
		ActMenu:      func(d *Dispatcher, t *turn, _ Action) error { t.sess.Reset(); return d.mainMenu(t, "Posso te ajudar com:") },
		ActEvents:    func(d *Dispatcher, t *turn, _ Action) error { t.sess.Reset(); return d.showEvents(t) },
		ActMyTickets: func(d *Dispatcher, t *turn, _ Action) error { t.sess.Reset(); return d.myTickets(t) },
		ActSupport:   func(d *Dispatcher, t *turn, _ Action) error { return d.startSupport(t) },

		ActViewEvent:  (*Dispatcher).viewEvent,
		ActResend:     (*Dispatcher).resendTicket,
		ActNameYes:    (*Dispatcher).confirmName,
		ActNameNo:     (*Dispatcher).rejectName,
		ActSupportCat: (*Dispatcher).chooseCategory,
		ActSupportEnd: func(d *Dispatcher, t *turn, _ Action) error { return d.finishSupport(t) },

		ActAdminPanel:         func(d *Dispatcher, t *turn, _ Action) error { return d.adminPanel(t) },
		ActAdminCreate:        func(d *Dispatcher, t *turn, _ Action) error { return d.startCreate(t) },
		ActAdminListEdit:      func(d *Dispatcher, t *turn, _ Action) error { return d.pickEvent(t, ActAdminEdit, "Editar evento", "Qual evento deseja editar?", "") },
		ActAdminEdit:          (*Dispatcher).chooseEditField,
		ActAdminEditField:     (*Dispatcher).startEditField,
		ActAdminListDelete:    func(d *Dispatcher, t *turn, _ Action) error { return d.pickEvent(t, ActAdminDelete, "Excluir evento", "Qual evento deseja remover?", "🗑 ") },
		ActAdminDelete:        (*Dispatcher).confirmDelete,
		ActAdminDeleteConfirm: (*Dispatcher).deleteEvent,
		ActAdminListMedia:     func(d *Dispatcher, t *turn, _ Action) error { return d.pickEvent(t, ActAdminMedia, "Definir mídia", "Escolha o evento. Depois envie a imagem.", "") },
		ActAdminMedia:         (*Dispatcher).startMedia,
		ActAdminSupportList:   func(d *Dispatcher, t *turn, _ Action) error { return d.listSupport(t) },
		ActAdminSupportView:   (*Dispatcher).viewSupport,
		ActAdminSupportReply:  (*Dispatcher).startReply,
		ActAdminSupportClose:  (*Dispatcher).closeSupport,
		ActAdminBroadcast:     func(d *Dispatcher, t *turn, _ Action) error { return d.startBroadcast(t) },
		ActAdminBroadcastMode: (*Dispatcher).chooseBroadcastMode,
		ActAdminBroadcastEvt:  (*Dispatcher).chooseBroadcastEvent,
	}
}

func (d *Dispatcher) onSelection(t *turn, a Action) error {
	if a.AdminOnly() && !t.admin {
		d.log.Warn("admin selection from non-admin", "phone", t.phone(), "message_id", t.msg.ID, "selection", a.Raw)
		t.sess.Reset()
		if err := d.out.Text(t.ctx, t.phone(), "Acesso restrito."); err != nil {
			return err
		}
		return d.mainMenu(t, "Posso te ajudar com:")
	}
	h, ok := selectionHandlers[a.Kind]
	if !ok {
		return d.mainMenu(t, "Posso te ajudar com:")
	}
	return h(d, t, a)
}

// ---- free text ----

type textHandler func(d *Dispatcher, t *turn, text string) error

var textHandlers map[session.State]textHandler

func init() {
	textHandlers = map[session.State]textHandler{
		session.AwaitingName:          (*Dispatcher).onName,
		session.AdminCreateTitle:      (*Dispatcher).onCreateTitle,
		session.AdminCreateCity:       (*Dispatcher).onCreateCity,
		session.AdminCreateVenue:      (*Dispatcher).onCreateVenue,
		session.AdminCreateDate:       (*Dispatcher).onCreateDate,
		session.AdminCreatePrice:      (*Dispatcher).onCreatePrice,
		session.AdminCreateMedia:      (*Dispatcher).onCreateMediaText,
		session.SupportChooseCategory: (*Dispatcher).onCategoryText,
		session.SupportCollectMessage: (*Dispatcher).onSupportText,
		session.BroadcastChooseMode:   (*Dispatcher).onBroadcastModeText,
		session.BroadcastAskTarget:    (*Dispatcher).onBroadcastTarget,
		session.BroadcastWriteText:    (*Dispatcher).onBroadcastText,
		session.AdminReplyTo:          (*Dispatcher).onAdminReply,
	}
}

var (
	stopWords = []string{"menu", "cancelar", "cancela", "voltar", "sair", "parar", "inicio", "início"}
	greetings = []string{"oi", "olá", "ola", "oie", "bom dia", "boa tarde", "boa noite", "/start", "hi", "hello"}
)

func isAdminState(s session.State) bool {
	switch s {
	case session.AdminCreateTitle, session.AdminCreateCity, session.AdminCreateVenue, session.AdminCreateDate,
		session.AdminCreatePrice, session.AdminCreateMedia, session.BroadcastChooseMode, session.BroadcastAskTarget,
		session.BroadcastWriteText, session.AdminReplyTo:
		return true
	}
	_, edit := s.EditField()
	return edit
}

func (d *Dispatcher) onText(t *turn) error {
	text := normalize(t.msg.Text)
	kw := keyword(text)

	// Global commands win over any wizard step.
	switch {
	case oneOf(kw, stopWords...):
		wasBusy := t.sess.State != session.Idle
		t.sess.Reset()
		if wasBusy {
			if err := d.out.Text(t.ctx, t.phone(), "Cancelado. ✋"); err != nil {
				return err
			}
		}
		return d.mainMenu(t, "Posso te ajudar com:")
	case oneOf(kw, greetings...):
		t.sess.Reset()
		return d.greet(t)
	case oneOf(kw, "suporte", "ajuda"):
		return d.startSupport(t)
	case oneOf(kw, "admin", "/admin"):
		if !t.admin {
			t.sess.Reset()
			if err := d.out.Text(t.ctx, t.phone(), "Acesso restrito."); err != nil {
				return err
			}
			return d.mainMenu(t, "Posso te ajudar com:")
		}
		return d.adminPanel(t)
	}

	if t.sess.State != session.Idle {
		if isAdminState(t.sess.State) && !t.admin {
			t.sess.Reset()
			return d.mainMenu(t, "Posso te ajudar com:")
		}
		if field, ok := t.sess.State.EditField(); ok {
			return d.onEditValue(t, field, text)
		}
		if h, ok := textHandlers[t.sess.State]; ok {
			return h(d, t, text)
		}
		t.sess.Reset()
	}

	switch {
	case oneOf(kw, "ver eventos", "eventos", "vitrine", "comprar"):
		return d.showEvents(t)
	case oneOf(kw, "meus ingressos", "ingressos", "meus ing", "ingresso"):
		return d.myTickets(t)
	}
	return d.mainMenu(t, "Posso te ajudar com:")
}

// ---- media ----

func (d *Dispatcher) onMedia(t *turn) error {
	if t.admin {
		if t.sess.State == session.AdminCreateMedia {
			return d.onCreateMedia(t)
		}
		if field, ok := t.sess.State.EditField(); ok && field == "media" {
			return d.onEditMedia(t)
		}
	}
	if t.sess.State == session.SupportCollectMessage {
		note := "[" + t.msg.Media.Type + "]"
		if t.msg.Media.Caption != "" {
			note += " " + t.msg.Media.Caption
		}
		return d.onSupportText(t, note)
	}
	return d.out.Text(t.ctx, t.phone(), "Recebi sua mídia, mas por aqui eu só entendo texto e botões. Manda “menu” para ver as opções.")
}

// saveBanner downloads the attachment of the current message and stores it.
func (d *Dispatcher) saveBanner(t *turn) (string, error) {
	if d.media == nil || d.uploads == nil {
		return "", fmt.Errorf("banner uploads not configured")
	}
	data, mime, err := d.media.DownloadMedia(t.ctx, t.msg.Media.ID)
	if err != nil {
		return "", err
	}
	if mime == "" {
		mime = t.msg.Media.MimeType
	}
	return d.uploads.Save(data, mime)
}

// ---- shared replies ----

func (d *Dispatcher) greet(t *turn) error {
	hi := "Fala aí!"
	if name := firstName(t.msg.ProfileName); name != "" {
		hi = "Fala, " + name + "!"
	}
	if err := d.out.Text(t.ctx, t.phone(), fmt.Sprintf("%s Eu sou o bot da %s. Vendo ingressos aqui no WhatsApp. 🚀", hi, d.cfg.Brand)); err != nil {
		return err
	}
	return d.mainMenu(t, "Como posso te ajudar?")
}

func (d *Dispatcher) mainMenu(t *turn, body string) error {
	third := outbound.Button{ID: SelectionID(ActSupport), Title: "Suporte"}
	if t.admin {
		third = outbound.Button{ID: SelectionID(ActAdminPanel), Title: "Admin"}
	}
	return d.out.Buttons(t.ctx, t.phone(), body,
		outbound.Button{ID: SelectionID(ActEvents), Title: "Ver eventos"},
		outbound.Button{ID: SelectionID(ActMyTickets), Title: "Meus ingressos"},
		third,
	)
}

func firstName(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}
