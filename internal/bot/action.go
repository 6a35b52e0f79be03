package bot

import "strings"

// ActionKind names what a selection id asks the dispatcher to do.  Kinds
// starting with "admin." are reserved to admin phones.
type ActionKind string

const (
	ActMenu      ActionKind = "menu"
	ActEvents    ActionKind = "events"
	ActMyTickets ActionKind = "tickets"
	ActSupport   ActionKind = "support"

	ActViewEvent  ActionKind = "events.view"
	ActResend     ActionKind = "tickets.resend"
	ActNameYes    ActionKind = "buy.name_yes"
	ActNameNo     ActionKind = "buy.name_no"
	ActSupportCat ActionKind = "support.category"
	ActSupportEnd ActionKind = "support.done"

	ActAdminPanel         ActionKind = "admin.panel"
	ActAdminCreate        ActionKind = "admin.event.create"
	ActAdminListEdit      ActionKind = "admin.event.list_edit"
	ActAdminEdit          ActionKind = "admin.event.edit"
	ActAdminEditField     ActionKind = "admin.event.field"
	ActAdminListDelete    ActionKind = "admin.event.list_delete"
	ActAdminDelete        ActionKind = "admin.event.delete"
	ActAdminDeleteConfirm ActionKind = "admin.event.delete_confirm"
	ActAdminListMedia     ActionKind = "admin.event.list_media"
	ActAdminMedia         ActionKind = "admin.event.media"
	ActAdminSupportList   ActionKind = "admin.support.list"
	ActAdminSupportView   ActionKind = "admin.support.view"
	ActAdminSupportReply  ActionKind = "admin.support.reply"
	ActAdminSupportClose  ActionKind = "admin.support.close"
	ActAdminBroadcast     ActionKind = "admin.broadcast"
	ActAdminBroadcastMode ActionKind = "admin.broadcast.mode"
	ActAdminBroadcastEvt  ActionKind = "admin.broadcast.event"
)

// Action is a parsed selection id.
type Action struct {
	Kind  ActionKind
	ID    string // event id, order code, ticket id, category or mode
	Field string // event field for ActAdminEditField
	Raw   string
}

// AdminOnly reports whether the action requires an admin sender.
func (a Action) AdminOnly() bool { return strings.HasPrefix(string(a.Kind), "admin.") }

type route struct {
	prefix string
	kind   ActionKind
	params int
}

// routes maps wire ids to kinds.  Ids without params match exactly; the
// others match by prefix and carry their params separated by ':'.
var routes = []route{
	{"menu:main", ActMenu, 0},
	{"menu:events", ActEvents, 0},
	{"menu:tickets", ActMyTickets, 0},
	{"menu:support", ActSupport, 0},
	{"events:view:", ActViewEvent, 1},
	{"tickets:resend:", ActResend, 1},
	{"buy:name:yes", ActNameYes, 0},
	{"buy:name:no", ActNameNo, 0},
	{"support:cat:", ActSupportCat, 1},
	{"support:done", ActSupportEnd, 0},

	{"admin:panel", ActAdminPanel, 0},
	{"admin:ev:create", ActAdminCreate, 0},
	{"admin:ev:list_edit", ActAdminListEdit, 0},
	{"admin:ev:edit:", ActAdminEdit, 1},
	{"admin:ev:field:", ActAdminEditField, 2},
	{"admin:ev:list_delete", ActAdminListDelete, 0},
	{"admin:ev:delete:", ActAdminDelete, 1},
	{"admin:ev:delete_confirm:", ActAdminDeleteConfirm, 1},
	{"admin:ev:list_media", ActAdminListMedia, 0},
	{"admin:ev:media:", ActAdminMedia, 1},
	{"admin:support:list", ActAdminSupportList, 0},
	{"admin:support:view:", ActAdminSupportView, 1},
	{"admin:support:reply:", ActAdminSupportReply, 1},
	{"admin:support:close:", ActAdminSupportClose, 1},
	{"admin:broadcast", ActAdminBroadcast, 0},
	{"admin:broadcast:mode:", ActAdminBroadcastMode, 1},
	{"admin:broadcast:event:", ActAdminBroadcastEvt, 1},
}

// ParseSelection turns a selection id into an Action.  Unknown or
// malformed ids fall back to the main menu.
func ParseSelection(id string) Action {
	id = strings.TrimSpace(id)
	for _, r := range routes {
		if r.params == 0 {
			if id == r.prefix {
				return Action{Kind: r.kind, Raw: id}
			}
			continue
		}
		if !strings.HasPrefix(id, r.prefix) {
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(id, r.prefix), ":", r.params)
		if len(parts) != r.params || hasEmpty(parts) {
			continue
		}
		a := Action{Kind: r.kind, ID: parts[0], Raw: id}
		if r.params == 2 {
			a.Field = parts[1]
		}
		return a
	}
	return Action{Kind: ActMenu, Raw: id}
}

func hasEmpty(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return true
		}
	}
	return false
}

// SelectionID builds the wire id for kind with params.  It panics on an
// unknown kind since ids are only built from constants.
func SelectionID(kind ActionKind, params ...string) string {
	for _, r := range routes {
		if r.kind != kind {
			continue
		}
		if r.params == 0 {
			return r.prefix
		}
		return r.prefix + strings.Join(params, ":")
	}
	panic("bot: no selection id for " + string(kind))
}
