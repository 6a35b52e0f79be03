// Package session keeps the per-phone conversational state that drives the
// chat flows.  Sessions are ephemeral: they live in process memory, expire
// after a period of inactivity and are lost on restart.
package session

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// State names a node of the conversation state machine.
type State string

const (
	Idle         State = "idle"
	AwaitingName State = "awaiting_name"

	AdminCreateTitle State = "admin_create_title"
	AdminCreateCity  State = "admin_create_city"
	AdminCreateVenue State = "admin_create_venue"
	AdminCreateDate  State = "admin_create_date"
	AdminCreatePrice State = "admin_create_price"
	AdminCreateMedia State = "admin_create_media"

	SupportChooseCategory State = "support_choose_category"
	SupportCollectMessage State = "support_collect_message"

	BroadcastChooseMode State = "broadcast_choose_mode"
	BroadcastAskTarget  State = "broadcast_ask_target"
	BroadcastWriteText  State = "broadcast_write_text"

	// AdminReplyTo waits for the text an admin sends back to Session.ReplyTo.
	AdminReplyTo State = "admin_reply_to"
)

const editPrefix = "admin_edit_"

// EditState returns the state that waits for a new value of field.
func EditState(field string) State { return State(editPrefix + field) }

// EditField reports the field an admin_edit_* state is collecting.
func (s State) EditField() (string, bool) {
	if !strings.HasPrefix(string(s), editPrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(s), editPrefix), true
}

// EventDraft accumulates the admin create wizard answers across turns.
type EventDraft struct {
	Title    string
	City     string
	Venue    string
	Date     time.Time
	Price    decimal.Decimal
	MediaURL string
}

// Broadcast holds the choices made in the broadcast flow.
type Broadcast struct {
	Mode   string
	Target string
}

// Session is the state of one phone's conversation.
//
// Fields:
//  Phone          – sender, digits only; the session key.
//  State          – current node of the state machine.
//  PendingEventID – event chosen in the purchase flow.
//  CandidateName  – profile name offered for confirmation.
//  Draft          – admin create wizard payload.
//  EditEventID    – event targeted by the edit/media flows.
//  Category       – support category picked by the user.
//  TicketID       – open support ticket collecting messages.
//  Broadcast      – broadcast mode and target.
//  ReplyTo        – support ticket an admin is answering.
//  LastOrderCode  – last order issued in this conversation.
//  UpdatedAt      – last write, used for expiry.
type Session struct {
	Phone          string
	State          State
	PendingEventID string
	CandidateName  string
	Draft          *EventDraft
	EditEventID    string
	Category       string
	TicketID       string
	Broadcast      Broadcast
	ReplyTo        string
	LastOrderCode  string
	UpdatedAt      time.Time
}

// Reset returns the session to idle and drops every flow payload.
// LastOrderCode survives so "my tickets" shortcuts keep working.
func (s *Session) Reset() {
	*s = Session{Phone: s.Phone, State: Idle, LastOrderCode: s.LastOrderCode, UpdatedAt: s.UpdatedAt}
}

func (s Session) clone() Session {
	if s.Draft != nil {
		d := *s.Draft
		s.Draft = &d
	}
	return s
}
