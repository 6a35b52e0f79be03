// Package outbound builds the messages the service sends back to users and
// delivers them through the WhatsApp Cloud API.  Every message goes through
// Normalize before it leaves, which enforces the channel's field limits.
package outbound

import (
	"strings"
	"unicode/utf8"
)

// Field limits imposed by the messaging channel.  Values above these are
// rejected by the provider, so they are truncated on our side.
const (
	MaxTextBody        = 4096
	MaxInteractiveBody = 1024
	MaxHeader          = 60
	MaxFooter          = 60
	MaxButtonTitle     = 20
	MaxButtons         = 3
	MaxListButton      = 20
	MaxSectionTitle    = 24
	MaxRowTitle        = 24
	MaxRowDescription  = 72
	MaxRows            = 10
	MaxCaption         = 1024
	MaxFilename        = 240
)

// Ellipsis marks a truncated field.
const Ellipsis = "…"

// Kind is the message variant.
type Kind string

const (
	KindText     Kind = "text"
	KindButtons  Kind = "buttons"
	KindList     Kind = "list"
	KindDocument Kind = "document"
	KindImage    Kind = "image"
)

// Button is a quick-reply option.  ID comes back as the selection id.
type Button struct {
	ID    string
	Title string
}

// Row is one entry of a list message.
type Row struct {
	ID          string
	Title       string
	Description string
}

// Section groups rows under an optional title.
type Section struct {
	Title string
	Rows  []Row
}

// List is the content of a list message.
type List struct {
	Header   string
	Body     string
	Footer   string
	Button   string
	Sections []Section
}

// Attachment is a document or image referenced by public URL.
type Attachment struct {
	Link     string
	Filename string
	Caption  string
}

// Message is a transport-agnostic outbound descriptor.
type Message struct {
	To         string
	Kind       Kind
	Body       string
	Buttons    []Button
	List       List
	Attachment Attachment
}

// Truncate shortens s to at most max runes, replacing the tail with
// Ellipsis when anything was cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return Ellipsis
	}
	runes := []rune(s)
	head := strings.TrimRight(string(runes[:max-1]), " ")
	return head + Ellipsis
}

// Normalize returns a copy of m with every field cut to the channel limits.
// Buttons beyond MaxButtons and rows beyond MaxRows are dropped.
func Normalize(m Message) Message {
	out := Message{To: m.To, Kind: m.Kind}
	switch m.Kind {
	case KindText:
		out.Body = Truncate(m.Body, MaxTextBody)
	case KindButtons:
		out.Body = Truncate(m.Body, MaxInteractiveBody)
		n := len(m.Buttons)
		if n > MaxButtons {
			n = MaxButtons
		}
		out.Buttons = make([]Button, n)
		for i := 0; i < n; i++ {
			out.Buttons[i] = Button{ID: m.Buttons[i].ID, Title: Truncate(m.Buttons[i].Title, MaxButtonTitle)}
		}
	case KindList:
		out.List = List{
			Header: Truncate(m.List.Header, MaxHeader),
			Body:   Truncate(m.List.Body, MaxInteractiveBody),
			Footer: Truncate(m.List.Footer, MaxFooter),
			Button: Truncate(m.List.Button, MaxListButton),
		}
		budget := MaxRows
		for _, sec := range m.List.Sections {
			if budget == 0 {
				break
			}
			rows := sec.Rows
			if len(rows) > budget {
				rows = rows[:budget]
			}
			budget -= len(rows)
			ns := Section{Title: Truncate(sec.Title, MaxSectionTitle), Rows: make([]Row, len(rows))}
			for i, r := range rows {
				ns.Rows[i] = Row{
					ID:          r.ID,
					Title:       Truncate(r.Title, MaxRowTitle),
					Description: Truncate(r.Description, MaxRowDescription),
				}
			}
			if len(ns.Rows) > 0 {
				out.List.Sections = append(out.List.Sections, ns)
			}
		}
	case KindDocument, KindImage:
		out.Attachment = Attachment{
			Link:     m.Attachment.Link,
			Filename: Truncate(m.Attachment.Filename, MaxFilename),
			Caption:  Truncate(m.Attachment.Caption, MaxCaption),
		}
	}
	return out
}
