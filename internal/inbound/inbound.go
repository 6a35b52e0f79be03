// Package inbound decodes the WhatsApp Cloud webhook envelope into typed
// messages.  Every message is classified once here so the dispatcher never
// has to inspect raw JSON.
package inbound

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Kind tags the variant carried by a Message.
type Kind string

const (
	KindText        Kind = "text"
	KindSelection   Kind = "selection"
	KindMedia       Kind = "media"
	KindUnsupported Kind = "unsupported"
)

// Media describes an attachment.  The binary must be fetched separately
// with the provider's media id.
type Media struct {
	ID       string
	Type     string // image, document, audio, video, sticker
	MimeType string
	Caption  string
}

// IsImage reports whether the attachment is a picture.
func (m Media) IsImage() bool {
	return m.Type == "image" || strings.HasPrefix(m.MimeType, "image/")
}

// Message is one inbound unit.  Exactly one of Text, Selection* or Media
// is meaningful, according to Kind.
type Message struct {
	ID             string // provider message id, the dedup key
	From           string // sender phone, digits only
	ProfileName    string
	Kind           Kind
	Type           string // raw provider type
	Text           string
	SelectionID    string // button or list row id
	SelectionTitle string
	Media          Media
	Timestamp      time.Time
}

// Status is a delivery receipt for a message we sent.
type Status struct {
	ID          string
	RecipientID string
	Status      string
	Timestamp   time.Time
	Errors      []StatusError
}

// StatusError is a provider error attached to a failed delivery status.
type StatusError struct {
	Code  int    `json:"code"`
	Title string `json:"title"`
}

// Batch is the content of one webhook delivery.
type Batch struct {
	Messages []Message
	Statuses []Status
}

type envelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value value  `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type value struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []rawMessage `json:"messages"`
	Statuses []struct {
		ID          string        `json:"id"`
		RecipientID string        `json:"recipient_id"`
		Status      string        `json:"status"`
		Timestamp   string        `json:"timestamp"`
		Errors      []StatusError `json:"errors"`
	} `json:"statuses"`
}

type rawMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

type rawMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
		ListReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"list_reply"`
	} `json:"interactive"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
	Image    *rawMedia `json:"image"`
	Document *rawMedia `json:"document"`
	Audio    *rawMedia `json:"audio"`
	Video    *rawMedia `json:"video"`
	Sticker  *rawMedia `json:"sticker"`
}

// Parse decodes a raw webhook body.  Changes whose field is not
// "messages" are skipped.
func Parse(body []byte) (Batch, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Batch{}, err
	}
	var b Batch
	for _, e := range env.Entry {
		for _, ch := range e.Changes {
			if ch.Field != "" && ch.Field != "messages" {
				continue
			}
			v := ch.Value
			names := make(map[string]string, len(v.Contacts))
			for _, c := range v.Contacts {
				names[Digits(c.WaID)] = strings.TrimSpace(c.Profile.Name)
			}
			for _, rm := range v.Messages {
				m := classify(rm)
				m.ProfileName = names[m.From]
				b.Messages = append(b.Messages, m)
			}
			for _, s := range v.Statuses {
				b.Statuses = append(b.Statuses, Status{
					ID:          s.ID,
					RecipientID: Digits(s.RecipientID),
					Status:      s.Status,
					Timestamp:   unixTime(s.Timestamp),
					Errors:      s.Errors,
				})
			}
		}
	}
	return b, nil
}

func classify(rm rawMessage) Message {
	m := Message{
		ID:        rm.ID,
		From:      Digits(rm.From),
		Type:      rm.Type,
		Kind:      KindUnsupported,
		Timestamp: unixTime(rm.Timestamp),
	}
	switch {
	case rm.Type == "text" && rm.Text != nil:
		m.Kind = KindText
		m.Text = strings.TrimSpace(rm.Text.Body)
	case rm.Type == "interactive" && rm.Interactive != nil:
		switch {
		case rm.Interactive.ButtonReply != nil:
			m.Kind = KindSelection
			m.SelectionID = rm.Interactive.ButtonReply.ID
			m.SelectionTitle = rm.Interactive.ButtonReply.Title
		case rm.Interactive.ListReply != nil:
			m.Kind = KindSelection
			m.SelectionID = rm.Interactive.ListReply.ID
			m.SelectionTitle = rm.Interactive.ListReply.Title
		}
	case rm.Type == "button" && rm.Button != nil:
		m.Kind = KindSelection
		m.SelectionID = rm.Button.Payload
		m.SelectionTitle = rm.Button.Text
	default:
		if md, typ := mediaOf(rm); md != nil {
			m.Kind = KindMedia
			m.Media = Media{ID: md.ID, Type: typ, MimeType: md.MimeType, Caption: strings.TrimSpace(md.Caption)}
		}
	}
	return m
}

func mediaOf(rm rawMessage) (*rawMedia, string) {
	switch {
	case rm.Image != nil:
		return rm.Image, "image"
	case rm.Document != nil:
		return rm.Document, "document"
	case rm.Video != nil:
		return rm.Video, "video"
	case rm.Audio != nil:
		return rm.Audio, "audio"
	case rm.Sticker != nil:
		return rm.Sticker, "sticker"
	}
	return nil, ""
}

func unixTime(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

// Digits strips everything but 0-9 from a phone number.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
