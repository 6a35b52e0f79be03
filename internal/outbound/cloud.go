package outbound

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CloudConfig holds the WhatsApp Cloud API credentials.
type CloudConfig struct {
	BaseURL       string // default https://graph.facebook.com
	Version       string // default v23.0
	PhoneNumberID string
	Token         string
	AppSecret     string
	MediaTimeout  time.Duration
}

// CloudClient talks to the WhatsApp Cloud API.  When the token or phone
// number id is missing the client is disabled: sends are logged and
// reported as successful so the service can run without a provider.
type CloudClient struct {
	cfg  CloudConfig
	http *http.Client
	log  *slog.Logger
}

// NewCloudClient builds a client.  httpClient may be nil.
func NewCloudClient(cfg CloudConfig, httpClient *http.Client, log *slog.Logger) *CloudClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Version == "" {
		cfg.Version = "v23.0"
	}
	if cfg.MediaTimeout <= 0 {
		cfg.MediaTimeout = 20 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &CloudClient{cfg: cfg, http: httpClient, log: log}
}

// Enabled reports whether credentials are configured.
func (c *CloudClient) Enabled() bool {
	return c.cfg.Token != "" && c.cfg.PhoneNumberID != ""
}

// Send posts m to the messages endpoint.
func (c *CloudClient) Send(ctx context.Context, m Message) error {
	if !c.Enabled() {
		c.log.Info("whatsapp disabled, message not sent", "phone", m.To, "kind", m.Kind)
		return nil
	}
	payload, err := buildPayload(m)
	if err != nil {
		return err
	}
	return c.postMessages(ctx, payload)
}

// MarkRead flags an inbound message as read.
func (c *CloudClient) MarkRead(ctx context.Context, messageID string) error {
	if !c.Enabled() || messageID == "" {
		return nil
	}
	return c.postMessages(ctx, map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	})
}

func (c *CloudClient) postMessages(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	endpoint := c.endpoint(c.cfg.PhoneNumberID + "/messages")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// endpoint returns the Graph URL for path with appsecret_proof attached
// when an app secret is configured.
func (c *CloudClient) endpoint(path string) string {
	u := c.cfg.BaseURL + "/" + c.cfg.Version + "/" + path
	if proof := c.appSecretProof(); proof != "" {
		u += "?appsecret_proof=" + url.QueryEscape(proof)
	}
	return u
}

func (c *CloudClient) appSecretProof() string {
	if c.cfg.AppSecret == "" || c.cfg.Token == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(c.cfg.AppSecret))
	mac.Write([]byte(c.cfg.Token))
	return hex.EncodeToString(mac.Sum(nil))
}

// DownloadMedia fetches an inbound attachment.  The Graph API first returns
// a short-lived URL for the media id, which is then fetched with the same
// bearer token.  The whole exchange is bounded by MediaTimeout.
func (c *CloudClient) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	if !c.Enabled() {
		return nil, "", fmt.Errorf("%w: whatsapp disabled", ErrTransport)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MediaTimeout)
	defer cancel()

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	raw, _, err := c.get(ctx, c.endpoint(url.PathEscape(mediaID)))
	if err != nil {
		return nil, "", err
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.URL == "" {
		return nil, "", fmt.Errorf("%w: media %s: no url", ErrTransport, mediaID)
	}
	data, ctype, err := c.get(ctx, meta.URL)
	if err != nil {
		return nil, "", err
	}
	if meta.MimeType != "" {
		ctype = meta.MimeType
	}
	return data, ctype, nil
}

func (c *CloudClient) get(ctx context.Context, u string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("%w: GET status %d", ErrTransport, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

func buildPayload(m Message) (map[string]any, error) {
	p := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                m.To,
	}
	switch m.Kind {
	case KindText:
		p["type"] = "text"
		p["text"] = map[string]any{"preview_url": false, "body": m.Body}
	case KindButtons:
		buttons := make([]map[string]any, 0, len(m.Buttons))
		for _, b := range m.Buttons {
			buttons = append(buttons, map[string]any{
				"type":  "reply",
				"reply": map[string]string{"id": b.ID, "title": b.Title},
			})
		}
		p["type"] = "interactive"
		p["interactive"] = map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": m.Body},
			"action": map[string]any{"buttons": buttons},
		}
	case KindList:
		sections := make([]map[string]any, 0, len(m.List.Sections))
		for _, s := range m.List.Sections {
			rows := make([]map[string]string, 0, len(s.Rows))
			for _, r := range s.Rows {
				row := map[string]string{"id": r.ID, "title": r.Title}
				if r.Description != "" {
					row["description"] = r.Description
				}
				rows = append(rows, row)
			}
			sec := map[string]any{"rows": rows}
			if s.Title != "" {
				sec["title"] = s.Title
			}
			sections = append(sections, sec)
		}
		inter := map[string]any{
			"type":   "list",
			"body":   map[string]string{"text": m.List.Body},
			"action": map[string]any{"button": m.List.Button, "sections": sections},
		}
		if m.List.Header != "" {
			inter["header"] = map[string]string{"type": "text", "text": m.List.Header}
		}
		if m.List.Footer != "" {
			inter["footer"] = map[string]string{"text": m.List.Footer}
		}
		p["type"] = "interactive"
		p["interactive"] = inter
	case KindDocument:
		doc := map[string]string{"link": m.Attachment.Link, "filename": m.Attachment.Filename}
		if m.Attachment.Caption != "" {
			doc["caption"] = m.Attachment.Caption
		}
		p["type"] = "document"
		p["document"] = doc
	case KindImage:
		img := map[string]string{"link": m.Attachment.Link}
		if m.Attachment.Caption != "" {
			img["caption"] = m.Attachment.Caption
		}
		p["type"] = "image"
		p["image"] = img
	default:
		return nil, fmt.Errorf("outbound: unknown message kind %q", m.Kind)
	}
	return p, nil
}
