package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-ticketing/internal/webhook"
)

// maxWebhookBody caps how much of a delivery is read.
const maxWebhookBody = 1 << 20

// WebhookHandler serves the provider callback endpoint.
type WebhookHandler struct {
	Gateway *webhook.Gateway
}

// Verify answers GET /webhook, the subscription handshake.
func (h *WebhookHandler) Verify(c echo.Context) error {
	challenge, err := h.Gateway.VerifyChallenge(
		c.QueryParam("hub.mode"),
		c.QueryParam("hub.verify_token"),
		c.QueryParam("hub.challenge"),
	)
	if err != nil {
		return c.String(http.StatusForbidden, "Forbidden")
	}
	return c.String(http.StatusOK, challenge)
}

// Receive answers POST /webhook.  The delivery is acknowledged as soon as
// its signature checks out; messages are processed afterwards.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.String(http.StatusBadRequest, "Bad Request")
	}
	if err := h.Gateway.Receive(body, c.Request().Header.Get("X-Hub-Signature-256")); err != nil {
		if errors.Is(err, webhook.ErrBadSignature) {
			return c.String(http.StatusForbidden, "Forbidden")
		}
		c.Logger().Errorf("webhook receive: %v", err)
	}
	return c.String(http.StatusOK, "OK")
}
