package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-ticketing/internal/inbound"
	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/repository"
	"github.com/iliyamo/chat-ticketing/internal/ticket"
)

// TicketService is the part of the ticket engine exposed over HTTP.
type TicketService interface {
	CreateOrder(ctx context.Context, eventID string, qty int, buyerName, buyerPhone string) (*model.Order, error)
	Issue(ctx context.Context, code string) (ticket.IssueResult, error)
	PDF(ctx context.Context, code string) ([]byte, string, error)
	Validate(ctx context.Context, code string) (ticket.ValidationResult, error)
}

// TicketHandler serves order creation, issuance, PDF download and
// validation.
type TicketHandler struct {
	Tickets TicketService
}

// orderError maps engine errors onto the JSON error taxonomy.
func orderError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, repository.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "EventNotFound"})
	case errors.Is(err, repository.ErrOrderNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "OrderNotFound"})
	case errors.Is(err, ticket.ErrInvalidQuantity), errors.Is(err, ticket.ErrInvalidBuyer):
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusGatewayTimeout, echo.Map{"ok": false, "error": "timeout"})
	}
	c.Logger().Errorf("ticket request failed: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "internal error"})
}

// PurchaseStart handles GET /purchase/start?ev=&to=&name=&qty=.  It creates
// the order and issues it in one call.
func (h *TicketHandler) PurchaseStart(c echo.Context) error {
	qty := 1
	if s := c.QueryParam("qty"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid qty"})
		}
		qty = n
	}
	eventID := strings.TrimSpace(c.QueryParam("ev"))
	if eventID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "ev is required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	o, err := h.Tickets.CreateOrder(ctx, eventID, qty, c.QueryParam("name"), inbound.Digits(c.QueryParam("to")))
	if err != nil {
		return orderError(c, err)
	}
	res, err := h.Tickets.Issue(ctx, o.Code)
	if err != nil {
		c.Logger().Errorf("issue %s: %v", o.Code, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"ok": false, "error": "issue failed", "code": o.Code})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "code": o.Code, "pdfUrl": res.PDFURL})
}

type buyerBody struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type createOrderBody struct {
	EventID string    `json:"eventId"`
	Qty     int       `json:"qty"`
	Buyer   buyerBody `json:"buyer"`
}

// CreateOrder handles POST /orders.  The order is recorded but not issued.
func (h *TicketHandler) CreateOrder(c echo.Context) error {
	var body createOrderBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid body"})
	}
	if body.Qty == 0 {
		body.Qty = 1
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	o, err := h.Tickets.CreateOrder(ctx, body.EventID, body.Qty, body.Buyer.Name, inbound.Digits(body.Buyer.Phone))
	if err != nil {
		return orderError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "order": o})
}

// Issue handles POST /tickets/issue {orderId}.  Repeated calls for the same
// order succeed without sending the ticket again.
func (h *TicketHandler) Issue(c echo.Context) error {
	var body struct {
		OrderID string `json:"orderId"`
	}
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.OrderID) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "orderId is required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 30*time.Second)
	defer cancel()

	res, err := h.Tickets.Issue(ctx, body.OrderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) || errors.Is(err, repository.ErrEventNotFound) {
			return orderError(c, err)
		}
		c.Logger().Errorf("issue %s: %v", body.OrderID, err)
		return c.JSON(http.StatusBadGateway, echo.Map{"ok": false, "error": "issue failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "pdfUrl": res.PDFURL, "alreadyIssued": res.AlreadyIssued})
}

// PDF handles GET /tickets/pdf?code=.
func (h *TicketHandler) PDF(c echo.Context) error {
	code := strings.TrimSpace(c.QueryParam("code"))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "code is required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	data, filename, err := h.Tickets.PDF(ctx, code)
	if err != nil {
		return orderError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.Blob(http.StatusOK, "application/pdf", data)
}

// Validate handles GET /validate?c=.  The first scan of a code reports
// valid, every later scan reports used.
func (h *TicketHandler) Validate(c echo.Context) error {
	code := strings.TrimSpace(c.QueryParam("c"))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "status": ticket.StatusInvalid})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Tickets.Validate(ctx, code)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "status": ticket.StatusInvalid})
	}
	if err != nil {
		return orderError(c, err)
	}
	out := echo.Map{"ok": res.Valid, "status": res.Status, "firstScan": res.FirstScan}
	if res.Order != nil {
		out["buyer"] = res.Order.BuyerName
		out["eventId"] = res.Order.EventID
		out["quantity"] = res.Order.Quantity
	}
	return c.JSON(http.StatusOK, out)
}
