package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/chat-ticketing/internal/input"
	"github.com/iliyamo/chat-ticketing/internal/model"
	"github.com/iliyamo/chat-ticketing/internal/repository"
)

// EventHandler serves the public event listing and the admin event API.
type EventHandler struct {
	Store    repository.EventStore
	Location *time.Location
	// OnChange runs after every successful write, e.g. to purge cached
	// listings.  Optional.
	OnChange func(ctx context.Context)
}

// eventBody is the JSON accepted by create and patch.  Date takes the same
// forms as the chat wizard; price takes a number or a string.
type eventBody struct {
	Title *string          `json:"title"`
	City  *string          `json:"city"`
	Venue *string          `json:"venue"`
	Date  *string          `json:"date"`
	Price *decimal.Decimal `json:"price"`
	Media *string          `json:"media"`
}

func trimmed(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// apply copies the set fields of b onto ev.
func (b eventBody) apply(ev *model.Event, loc *time.Location) error {
	if b.Title != nil {
		if ev.Title = trimmed(b.Title); ev.Title == "" {
			return errors.New("title must not be empty")
		}
	}
	if b.City != nil {
		ev.City = trimmed(b.City)
	}
	if b.Venue != nil {
		ev.Venue = trimmed(b.Venue)
	}
	if b.Date != nil {
		at, err := input.ParseDate(*b.Date, loc)
		if err != nil {
			return errors.New("invalid date")
		}
		ev.Date = at.UTC()
	}
	if b.Price != nil {
		if b.Price.IsNegative() {
			return errors.New("price must not be negative")
		}
		ev.Price = b.Price.Round(2)
	}
	if b.Media != nil {
		ev.MediaURL = trimmed(b.Media)
	}
	return nil
}

func (h *EventHandler) changed(ctx context.Context) {
	if h.OnChange != nil {
		h.OnChange(ctx)
	}
}

// List handles GET /events, sorted by date.  The optional city query
// narrows the result.
func (h *EventHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	events, err := h.Store.ListEvents(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "database error"})
	}
	if city := strings.TrimSpace(c.QueryParam("city")); city != "" {
		out := events[:0]
		for _, ev := range events {
			if strings.EqualFold(ev.City, city) {
				out = append(out, ev)
			}
		}
		events = out
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "items": events})
}

// Get handles GET /events/:id.
func (h *EventHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	ev, err := h.Store.GetEvent(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrEventNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "EventNotFound"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "event": ev})
}

// Create handles POST /events.  Title and date are required.
func (h *EventHandler) Create(c echo.Context) error {
	var body eventBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid body"})
	}
	if trimmed(body.Title) == "" || trimmed(body.Date) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "title and date are required"})
	}
	now := time.Now().UTC()
	ev := &model.Event{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	if err := body.apply(ev, h.Location); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Store.CreateEvent(ctx, ev); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "database error"})
	}
	h.changed(ctx)
	return c.JSON(http.StatusCreated, echo.Map{"ok": true, "event": ev})
}

// Update handles PATCH /events/:id.  Only the fields present are changed.
func (h *EventHandler) Update(c echo.Context) error {
	var body eventBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": "invalid body"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ev, err := h.Store.GetEvent(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrEventNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "EventNotFound"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "database error"})
	}
	if err := body.apply(ev, h.Location); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"ok": false, "error": err.Error()})
	}
	ev.UpdatedAt = time.Now().UTC()
	if err := h.Store.UpdateEvent(ctx, ev); err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "EventNotFound"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "database error"})
	}
	h.changed(ctx)
	return c.JSON(http.StatusOK, echo.Map{"ok": true, "event": ev})
}

// Delete handles DELETE /events/:id.
func (h *EventHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	err := h.Store.DeleteEvent(ctx, c.Param("id"))
	if errors.Is(err, repository.ErrEventNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"ok": false, "error": "EventNotFound"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"ok": false, "error": "database error"})
	}
	h.changed(ctx)
	return c.NoContent(http.StatusNoContent)
}
