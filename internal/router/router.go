// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-ticketing/internal/handler"
	"github.com/iliyamo/chat-ticketing/internal/middleware"
)

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", handler.Metrics)
}

// RegisterWebhook registers the provider callback.  Both verbs share one
// path: GET is the subscription handshake, POST carries deliveries.
func RegisterWebhook(e *echo.Echo, h *handler.WebhookHandler) {
	e.GET("/webhook", h.Verify)
	e.POST("/webhook", h.Receive)
}

// RegisterTickets registers the order and ticket endpoints.  limit guards
// the routes a client can hammer (purchase and validation); pass nil to
// leave them unthrottled.
func RegisterTickets(e *echo.Echo, h *handler.TicketHandler, limit echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if limit != nil {
		mw = append(mw, limit)
	}
	e.GET("/purchase/start", h.PurchaseStart, mw...)
	e.GET("/validate", h.Validate, mw...)
	e.POST("/orders", h.CreateOrder, mw...)
	e.POST("/tickets/issue", h.Issue)
	e.GET("/tickets/pdf", h.PDF)
}

// RegisterEvents registers the event listing and the admin-gated event
// writes.  cache wraps the public reads and may be nil.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, cache echo.MiddlewareFunc, admin middleware.AdminAuthConfig) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	e.GET("/events", h.List, mw...)
	e.GET("/events/:id", h.Get, mw...)

	auth := middleware.AdminAuth(admin)
	e.POST("/events", h.Create, auth)
	e.PATCH("/events/:id", h.Update, auth)
	e.DELETE("/events/:id", h.Delete, auth)
}

// RegisterUploads serves stored banner images under /uploads.
func RegisterUploads(e *echo.Echo, dir string) {
	e.Static("/uploads", dir)
}
