// Package repository defines the Message Store: the persistence contracts
// for events, orders and support tickets, plus an in-memory and a MySQL
// implementation.  The sentinel values below allow higher layers such as
// the ticket engine, the chat dispatcher and the HTTP handlers to tell
// failure scenarios apart with errors.Is.
package repository

import "errors"

// ErrEventNotFound is returned when no event matches the requested id.
// Handlers translate it into HTTP 404 or a chat message.
var ErrEventNotFound = errors.New("event not found")

// ErrOrderNotFound is returned when no order matches the requested code.
var ErrOrderNotFound = errors.New("order not found")

// ErrSupportTicketNotFound is returned when no support ticket matches the id.
var ErrSupportTicketNotFound = errors.New("support ticket not found")

// ErrDuplicateCode is returned when an order is created with a code that
// already exists.  Callers generate a fresh code and retry.
var ErrDuplicateCode = errors.New("duplicate order code")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as appending to a closed support ticket.
var ErrConflict = errors.New("conflict")
