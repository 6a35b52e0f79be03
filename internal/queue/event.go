// Package queue defines message payloads exchanged over the message broker.
package queue

// TicketIssuedQueue is the durable queue carrying TicketIssuedEvent.
const TicketIssuedQueue = "ticket.issued"

// TicketIssuedEvent is published the first time an order's ticket is
// delivered.  It carries enough context for downstream consumers to log,
// notify or feed analytics without querying the store.
type TicketIssuedEvent struct {
	Code       string `json:"code"`
	EventID    string `json:"event_id"`
	EventTitle string `json:"event_title"`
	StartsAt   string `json:"starts_at"`
	BuyerName  string `json:"buyer_name"`
	BuyerPhone string `json:"buyer_phone"`
	Quantity   int    `json:"quantity"`
	PDFURL     string `json:"pdf_url"`
	IssuedAt   string `json:"issued_at"`
}
