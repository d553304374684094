// Package queue defines message payloads exchanged over the message broker.
package queue

// TicketClosedQueue is the durable queue ticket-closed events travel on.
const TicketClosedQueue = "parking.ticket.closed"

// TicketClosedEvent is published after a ticket has moved to history.  It
// carries enough to log or bill the stay without reading the ticket store.
type TicketClosedEvent struct {
	TicketID        string `json:"ticket_id"`
	DeviceID        string `json:"device_id"`
	ParkingName     string `json:"parking_name"`
	PricePerHour    int64  `json:"price_per_hour"`
	EntryTime       string `json:"entry_time"`
	ExitTime        string `json:"exit_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Duration        string `json:"duration"`
	TotalAmount     int64  `json:"total_amount"`
	ClosedAt        string `json:"closed_at"`
}
