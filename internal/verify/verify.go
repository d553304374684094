// Package verify checks a scanned ticket id against a snapshot of every
// known ticket.  It performs no I/O.
package verify

import "github.com/iliyamo/parking-ticket-tracker/internal/model"

// Verification outcomes.
const (
	StatusActive   = "active"
	StatusClosed   = "closed"
	StatusNotFound = "not_found"
)

// Result is the outcome of Verify.  Ticket is nil when the id is unknown.
type Result struct {
	Found   bool          `json:"found"`
	Ticket  *model.Ticket `json:"ticket,omitempty"`
	Status  string        `json:"status"`
	Message string        `json:"message"`
}

// Verify looks id up in tickets, which should be the active and historical
// collections together.  A ticket with no exit time, or one explicitly
// marked active, verifies as active; anything else found is closed.
func Verify(tickets []model.Ticket, id string) Result {
	for i := range tickets {
		if tickets[i].ID != id {
			continue
		}
		t := tickets[i]
		if t.ExitTime == nil || t.Status == model.StatusActive {
			return Result{Found: true, Ticket: &t, Status: StatusActive, Message: "Ticket is valid and currently active"}
		}
		return Result{Found: true, Ticket: &t, Status: StatusClosed, Message: "Ticket has already been closed"}
	}
	return Result{Found: false, Status: StatusNotFound, Message: "Ticket not found on this device"}
}
