package verify

import (
	"testing"
	"time"

	"github.com/iliyamo/parking-ticket-tracker/internal/model"
)

func TestVerify(t *testing.T) {
	exit := time.Date(2026, 3, 14, 11, 10, 0, 0, time.UTC)
	amount := int64(150)
	active := model.Ticket{ID: "a", Status: model.StatusActive}
	closed := model.Ticket{ID: "c", Status: model.StatusClosed, ExitTime: &exit, TotalAmount: &amount}
	// Stored status disagrees with exit time; the active reading wins.
	inconsistent := model.Ticket{ID: "i", Status: model.StatusActive, ExitTime: &exit}
	noExit := model.Ticket{ID: "n", Status: model.StatusClosed}
	all := []model.Ticket{active, closed, inconsistent, noExit}

	cases := []struct {
		id     string
		found  bool
		status string
	}{
		{"a", true, StatusActive},
		{"c", true, StatusClosed},
		{"i", true, StatusActive},
		{"n", true, StatusActive},
		{"zzz", false, StatusNotFound},
		{"", false, StatusNotFound},
	}
	for _, tt := range cases {
		got := Verify(all, tt.id)
		if got.Found != tt.found || got.Status != tt.status {
			t.Fatalf("Verify(%q)=%+v, want found=%v status=%s", tt.id, got, tt.found, tt.status)
		}
		if tt.found && (got.Ticket == nil || got.Ticket.ID != tt.id) {
			t.Fatalf("Verify(%q) ticket=%+v", tt.id, got.Ticket)
		}
		if !tt.found && got.Ticket != nil {
			t.Fatalf("Verify(%q) returned a ticket for an unknown id", tt.id)
		}
		if got.Message == "" {
			t.Fatalf("Verify(%q) has no message", tt.id)
		}
	}
}

func TestVerifyEmptySnapshot(t *testing.T) {
	if got := Verify(nil, "a"); got.Found || got.Status != StatusNotFound {
		t.Fatalf("Verify(nil)=%+v", got)
	}
}
