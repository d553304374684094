package model

import "time"

// Ticket status values.  Status is stored alongside ExitTime for the
// external representation; IsActive derives it from ExitTime instead.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// MaxPricePerHour is the highest hourly rate a ticket may be opened with.
const MaxPricePerHour int64 = 1_000_000_000

// Ticket records a single parking session from entry to exit.
//
// Fields:
//  ID            – opaque identifier minted at open time.
//  ParkingName   – free-text label of the car park.
//  PricePerHour  – hourly rate in the fixed currency unit, 1..MaxPricePerHour.
//  EntryTime     – instant the car entered, UTC.
//  ExitTime      – instant the car left; nil while active.
//  TotalAmount   – fee fixed at close time; nil while active.
//  Status        – "active" or "closed".
//  QRCodePayload – QR text captured at open time; never rewritten.
//  CreatedAt     – when the record was created.
type Ticket struct {
	ID            string     `json:"id"`
	ParkingName   string     `json:"parkingName"`
	PricePerHour  int64      `json:"pricePerHour"`
	EntryTime     time.Time  `json:"entryTime"`
	ExitTime      *time.Time `json:"exitTime,omitempty"`
	TotalAmount   *int64     `json:"totalAmount,omitempty"`
	Status        string     `json:"status"`
	QRCodePayload string     `json:"qrCodePayload"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// IsActive reports whether the ticket is still open.  ExitTime is the source
// of truth; a record with no exit time is active whatever Status says.
func (t Ticket) IsActive() bool {
	return t.ExitTime == nil
}

// Closed returns a copy of t with the exit fields set and Status "closed".
// The QR payload is carried over unchanged.
func (t Ticket) Closed(exit time.Time, amount int64) Ticket {
	exit = exit.UTC()
	t.ExitTime = &exit
	t.TotalAmount = &amount
	t.Status = StatusClosed
	return t
}

// QRPayload is the structure embedded in a ticket's QR code.  Timestamp is
// the instant the payload was generated.
type QRPayload struct {
	ID           string    `json:"id"`
	ParkingName  string    `json:"parkingName"`
	EntryTime    time.Time `json:"entryTime"`
	PricePerHour int64     `json:"pricePerHour"`
	Timestamp    time.Time `json:"timestamp"`
}
