// Package ticketcode mints ticket identifiers and converts tickets to and
// from the text carried by their QR codes.
//
// A QR payload is plain JSON with no signature.  A decoded payload is only a
// lookup key plus display data; it proves nothing about authenticity.
package ticketcode

import (
	"encoding/json"
	"io"
	"math"
	"strings"
	"time"

	"github.com/iliyamo/parking-ticket-tracker/internal/model"
)

// Encode captures the identifying fields of t, stamped with generatedAt,
// as QR text.
func Encode(t model.Ticket, generatedAt time.Time) string {
	p := model.QRPayload{
		ID:           t.ID,
		ParkingName:  t.ParkingName,
		EntryTime:    t.EntryTime.UTC(),
		PricePerHour: t.PricePerHour,
		Timestamp:    generatedAt.UTC(),
	}
	// QRPayload has no field that can fail to marshal.
	b, _ := json.Marshal(p)
	return string(b)
}

// wirePayload uses pointers so a field that is absent can be told apart from
// one that is present with a zero value.
type wirePayload struct {
	ID           *string      `json:"id"`
	ParkingName  *string      `json:"parkingName"`
	EntryTime    *time.Time   `json:"entryTime"`
	PricePerHour *json.Number `json:"pricePerHour"`
	Timestamp    *time.Time   `json:"timestamp"`
}

// Decode parses scanned QR text.  ok is false when the text is not a single
// JSON object, when id, parkingName, entryTime or pricePerHour is missing, or when
// pricePerHour is not a whole number.  A pricePerHour of 0 is accepted.
func Decode(raw string) (p model.QRPayload, ok bool) {
	var w wirePayload
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(raw)))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return model.QRPayload{}, false
	}
	// The scan must be exactly one JSON value.
	if err := dec.Decode(new(json.RawMessage)); err != io.EOF {
		return model.QRPayload{}, false
	}
	if w.ID == nil || *w.ID == "" || w.ParkingName == nil || *w.ParkingName == "" ||
		w.EntryTime == nil || w.PricePerHour == nil {
		return model.QRPayload{}, false
	}
	rate, ok := wholeNumber(*w.PricePerHour)
	if !ok {
		return model.QRPayload{}, false
	}
	p = model.QRPayload{
		ID:           *w.ID,
		ParkingName:  *w.ParkingName,
		EntryTime:    w.EntryTime.UTC(),
		PricePerHour: rate,
	}
	if w.Timestamp != nil {
		p.Timestamp = w.Timestamp.UTC()
	}
	return p, true
}

func wholeNumber(n json.Number) (int64, bool) {
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}
