package model

import "time"

// Device owns one ticket book.  Its ID is the namespace under which the
// active and historical collections are stored.
type Device struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	PasscodeHash string    `json:"passcodeHash"`
	CreatedAt    time.Time `json:"createdAt"`
}
