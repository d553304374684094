package ticketcode

import "github.com/google/uuid"

// NewID returns a random (version 4) UUID string.  122 of its 128 bits are
// random, so ids are never checked against existing records.
func NewID() string {
	return uuid.NewString()
}
