// Package repository owns the persisted collections of the service.  The
// sentinel errors below let the HTTP layer tell the failure classes apart:
// bad input, an unknown id, and a storage failure.
package repository

import "errors"

// ErrInvalidTicket is returned before anything is written when a ticket
// cannot be opened or closed with the given input.  Handlers should
// translate this into an HTTP 400 response.
var ErrInvalidTicket = errors.New("invalid ticket")

// ErrTicketNotFound is returned by Close when the id is not an active
// ticket, and by FindByID and DeleteFromHistory when it is not stored at
// all.  Handlers should translate this into an HTTP 404 response.
var ErrTicketNotFound = errors.New("ticket not found")

// ErrPersistence wraps any failure of the underlying key-value store,
// including a stored collection that no longer decodes.  Nothing is
// retried.  Handlers should translate this into an HTTP 500 response.
var ErrPersistence = errors.New("persistence failure")

// ErrDeviceNotFound is returned when a device id has never been registered.
var ErrDeviceNotFound = errors.New("device not found")
