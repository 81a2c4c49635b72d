// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// the booking services and handlers to distinguish between different
// failure scenarios with errors.Is instead of inspecting driver
// errors. For example, ErrTripNotFound indicates that a trip does
// not exist, while ErrStaleTransition signals that a guarded state
// change found the row in a different state than expected.
package repository

import "errors"

// ErrTripNotFound is returned when a trip lookup matches no row.
// Handlers should translate this into an HTTP 404 response.
var ErrTripNotFound = errors.New("trip not found")

// ErrReservationNotFound is returned when a reservation lookup
// matches no row. Handlers should translate this into an HTTP 404
// response.
var ErrReservationNotFound = errors.New("reservation not found")

// ErrForbidden is returned when the caller attempts an operation
// on a reservation they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrStaleTransition is returned when a guarded state transition
// (UPDATE ... WHERE state = ?) affects no rows because the entity
// already left the expected state. Callers treat this as losing a
// race, not as a failure.
var ErrStaleTransition = errors.New("stale state transition")

// ErrDuplicateTrip is returned when seeding a trip whose ledger
// entry already exists.
var ErrDuplicateTrip = errors.New("trip already seeded")
