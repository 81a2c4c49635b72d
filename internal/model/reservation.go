package model

import "time"

// Reservation state values.  A reservation begins HELD and moves to
// exactly one of the terminal states: CONFIRMED when payment
// succeeds, RELEASED when the customer cancels, EXPIRED when the
// hold TTL elapses without payment.  There is no transition out of
// a terminal state.
const (
    ReservationHeld      = "HELD"
    ReservationConfirmed = "CONFIRMED"
    ReservationReleased  = "RELEASED"
    ReservationExpired   = "EXPIRED"
)

// Reservation records a customer's time-boxed claim on seats for a
// trip.  The HoldToken links the reservation to its seat ledger
// hold; both are finalized together.
//
// Fields:
//  ID          – primary key identifier.
//  TripID      – trip being booked.
//  CustomerID  – customer who made the reservation (from identity claims).
//  Quantity    – number of seats reserved.
//  State       – HELD, CONFIRMED, RELEASED or EXPIRED.
//  HoldToken   – seat ledger hold backing this reservation.
//  AmountCents – total price in cents (quantity × trip price).
//  ExpiresAt   – when the hold lapses if unpaid.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last state change timestamp.
type Reservation struct {
    ID          uint64    // reservations.id
    TripID      uint64    // reservations.trip_id
    CustomerID  uint64    // reservations.customer_id
    Quantity    uint32    // reservations.quantity
    State       string    // reservations.state
    HoldToken   string    // reservations.hold_token
    AmountCents uint32    // reservations.amount_cents
    ExpiresAt   time.Time // reservations.expires_at
    CreatedAt   time.Time // reservations.created_at
    UpdatedAt   time.Time // reservations.updated_at
}

// ExpiredAt reports whether the reservation's hold has lapsed as of
// the given instant.  Only meaningful while the reservation is HELD.
func (r *Reservation) ExpiredAt(now time.Time) bool {
    return !now.Before(r.ExpiresAt)
}

// Terminal reports whether the reservation is in a final state.
func (r *Reservation) Terminal() bool {
    return r.State != ReservationHeld
}
