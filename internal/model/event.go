package model

import "time"

// Ledger event types appended to the transaction log.  One event is
// written for every reservation or payment state transition.
const (
    EventReservationHeld      = "reservation.held"
    EventReservationConfirmed = "reservation.confirmed"
    EventReservationReleased  = "reservation.released"
    EventReservationExpired   = "reservation.expired"
    EventPaymentPending       = "payment.pending"
    EventPaymentSucceeded     = "payment.succeeded"
    EventPaymentFailed        = "payment.failed"
)

// LedgerEvent is an immutable audit record of a single state
// transition.  The auto-increment ID doubles as the read cursor for
// external audit tooling; events are append-only and never updated.
//
// Fields:
//  ID         – monotonic cursor position.
//  EntityType – "reservation" or "payment".
//  EntityID   – identifier of the affected entity.
//  EventType  – one of the Event* constants above.
//  PrevState  – state before the transition (empty on creation).
//  NextState  – state after the transition.
//  Detail     – free-form JSON context (trip, quantity, amounts).
//  CreatedAt  – when the event was appended.
type LedgerEvent struct {
    ID         uint64    // ledger_events.id
    EntityType string    // ledger_events.entity_type
    EntityID   uint64    // ledger_events.entity_id
    EventType  string    // ledger_events.event_type
    PrevState  string    // ledger_events.prev_state
    NextState  string    // ledger_events.next_state
    Detail     string    // ledger_events.detail (JSON)
    CreatedAt  time.Time // ledger_events.created_at
}
