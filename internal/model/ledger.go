package model

import "time"

// Hold state values stored in seat_holds.state.  A hold starts out
// HELD and is finalized exactly once, either into CONFIRMED (the
// seats were sold) or RELEASED (the seats went back on sale).
const (
    HoldStateHeld      = "HELD"
    HoldStateConfirmed = "CONFIRMED"
    HoldStateReleased  = "RELEASED"
)

// LedgerEntry is the authoritative per-trip seat counter as stored
// in the seat_ledger table.  The invariant Confirmed + Held <=
// Capacity must hold at all times; the ledger is the only writer of
// these counts and enforces it with conditional updates.
//
// Fields:
//  TripID    – trip the entry accounts for.
//  Capacity  – total sellable seats, copied from the trip at seed time.
//  Confirmed – seats sold (paid for).
//  Held      – seats temporarily held pending payment.
type LedgerEntry struct {
    TripID    uint64 // seat_ledger.trip_id
    Capacity  uint32 // seat_ledger.capacity
    Confirmed uint32 // seat_ledger.confirmed
    Held      uint32 // seat_ledger.held
}

// Available returns the number of seats that can still be held.
func (e LedgerEntry) Available() uint32 {
    used := e.Confirmed + e.Held
    if used >= e.Capacity {
        return 0
    }
    return e.Capacity - used
}

// SeatHold is a quantity-based hold against a trip's ledger entry.
// The token is opaque to callers and is the idempotency handle for
// Confirm and Release.
//
// Fields:
//  Token       – unique random token identifying the hold.
//  TripID      – trip whose seats are held.
//  Quantity    – number of seats covered by the hold.
//  State       – HELD, CONFIRMED or RELEASED.
//  CreatedAt   – when the hold was taken.
//  FinalizedAt – when the hold left the HELD state (nullable).
type SeatHold struct {
    Token       string     // seat_holds.token
    TripID      uint64     // seat_holds.trip_id
    Quantity    uint32     // seat_holds.quantity
    State       string     // seat_holds.state
    CreatedAt   time.Time  // seat_holds.created_at
    FinalizedAt *time.Time // seat_holds.finalized_at (nullable)
}
