package model

import "time"

// Trip represents a scheduled bus departure between two cities.
// Trips are seeded by schedule management and are immutable from
// the booking core's point of view except for the availability
// derived from their seat ledger entry.
//
// Fields:
//  ID          – primary key identifier.
//  Origin      – departure city.
//  Destination – arrival city.
//  DepartsAt   – scheduled departure time (UTC).
//  Capacity    – total number of sellable seats.
//  PriceCents  – price per seat in cents.
//  CreatedAt   – creation timestamp.
type Trip struct {
    ID          uint64    // trips.id
    Origin      string    // trips.origin
    Destination string    // trips.destination
    DepartsAt   time.Time // trips.departs_at
    Capacity    uint32    // trips.capacity
    PriceCents  uint32    // trips.price_cents
    CreatedAt   time.Time // trips.created_at
}
