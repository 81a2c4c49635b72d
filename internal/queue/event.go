// Package queue defines message payloads exchanged over the message broker.
package queue

// ReservationConfirmedEvent is published when a reservation is paid
// for and confirmed.  It contains enough information for downstream
// consumers to log, notify, or trigger analytics without querying
// the primary database.
type ReservationConfirmedEvent struct {
    ReservationID uint64 `json:"reservation_id"`
    CustomerID    uint64 `json:"customer_id"`
    TripID        uint64 `json:"trip_id"`
    Origin        string `json:"origin"`
    Destination   string `json:"destination"`
    DepartsAt     string `json:"departs_at"`
    Quantity      uint32 `json:"quantity"`
    AmountCents   uint32 `json:"amount_cents"`
    GatewayRef    string `json:"gateway_ref"`
    ConfirmedAt   string `json:"confirmed_at"`
}

// LedgerAlertEvent is published when appending to the transaction
// log fails.  The state change being recorded has already taken
// effect and is never rolled back, so the broken audit trail must
// reach an operator rather than be dropped.
type LedgerAlertEvent struct {
    EntityType string `json:"entity_type"`
    EntityID   uint64 `json:"entity_id"`
    EventType  string `json:"event_type"`
    Detail     string `json:"detail"`
    Error      string `json:"error"`
    RaisedAt   string `json:"raised_at"`
}
