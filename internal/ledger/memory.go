package ledger

import (
    "context"
    "sync"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

// MemoryLedger is an in-process ledger used by tests and local
// development.  Each trip has its own mutex, so operations on
// different trips do not contend; a hold's state and its trip's
// counters always change under the same lock.
type MemoryLedger struct {
    mu      sync.RWMutex
    entries map[uint64]*memEntry
    holds   map[string]*memHold
}

type memEntry struct {
    mu        sync.Mutex
    capacity  uint32
    confirmed uint32
    held      uint32
}

type memHold struct {
    tripID   uint64
    quantity uint32
    state    string
}

// NewMemoryLedger returns an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
    return &MemoryLedger{
        entries: make(map[uint64]*memEntry),
        holds:   make(map[string]*memHold),
    }
}

// Seed creates the ledger entry for a trip.
func (l *MemoryLedger) Seed(ctx context.Context, tripID uint64, capacity uint32) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    l.entries[tripID] = &memEntry{capacity: capacity}
    return nil
}

// TryHold claims quantity seats under the trip's lock and registers
// a HELD token.
func (l *MemoryLedger) TryHold(ctx context.Context, tripID uint64, quantity uint32) (string, error) {
    l.mu.RLock()
    e, ok := l.entries[tripID]
    l.mu.RUnlock()
    if !ok {
        return "", ErrUnknownTrip
    }

    e.mu.Lock()
    defer e.mu.Unlock()
    if e.confirmed+e.held+quantity > e.capacity {
        return "", ErrExhausted
    }
    token, err := newToken()
    if err != nil {
        return "", err
    }
    e.held += quantity

    l.mu.Lock()
    l.holds[token] = &memHold{tripID: tripID, quantity: quantity, state: model.HoldStateHeld}
    l.mu.Unlock()
    return token, nil
}

// Confirm moves the hold's quantity from held to confirmed.
func (l *MemoryLedger) Confirm(ctx context.Context, token string) error {
    return l.finalize(token, model.HoldStateConfirmed)
}

// Release returns the hold's quantity to the available pool.
func (l *MemoryLedger) Release(ctx context.Context, token string) error {
    return l.finalize(token, model.HoldStateReleased)
}

func (l *MemoryLedger) finalize(token, target string) error {
    l.mu.RLock()
    h, ok := l.holds[token]
    var e *memEntry
    if ok {
        e = l.entries[h.tripID]
    }
    l.mu.RUnlock()
    if !ok {
        return ErrHoldNotFound
    }
    if e == nil {
        return ErrCorrupt
    }

    e.mu.Lock()
    defer e.mu.Unlock()
    switch h.state {
    case target:
        return nil
    case model.HoldStateHeld:
        // fall through
    default:
        return ErrHoldFinalized
    }
    if e.held < h.quantity {
        return ErrCorrupt
    }
    e.held -= h.quantity
    if target == model.HoldStateConfirmed {
        if e.confirmed+h.quantity > e.capacity {
            return ErrCorrupt
        }
        e.confirmed += h.quantity
    }
    h.state = target
    return nil
}

// Entry reports the current counters for a trip.
func (l *MemoryLedger) Entry(ctx context.Context, tripID uint64) (model.LedgerEntry, error) {
    l.mu.RLock()
    e, ok := l.entries[tripID]
    l.mu.RUnlock()
    if !ok {
        return model.LedgerEntry{}, ErrUnknownTrip
    }
    e.mu.Lock()
    defer e.mu.Unlock()
    return model.LedgerEntry{TripID: tripID, Capacity: e.capacity, Confirmed: e.confirmed, Held: e.held}, nil
}

// Hold reports the state of a hold token.  Used by tests to assert
// finalization outcomes.
func (l *MemoryLedger) Hold(token string) (model.SeatHold, bool) {
    l.mu.RLock()
    defer l.mu.RUnlock()
    h, ok := l.holds[token]
    if !ok {
        return model.SeatHold{}, false
    }
    return model.SeatHold{Token: token, TripID: h.tripID, Quantity: h.quantity, State: h.state}, true
}
