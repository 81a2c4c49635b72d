package txlog

import (
    "context"
    "sync"
    "time"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

// MemoryLog keeps events in a slice.  Used by tests and local
// development.
type MemoryLog struct {
    mu     sync.Mutex
    events []model.LedgerEvent
}

// NewMemoryLog returns an empty in-memory log.
func NewMemoryLog() *MemoryLog { return &MemoryLog{} }

// Append assigns the next cursor position and stores the event.
func (l *MemoryLog) Append(ctx context.Context, ev *model.LedgerEvent) error {
    l.mu.Lock()
    defer l.mu.Unlock()
    ev.ID = uint64(len(l.events)) + 1
    ev.CreatedAt = time.Now().UTC()
    l.events = append(l.events, *ev)
    return nil
}

// ReadSince returns up to limit events with ID greater than cursor.
func (l *MemoryLog) ReadSince(ctx context.Context, cursor uint64, limit int) ([]model.LedgerEvent, uint64, error) {
    if limit <= 0 || limit > 1000 {
        return nil, cursor, ErrBadCursor
    }
    l.mu.Lock()
    defer l.mu.Unlock()
    out := make([]model.LedgerEvent, 0, limit)
    next := cursor
    for _, ev := range l.events {
        if ev.ID <= cursor {
            continue
        }
        out = append(out, ev)
        next = ev.ID
        if len(out) == limit {
            break
        }
    }
    return out, next, nil
}
