package txlog

import (
    "context"
    "database/sql"
    "time"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

// SQLLog stores events in the ledger_events table.  The
// auto-increment primary key is the cursor, so ordering is assigned
// by the database and ReadSince needs no extra bookkeeping.
type SQLLog struct {
    db *sql.DB
}

// NewSQLLog returns a log backed by the provided database.
func NewSQLLog(db *sql.DB) *SQLLog { return &SQLLog{db: db} }

// Append inserts the event and populates its cursor position and
// timestamp.
func (l *SQLLog) Append(ctx context.Context, ev *model.LedgerEvent) error {
    const q = `INSERT INTO ledger_events (entity_type, entity_id, event_type, prev_state, next_state, detail)
               VALUES (?, ?, ?, ?, ?, ?)`
    result, err := l.db.ExecContext(ctx, q,
        ev.EntityType, ev.EntityID, ev.EventType, ev.PrevState, ev.NextState, ev.Detail)
    if err != nil {
        return err
    }
    id, err := result.LastInsertId()
    if err != nil {
        return err
    }
    ev.ID = uint64(id)
    ev.CreatedAt = time.Now().UTC()
    return nil
}

// ReadSince returns up to limit events with ID greater than cursor,
// oldest first, together with the cursor to resume from.
func (l *SQLLog) ReadSince(ctx context.Context, cursor uint64, limit int) ([]model.LedgerEvent, uint64, error) {
    if limit <= 0 || limit > 1000 {
        return nil, cursor, ErrBadCursor
    }
    const q = `SELECT id, entity_type, entity_id, event_type, prev_state, next_state, detail, created_at
               FROM ledger_events
               WHERE id > ?
               ORDER BY id ASC
               LIMIT ?`
    rows, err := l.db.QueryContext(ctx, q, cursor, limit)
    if err != nil {
        return nil, cursor, err
    }
    defer rows.Close()
    events := make([]model.LedgerEvent, 0, limit)
    next := cursor
    for rows.Next() {
        var ev model.LedgerEvent
        if err := rows.Scan(&ev.ID, &ev.EntityType, &ev.EntityID, &ev.EventType,
            &ev.PrevState, &ev.NextState, &ev.Detail, &ev.CreatedAt); err != nil {
            return nil, cursor, err
        }
        events = append(events, ev)
        next = ev.ID
    }
    if err := rows.Err(); err != nil {
        return nil, cursor, err
    }
    return events, next, nil
}
