package txlog

import (
    "context"
    "errors"
    "fmt"
    "testing"

    "github.com/iliyamo/bus-ticketing/internal/model"
)

func TestAppendAssignsMonotonicCursor(t *testing.T) {
    ctx := context.Background()
    l := NewMemoryLog()

    for i := 0; i < 5; i++ {
        ev := model.LedgerEvent{
            EntityType: "reservation",
            EntityID:   uint64(i + 1),
            EventType:  model.EventReservationHeld,
            NextState:  model.ReservationHeld,
        }
        if err := l.Append(ctx, &ev); err != nil {
            t.Fatalf("Append: %v", err)
        }
        if ev.ID != uint64(i+1) {
            t.Fatalf("cursor = %d, want %d", ev.ID, i+1)
        }
        if ev.CreatedAt.IsZero() {
            t.Fatal("CreatedAt not populated")
        }
    }
}

func TestReadSincePagesInOrder(t *testing.T) {
    ctx := context.Background()
    l := NewMemoryLog()
    for i := 0; i < 7; i++ {
        ev := model.LedgerEvent{
            EntityType: "payment",
            EntityID:   uint64(i + 1),
            EventType:  model.EventPaymentPending,
            NextState:  model.PaymentPending,
            Detail:     fmt.Sprintf(`{"n":%d}`, i),
        }
        if err := l.Append(ctx, &ev); err != nil {
            t.Fatalf("Append: %v", err)
        }
    }

    cursor := uint64(0)
    seen := make([]uint64, 0, 7)
    for {
        events, next, err := l.ReadSince(ctx, cursor, 3)
        if err != nil {
            t.Fatalf("ReadSince: %v", err)
        }
        if len(events) == 0 {
            break
        }
        for _, ev := range events {
            seen = append(seen, ev.ID)
        }
        cursor = next
    }
    if len(seen) != 7 {
        t.Fatalf("read %d events, want 7", len(seen))
    }
    for i, id := range seen {
        if id != uint64(i+1) {
            t.Fatalf("event order = %v, want ascending IDs", seen)
        }
    }
}

func TestReadSinceCaughtUp(t *testing.T) {
    ctx := context.Background()
    l := NewMemoryLog()
    ev := model.LedgerEvent{EntityType: "reservation", EntityID: 1, EventType: model.EventReservationHeld}
    _ = l.Append(ctx, &ev)

    events, next, err := l.ReadSince(ctx, ev.ID, 10)
    if err != nil {
        t.Fatalf("ReadSince: %v", err)
    }
    if len(events) != 0 || next != ev.ID {
        t.Fatalf("caught-up read = %d events, next %d", len(events), next)
    }
}

func TestReadSinceRejectsBadLimit(t *testing.T) {
    l := NewMemoryLog()
    if _, _, err := l.ReadSince(context.Background(), 0, 0); !errors.Is(err, ErrBadCursor) {
        t.Fatalf("limit 0 = %v, want ErrBadCursor", err)
    }
    if _, _, err := l.ReadSince(context.Background(), 0, 1001); !errors.Is(err, ErrBadCursor) {
        t.Fatalf("limit 1001 = %v, want ErrBadCursor", err)
    }
}
