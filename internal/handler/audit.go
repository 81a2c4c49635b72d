package handler

import (
    "encoding/json"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/bus-ticketing/internal/txlog"
)

// AuditHandler exposes the transaction log to audit tooling.  The
// router restricts it to admin identities.
type AuditHandler struct {
    Log txlog.Log
}

// NewAuditHandler constructs an AuditHandler over the given log.
func NewAuditHandler(log txlog.Log) *AuditHandler {
    if log == nil {
        panic("nil log passed to NewAuditHandler")
    }
    return &AuditHandler{Log: log}
}

// Events handles GET /v1/audit/events.  Query parameters: cursor (the
// position to resume from, default 0) and limit (default 100, max
// 1000).  The response carries the events in order plus next_cursor
// to pass on the following call.
func (h *AuditHandler) Events(c echo.Context) error {
    cursor := uint64(0)
    if raw := c.QueryParam("cursor"); raw != "" {
        n, err := strconv.ParseUint(raw, 10, 64)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid cursor"})
        }
        cursor = n
    }
    limit := 100
    if raw := c.QueryParam("limit"); raw != "" {
        n, err := strconv.Atoi(raw)
        if err != nil {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid limit"})
        }
        limit = n
    }

    events, next, err := h.Log.ReadSince(c.Request().Context(), cursor, limit)
    if err != nil {
        if errors.Is(err, txlog.ErrBadCursor) {
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid cursor or limit"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read events"})
    }

    type view struct {
        ID         uint64          `json:"id"`
        EntityType string          `json:"entity_type"`
        EntityID   uint64          `json:"entity_id"`
        EventType  string          `json:"event_type"`
        PrevState  string          `json:"prev_state,omitempty"`
        NextState  string          `json:"next_state"`
        Detail     json.RawMessage `json:"detail,omitempty"`
        CreatedAt  string          `json:"created_at"`
    }
    views := make([]view, 0, len(events))
    for _, ev := range events {
        views = append(views, view{
            ID:         ev.ID,
            EntityType: ev.EntityType,
            EntityID:   ev.EntityID,
            EventType:  ev.EventType,
            PrevState:  ev.PrevState,
            NextState:  ev.NextState,
            Detail:     json.RawMessage(ev.Detail),
            CreatedAt:  ev.CreatedAt.UTC().Format(time.RFC3339),
        })
    }
    return c.JSON(http.StatusOK, echo.Map{"events": views, "next_cursor": next})
}
