package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health answers liveness probes with a plain 200 "ok".  It must
// stay dependency-free: a degraded database or broker should not
// make the load balancer pull the instance.
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}
