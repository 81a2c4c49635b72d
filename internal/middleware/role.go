package middleware

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// RequireRole returns a middleware that enforces that the
// authenticated caller's Identity carries one of the specified role
// claims.  The check reads the explicit Identity placed in the
// context by JWTAuth; requests without an identity or without a
// matching role are rejected with 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            id, err := IdentityFrom(c)
            if err != nil {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
            }
            for _, role := range roles {
                if id.HasRole(role) {
                    return next(c)
                }
            }
            return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
        }
    }
}
