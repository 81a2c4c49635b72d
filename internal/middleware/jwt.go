package middleware

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// JWTAuth returns an Echo middleware that validates a Bearer access
// token and stores the caller's Identity in the request context.
// The subject claim carries the customer ID as issued by the
// credential store; the "roles" claim carries the role list.  The
// provided secret must match the one used when issuing tokens.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimPrefix(auth, "Bearer ")

            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
                    return nil, echo.ErrUnauthorized
                }
                return []byte(secret), nil
            })
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }

            id, err := identityFromClaims(claims)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid subject"})
            }
            c.Set(identityKey, id)
            return next(c)
        }
    }
}

// identityFromClaims builds an Identity from the token's subject and
// roles claims.  The subject must be a decimal customer ID.  Roles
// may appear as a single "role" string or a "roles" array; both are
// accepted since the credential store changed its claim shape over
// time.
func identityFromClaims(claims jwt.MapClaims) (Identity, error) {
    sub, ok := claims["sub"].(string)
    if !ok || sub == "" {
        return Identity{}, ErrNoIdentity
    }
    customerID, err := strconv.ParseUint(sub, 10, 64)
    if err != nil || customerID == 0 {
        return Identity{}, ErrNoIdentity
    }
    id := Identity{CustomerID: customerID}
    if role, ok := claims["role"].(string); ok && role != "" {
        id.Roles = append(id.Roles, role)
    }
    if roles, ok := claims["roles"].([]interface{}); ok {
        for _, r := range roles {
            if s, ok := r.(string); ok && s != "" {
                id.Roles = append(id.Roles, s)
            }
        }
    }
    if len(id.Roles) == 0 {
        id.Roles = []string{RoleCustomer}
    }
    return id, nil
}
