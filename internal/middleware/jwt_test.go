package middleware

import (
    "net/http"
    "net/http/httptest"
    "testing"
    "time"

    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
    t.Helper()
    tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    raw, err := tok.SignedString([]byte(testSecret))
    if err != nil {
        t.Fatalf("sign token: %v", err)
    }
    return raw
}

func doRequest(t *testing.T, token string) (*httptest.ResponseRecorder, Identity) {
    t.Helper()
    e := echo.New()
    var captured Identity
    h := JWTAuth(testSecret)(func(c echo.Context) error {
        id, err := IdentityFrom(c)
        if err != nil {
            return err
        }
        captured = id
        return c.NoContent(http.StatusOK)
    })
    req := httptest.NewRequest(http.MethodGet, "/", nil)
    if token != "" {
        req.Header.Set("Authorization", "Bearer "+token)
    }
    rec := httptest.NewRecorder()
    if err := h(e.NewContext(req, rec)); err != nil {
        t.Fatalf("handler: %v", err)
    }
    return rec, captured
}

func TestJWTAuthAcceptsValidToken(t *testing.T) {
    token := signToken(t, jwt.MapClaims{
        "sub":   "42",
        "roles": []string{RoleCustomer},
        "exp":   time.Now().Add(time.Hour).Unix(),
    })
    rec, id := doRequest(t, token)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200", rec.Code)
    }
    if id.CustomerID != 42 || !id.HasRole(RoleCustomer) {
        t.Fatalf("identity = %+v", id)
    }
}

func TestJWTAuthSingleRoleClaim(t *testing.T) {
    token := signToken(t, jwt.MapClaims{
        "sub":  "7",
        "role": RoleAdmin,
        "exp":  time.Now().Add(time.Hour).Unix(),
    })
    rec, id := doRequest(t, token)
    if rec.Code != http.StatusOK {
        t.Fatalf("status = %d, want 200", rec.Code)
    }
    if !id.HasRole(RoleAdmin) {
        t.Fatalf("identity = %+v, want ADMIN role", id)
    }
}

func TestJWTAuthDefaultsToCustomerRole(t *testing.T) {
    token := signToken(t, jwt.MapClaims{
        "sub": "9",
        "exp": time.Now().Add(time.Hour).Unix(),
    })
    _, id := doRequest(t, token)
    if !id.HasRole(RoleCustomer) {
        t.Fatalf("identity = %+v, want default CUSTOMER role", id)
    }
}

func TestJWTAuthRejectsMissingToken(t *testing.T) {
    rec, _ := doRequest(t, "")
    if rec.Code != http.StatusUnauthorized {
        t.Fatalf("status = %d, want 401", rec.Code)
    }
}

func TestJWTAuthRejectsExpiredToken(t *testing.T) {
    token := signToken(t, jwt.MapClaims{
        "sub": "42",
        "exp": time.Now().Add(-time.Hour).Unix(),
    })
    rec, _ := doRequest(t, token)
    if rec.Code != http.StatusUnauthorized {
        t.Fatalf("status = %d, want 401", rec.Code)
    }
}

func TestJWTAuthRejectsWrongSecret(t *testing.T) {
    tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
        "sub": "42",
        "exp": time.Now().Add(time.Hour).Unix(),
    })
    raw, err := tok.SignedString([]byte("other-secret"))
    if err != nil {
        t.Fatalf("sign token: %v", err)
    }
    rec, _ := doRequest(t, raw)
    if rec.Code != http.StatusUnauthorized {
        t.Fatalf("status = %d, want 401", rec.Code)
    }
}

func TestJWTAuthRejectsNonNumericSubject(t *testing.T) {
    token := signToken(t, jwt.MapClaims{
        "sub": "not-a-number",
        "exp": time.Now().Add(time.Hour).Unix(),
    })
    rec, _ := doRequest(t, token)
    if rec.Code != http.StatusUnauthorized {
        t.Fatalf("status = %d, want 401", rec.Code)
    }
}

func TestRequireRole(t *testing.T) {
    e := echo.New()
    next := func(c echo.Context) error { return c.NoContent(http.StatusOK) }

    run := func(id *Identity, roles ...string) int {
        req := httptest.NewRequest(http.MethodGet, "/", nil)
        rec := httptest.NewRecorder()
        c := e.NewContext(req, rec)
        if id != nil {
            c.Set(identityKey, *id)
        }
        if err := RequireRole(roles...)(next)(c); err != nil {
            t.Fatalf("middleware: %v", err)
        }
        return rec.Code
    }

    if code := run(&Identity{CustomerID: 1, Roles: []string{RoleAdmin}}, RoleAdmin); code != http.StatusOK {
        t.Fatalf("admin with ADMIN requirement = %d, want 200", code)
    }
    if code := run(&Identity{CustomerID: 1, Roles: []string{RoleCustomer}}, RoleAdmin); code != http.StatusForbidden {
        t.Fatalf("customer with ADMIN requirement = %d, want 403", code)
    }
    if code := run(nil, RoleAdmin); code != http.StatusForbidden {
        t.Fatalf("no identity = %d, want 403", code)
    }
}
