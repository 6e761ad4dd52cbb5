package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/secondhand-market/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the account id (uint64) and role claim in the request
// context under CtxUserID and CtxRole.  Requests without a valid token
// are rejected with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw, ok := bearer(c)
            if !ok {
                return unauthorized(c, "Sign in required")
            }
            if !authenticate(c, secret, raw) {
                return unauthorized(c, "Invalid or expired token")
            }
            return next(c)
        }
    }
}

// OptionalJWT authenticates the request when a valid Bearer token is
// present and otherwise lets it through as a guest.  Public endpoints
// whose output depends on the viewer (listing detail) use it.
func OptionalJWT(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if raw, ok := bearer(c); ok {
                authenticate(c, secret, raw)
            }
            return next(c)
        }
    }
}

// bearer extracts the token from the Authorization header.  EventSource
// clients cannot set headers, so the access_token query parameter is
// accepted as well.
func bearer(c echo.Context) (string, bool) {
    auth := c.Request().Header.Get("Authorization")
    if strings.HasPrefix(auth, "Bearer ") {
        raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
        return raw, raw != ""
    }
    if raw := c.QueryParam("access_token"); raw != "" {
        return raw, true
    }
    return "", false
}

func authenticate(c echo.Context, secret, raw string) bool {
    claims, err := utils.ParseAccessToken(secret, raw)
    if err != nil {
        return false
    }
    id, _ := claims.UserID()
    c.Set(CtxUserID, id)
    c.Set(CtxRole, claims.Role)
    return true
}

func unauthorized(c echo.Context, msg string) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": msg})
}
