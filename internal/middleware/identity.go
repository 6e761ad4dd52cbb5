package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// Context keys written by JWTAuth and OptionalJWT.
const (
    CtxUserID = "user_id"
    CtxRole   = "role"
)

// UserID returns the authenticated account id, or 0 for guests.
func UserID(c echo.Context) uint64 {
    if id, ok := c.Get(CtxUserID).(uint64); ok {
        return id
    }
    return 0
}

// Role returns the role claim of the authenticated account, or "".
func Role(c echo.Context) string {
    r, _ := c.Get(CtxRole).(string)
    return r
}

// currentUserID is the string form used in rate-limit keys; guests share
// the "anon" bucket of their strategy.
func currentUserID(c echo.Context) string {
    if id := UserID(c); id != 0 {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
