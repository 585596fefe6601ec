package middleware

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

// UserID returns the authenticated caller's id stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(ctxUserID).(uint64)
    return id, ok && id != 0
}

// Role returns the authenticated caller's global role.
func Role(c echo.Context) string {
    r, _ := c.Get(ctxRole).(string)
    return r
}

// subject identifies the caller for rate-limit keys: the user id when
// authenticated, "anon" otherwise.
func subject(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}
