// Package middleware holds the Echo middleware shared by every route
// group: bearer authentication, role checks, Redis rate limiting and
// the Redis response cache.
package middleware

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/boardgame-meetup/internal/utils"
)

// Context keys set by JWTAuth.
const (
    ctxUserID = "user_id"
    ctxRole   = "role"
)

// JWTAuth validates a Bearer access token and stores the caller's id
// (uint64) and role (string) in the context under "user_id" and "role".
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            raw, ok := strings.CutPrefix(auth, "Bearer ")
            if !ok || strings.TrimSpace(raw) == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            id, role, err := utils.ParseAccessToken(secret, strings.TrimSpace(raw))
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }
            c.Set(ctxUserID, id)
            c.Set(ctxRole, role)
            return next(c)
        }
    }
}
