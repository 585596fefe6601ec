package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/boardgame-meetup/internal/middleware"
    "github.com/iliyamo/boardgame-meetup/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// getUserID returns the authenticated caller, or an error when the
// route was registered without JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
    if id, ok := middleware.UserID(c); ok {
        return id, nil
    }
    return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

func unauthorized(c echo.Context) error {
    return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// statusFor maps a service error kind to its HTTP status.
func statusFor(err error) int {
    switch {
    case errors.Is(err, service.ErrNotFound):
        return http.StatusNotFound
    case errors.Is(err, service.ErrCapacityExceeded), errors.Is(err, service.ErrDuplicate):
        return http.StatusConflict
    case errors.Is(err, service.ErrForbidden), errors.Is(err, service.ErrNotAMember):
        return http.StatusForbidden
    case errors.Is(err, service.ErrInvalidArgument):
        return http.StatusBadRequest
    default:
        return http.StatusInternalServerError
    }
}

// serviceError writes err as {"error": message}.  Messages of internal
// errors never carry the storage cause.
func serviceError(c echo.Context, err error) error {
    msg := "internal error"
    var se *service.Error
    if errors.As(err, &se) {
        msg = se.Message
    }
    return c.JSON(statusFor(err), echo.Map{"error": msg})
}
