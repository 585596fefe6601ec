// Package router defines how HTTP routes are registered for the API.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/boardgame-meetup/internal/handler"
	"github.com/iliyamo/boardgame-meetup/internal/middleware"
	"github.com/iliyamo/boardgame-meetup/internal/model"
)

// Handlers bundles every HTTP handler the API mounts.
type Handlers struct {
	Auth         *handler.AuthHandler
	Locations    *handler.LocationHandler
	Sessions     *handler.SessionHandler
	Reservations *handler.ReservationHandler
	Groups       *handler.GroupHandler
	Polls        *handler.PollHandler
}

// Options carries the cross-cutting middleware.  Nil entries are skipped.
type Options struct {
	JWTSecret string
	Limiter   echo.MiddlewareFunc // guards auth and every authenticated route
	Cache     echo.MiddlewareFunc // wraps anonymous public GETs
}

func chain(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Register mounts the whole API on e.
func Register(e *echo.Echo, db *sql.DB, h Handlers, opt Options) {
	if e.Validator == nil {
		e.Validator = handler.NewValidator()
	}
	RegisterRoutes(e, db)
	RegisterAuth(e, h.Auth, opt)
	RegisterPublic(e, h, opt)
	RegisterMember(e, h, opt)
	RegisterAdmin(e, h, opt)
}

// RegisterRoutes registers liveness and readiness probes.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers token endpoints under /v1/auth and the
// authenticated /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, opt Options) {
	g := e.Group("/v1/auth", chain(opt.Limiter)...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me, chain(middleware.JWTAuth(opt.JWTSecret), opt.Limiter)...)
}

// RegisterPublic registers browse endpoints that need no token.
func RegisterPublic(e *echo.Echo, h Handlers, opt Options) {
	cached := chain(opt.Cache)
	e.GET("/v1/locations", h.Locations.List, cached...)
	e.GET("/v1/locations/:id", h.Locations.Get, cached...)
	e.GET("/v1/sessions", h.Sessions.ListUpcoming, cached...)
	e.GET("/v1/sessions/:id", h.Sessions.Get, cached...)
}

// RegisterMember registers endpoints for any signed-in user.
func RegisterMember(e *echo.Echo, h Handlers, opt Options) {
	g := e.Group("/v1", chain(
		middleware.JWTAuth(opt.JWTSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
		opt.Limiter,
	)...)

	// ---- Locations & sessions ----
	g.POST("/locations", h.Locations.Create)
	g.POST("/sessions", h.Sessions.Create)
	g.DELETE("/sessions/:id", h.Sessions.Delete)
	g.GET("/sessions/:id/reservations", h.Sessions.ListReservations)

	// ---- Reservations ----
	g.POST("/sessions/:id/reservations", h.Reservations.Reserve)
	g.GET("/reservations", h.Reservations.ListMine)
	g.GET("/reservations/:id", h.Reservations.Get)
	g.DELETE("/reservations/:id", h.Reservations.Cancel)
	g.PATCH("/reservations/:id/status", h.Reservations.SetStatus)

	// ---- Groups ----
	g.POST("/groups", h.Groups.Create)
	g.GET("/groups", h.Groups.Mine)
	g.GET("/groups/:id", h.Groups.Get)
	g.POST("/groups/:id/join", h.Groups.Join)
	g.POST("/groups/:id/leave", h.Groups.Leave)
	g.GET("/groups/:id/members", h.Groups.Members)

	// ---- Polls ----
	g.POST("/groups/:id/polls", h.Polls.Create)
	g.GET("/groups/:id/polls", h.Polls.List)
	g.GET("/polls/:id", h.Polls.Get)
	g.PUT("/polls/:id/vote", h.Polls.Vote)
	g.DELETE("/polls/:id/vote", h.Polls.RemoveVote)
	g.DELETE("/polls/:id", h.Polls.Delete)
}

// RegisterAdmin registers endpoints reserved for the global ADMIN role.
func RegisterAdmin(e *echo.Echo, h Handlers, opt Options) {
	g := e.Group("/v1/admin", chain(
		middleware.JWTAuth(opt.JWTSecret),
		middleware.RequireRole(model.RoleAdmin),
		opt.Limiter,
	)...)
	g.GET("/reservations", h.Reservations.ListAll)
}
