package handler

import (
    "database/sql"
    "errors"
    "log/slog"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/boardgame-meetup/internal/config"
    "github.com/iliyamo/boardgame-meetup/internal/middleware"
    "github.com/iliyamo/boardgame-meetup/internal/model"
    "github.com/iliyamo/boardgame-meetup/internal/repository"
    "github.com/iliyamo/boardgame-meetup/internal/utils"
)

// errInvalidCredentials is the single answer to every failed login, so
// callers cannot tell an unknown e-mail from a wrong password.
const errInvalidCredentials = "invalid credentials"

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
	Logger *slog.Logger
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Logger: logger}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"min=8,max=72"`
	DisplayName string `json:"display_name" validate:"required,max=100"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID          uint64 `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toUserPart(u model.User) userPart {
	return userPart{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
}

// issue creates and stores a fresh access/refresh pair for u.  With a
// non-empty rotateFrom the new refresh token replaces that one, and
// issue answers 401 if it was revoked in the meantime.
func (h *AuthHandler) issue(c echo.Context, u model.User, status int, rotateFrom string) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		h.Logger.Error("issue access token", "user_id", u.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		h.Logger.Error("issue refresh token", "user_id", u.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}
	newHash := utils.HashRefreshRaw(refresh.Raw)
	if rotateFrom == "" {
		err = h.Tokens.StoreRefresh(ctx, u.ID, newHash, refresh.Exp)
	} else {
		var rotated bool
		rotated, err = h.Tokens.Rotate(ctx, rotateFrom, u.ID, newHash, refresh.Exp)
		if err == nil && !rotated {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
	}
	if err != nil {
		h.Logger.Error("store refresh token", "user_id", u.ID, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save refresh failed"})
	}
	return c.JSON(status, authResp{
		User:    toUserPart(u),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if ok, err := validateBody(c, &req); !ok {
		return err
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, req.DisplayName, model.RoleUser, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
		}
		h.Logger.Error("create user", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create user failed"})
	}
	h.Logger.Info("user registered", "user_id", uid)
	return h.issue(c, model.User{ID: uid, Email: req.Email, DisplayName: req.DisplayName, Role: model.RoleUser}, http.StatusCreated, "")
}

// Login: verify and return new pair.  Unknown e-mail, wrong password and
// disabled account all produce the same 401.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return badRequest(c, "email/password required")
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if errors.Is(err, sql.ErrNoRows) {
		utils.BurnPasswordCheck(req.Password)
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": errInvalidCredentials})
	}
	if err != nil {
		h.Logger.Error("load user for login", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) || !u.IsActive {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": errInvalidCredentials})
	}
	return h.issue(c, u, http.StatusOK, "")
}

// Refresh: validate by hash, then rotate to a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	u, err := h.refreshOwner(c, hash)
	if u == nil {
		return err
	}
	return h.issue(c, *u, http.StatusOK, hash)
}

// refreshOwner resolves the active user behind a refresh token hash.  On
// failure it has already written the response and returns a nil user.
func (h *AuthHandler) refreshOwner(c echo.Context, hash string) (*model.User, error) {
	ctx, cancel := dbCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if errors.Is(err, repository.ErrTokenInvalid) {
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		h.Logger.Error("validate refresh token", "error", err)
		return nil, c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	return &u, nil
}

// RefreshAccess: validate a refresh token and return a new access token
// without rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	u, err := h.refreshOwner(c, utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken)))
	if u == nil {
		return err
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"access": tokenPart{Token: access.Token, Expires: access.Exp},
	})
}

// Logout revokes the refresh token in the body.  With a valid bearer
// token and no body it revokes every refresh token of the caller.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	raw := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := dbCtx(c)
	defer cancel()

	if raw != "" {
		revoked, err := h.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw))
		if err != nil {
			h.Logger.Error("logout", "error", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
		if !revoked {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	bearer, ok := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
	if !ok {
		return badRequest(c, "provide Authorization header or refresh_token")
	}
	uid, _, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(bearer))
	if err != nil {
		return unauthorized(c)
	}
	if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
		h.Logger.Error("logout all", "user_id", uid, "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": toUserPart(u), "role": middleware.Role(c)})
}
