package handler

import (
	"errors"
	"net/http" // HTTP status codes and primitives
	"net/mail"
	"strings" // string manipulation utilities
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/secondhand-market/internal/config"     // app configuration
	"github.com/iliyamo/secondhand-market/internal/model"      // account roles
	"github.com/iliyamo/secondhand-market/internal/repository" // DB repositories
	"github.com/iliyamo/secondhand-market/internal/utils"      // hashing, token issuing
)

const minPasswordLen = 8

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  *repository.UserRepo
	Tokens *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}
type profileReq struct {
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type authResp struct {
	User    *model.Account `json:"user"`
	Access  tokenPart      `json:"access"`
	Refresh tokenPart      `json:"refresh"`
}

// issue creates an access/refresh pair and stores the refresh hash.
func (h *AuthHandler) issue(c echo.Context, a *model.Account) (*authResp, error) {
	ctx, cancel := reqCtx(c)
	defer cancel()
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, a.ID, a.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return nil, err
	}
	if err := h.Tokens.StoreRefresh(ctx, a.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, err
	}
	return &authResp{
		User:    a,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// Register creates a user account and returns tokens immediately.  Admins
// are never created through this endpoint.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return failMsg(c, http.StatusBadRequest, "A valid email is required")
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLen {
		return failMsg(c, http.StatusBadRequest, "Password must be at least 8 characters")
	}
	if req.DisplayName == "" {
		return failMsg(c, http.StatusBadRequest, "Display name is required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Email, req.Password, req.DisplayName, model.RoleUser, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return failMsg(c, http.StatusConflict, "Email already registered")
		}
		return fail(c, err)
	}
	a, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.issue(c, a)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusCreated, resp)
}

// Login verifies credentials and returns a new token pair.  Suspended
// accounts may sign in; the services refuse their writes.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return failMsg(c, http.StatusBadRequest, "Email and password are required")
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failMsg(c, http.StatusUnauthorized, "Invalid credentials")
		}
		return fail(c, err)
	}
	if !utils.VerifyPassword(a.PasswordHash, req.Password) {
		return failMsg(c, http.StatusUnauthorized, "Invalid credentials")
	}
	resp, err := h.issue(c, a)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, resp)
}

// Refresh validates a refresh token by hash, revokes it and issues a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return failMsg(c, http.StatusBadRequest, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, "Invalid refresh token")
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		return fail(c, err)
	}
	a, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failMsg(c, http.StatusUnauthorized, "Invalid refresh token")
		}
		return fail(c, err)
	}
	resp, err := h.issue(c, a)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return failMsg(c, http.StatusBadRequest, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := reqCtx(c)
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, "Invalid refresh token")
	}
	a, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failMsg(c, http.StatusUnauthorized, "Invalid refresh token")
		}
		return fail(c, err)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, a.ID, a.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"access": tokenPart{Token: access.Token, Expires: access.Exp}})
}

// Logout revokes the refresh token in the body, or every refresh token of
// the signed-in account when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := reqCtx(c)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return failMsg(c, http.StatusUnauthorized, "Invalid refresh token")
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	if uid, err := getUserID(c); err == nil {
		if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return failMsg(c, http.StatusBadRequest, "Provide an Authorization header or refresh_token")
}

// Me returns the signed-in account, ban state included.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, "Sign in required")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	a, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failMsg(c, http.StatusUnauthorized, "Sign in required")
		}
		return fail(c, err)
	}
	return ok(c, http.StatusOK, echo.Map{"user": a, "suspended": a.IsBanned(time.Now())})
}

// UpdateProfile changes the display name and contact phone.
func (h *AuthHandler) UpdateProfile(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return failMsg(c, http.StatusUnauthorized, "Sign in required")
	}
	var req profileReq
	if err := c.Bind(&req); err != nil {
		return failMsg(c, http.StatusBadRequest, "Invalid request body")
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return failMsg(c, http.StatusBadRequest, "Display name is required")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Users.UpdateProfile(ctx, uid, req.DisplayName, req.Phone); err != nil {
		return fail(c, err)
	}
	a, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, http.StatusOK, a)
}
