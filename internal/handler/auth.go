package handler

import (
	"context"  // provides context with cancellation for DB calls
	"errors"   // errors.Is against the service taxonomy
	"net/http" // HTTP status codes and primitives
	"strings"  // string manipulation utilities
	"time"     // timeouts for DB calls

	"github.com/labstack/echo/v4" // Echo framework for HTTP routing

	"github.com/iliyamo/credit-cpr/internal/config"     // app configuration
	"github.com/iliyamo/credit-cpr/internal/middleware" // session lookup
	"github.com/iliyamo/credit-cpr/internal/model"      // user record
	"github.com/iliyamo/credit-cpr/internal/repository" // refresh token storage
	"github.com/iliyamo/credit-cpr/internal/service"    // credential and ledger rules
	"github.com/iliyamo/credit-cpr/internal/utils"      // token issuing
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg         config.Config
	Credentials *service.Credentials
	Ledger      *service.Ledger
	Tokens      *repository.TokenRepo
}

func NewAuthHandler(cfg config.Config, creds *service.Credentials, ledger *service.Ledger, t *repository.TokenRepo) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Credentials: creds, Ledger: ledger, Tokens: t}
}

// ----- DTOs -----

type registerReq struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
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
type authResp struct {
	User    userView  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func role(admin bool) string {
	if admin {
		return "admin"
	}
	return "user"
}

// issue creates an access/refresh pair for u and stores the refresh hash.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	admin := h.Ledger.IsAdmin(u)
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, role(admin), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashToken(refresh.Raw), refresh.Exp, time.Now()); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    newUserView(u, admin),
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	}, nil
}

// Register: create a free account and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := service.ValidateSignup(req.Email, req.Password, req.ConfirmPassword); err != nil {
		return fail(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Credentials.CreateAccount(ctx, req.Email, req.Password)
	if errors.Is(err, service.ErrDuplicate) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "Email already exists"})
	}
	if err != nil {
		return fail(c, err)
	}
	u, err := h.Ledger.CurrentUser(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return a new pair.  Every failure looks the same.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return badRequest(c, "Please enter both email and password")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Credentials.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Invalid email or password"})
	}
	if err != nil {
		return fail(c, err)
	}
	// apply any lapsed grant before the plan is reported back
	if u, err = h.Ledger.CurrentUser(ctx, u.ID); err != nil {
		return fail(c, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh: consume the old token by hash, then issue a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashToken(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	userID, err := h.Tokens.ConsumeRefresh(ctx, hash, time.Now())
	if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return fail(c, err)
	}

	u, err := h.Ledger.CurrentUser(ctx, userID)
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return fail(c, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body, or every session of the
// caller when only a valid bearer token is sent.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashToken(refreshToken)
		err := h.Tokens.RevokeByHash(ctx, hash, time.Now())
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
		}
		if err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}

	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		uid, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
		}
		if err := h.Tokens.RevokeAllForUser(ctx, uid, time.Now()); err != nil {
			return fail(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	return badRequest(c, "provide Authorization header or refresh_token")
}

// Me returns the signed-in user.
func (h *AuthHandler) Me(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, newUserView(s.User, s.Admin))
}
