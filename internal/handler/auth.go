package handler

import (
    "net/http" // HTTP status codes and primitives

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/pill-dispenser/internal/middleware" // context keys set by JWTAuth
    "github.com/iliyamo/pill-dispenser/internal/service"    // account and token operations
    "github.com/iliyamo/pill-dispenser/internal/validation" // registration input
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	if auth == nil {
		panic("nil auth service passed to NewAuthHandler")
	}
	return &AuthHandler{Auth: auth}
}

// ----- DTOs -----

type registerReq struct {
	Email       string  `json:"email"`
	Username    string  `json:"username"`
	PhoneNumber *string `json:"phoneNumber"`
	Password    string  `json:"password"`
	Password2   string  `json:"password2"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	Refresh string `json:"refresh"`
}

type authResp struct {
	Access  string   `json:"access"`
	Refresh string   `json:"refresh"`
	User    userJSON `json:"user"`
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, msgInvalidBody)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	u, err := h.Auth.Register(ctx, validation.Registration{
		Email:       req.Email,
		Username:    req.Username,
		PhoneNumber: req.PhoneNumber,
		Password:    req.Password,
		Password2:   req.Password2,
	})
	if err != nil {
		return writeError(c, err, http.StatusBadRequest)
	}
	sess, err := h.Auth.IssueSession(ctx, u)
	if err != nil {
		return writeError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusCreated, authResp{Access: sess.Access, Refresh: sess.Refresh, User: toUserJSON(u)})
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, msgInvalidBody)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	u, err := h.Auth.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return writeError(c, err, http.StatusBadRequest)
	}
	sess, err := h.Auth.IssueSession(ctx, u)
	if err != nil {
		return writeError(c, err, http.StatusBadRequest)
	}
	return c.JSON(http.StatusOK, authResp{Access: sess.Access, Refresh: sess.Refresh, User: toUserJSON(u)})
}

// Logout: revoke the refresh token named in the body.  No access token
// is needed; holding the refresh token is enough to end its session.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, msgInvalidBody)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	if err := h.Auth.Revoke(ctx, req.Refresh); err != nil {
		return writeError(c, err, http.StatusBadRequest)
	}
	return detail(c, http.StatusResetContent, msgLoggedOut)
}

// RefreshAccess: validate a refresh token and return a new access token WITHOUT rotating the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil {
        return detail(c, http.StatusBadRequest, msgInvalidBody)
    }

    ctx, cancel := storeCtx(c)
    defer cancel()

    access, err := h.Auth.Refresh(ctx, req.Refresh)
    if err != nil {
        // Invalid, expired or revoked refresh token
        return writeError(c, err, http.StatusUnauthorized)
    }
    return c.JSON(http.StatusOK, echo.Map{"access": access})
}

// Me: simple protected endpoint.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":  uid,
		"role":     c.Get(middleware.CtxRole),
		"username": c.Get(middleware.CtxUsername),
	})
}
