package handler

import (
    "net/http" // HTTP status codes
    "strings"  // trims the looked-up username

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/pill-dispenser/internal/service" // account lookups
)

// UserHandler serves the account directory endpoints.
type UserHandler struct {
	Auth *service.AuthService
}

func NewUserHandler(auth *service.AuthService) *UserHandler {
	if auth == nil {
		panic("nil auth service passed to NewUserHandler")
	}
	return &UserHandler{Auth: auth}
}

type userLookupReq struct {
	Username string `json:"username"`
}

// ListUsers returns every account.  The route is restricted to staff.
func (h *UserHandler) ListUsers(c echo.Context) error {
	ctx, cancel := storeCtx(c)
	defer cancel()

	users, err := h.Auth.ListUsers(ctx)
	if err != nil {
		return writeError(c, err, http.StatusUnauthorized)
	}
	out := make([]userJSON, 0, len(users))
	for _, u := range users {
		out = append(out, toUserJSON(u))
	}
	return c.JSON(http.StatusOK, out)
}

// GetUser looks an account up by the username in the body.
func (h *UserHandler) GetUser(c echo.Context) error {
	caller, err := callerFrom(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req userLookupReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, msgInvalidBody)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	u, err := h.Auth.GetUser(ctx, caller, strings.TrimSpace(req.Username))
	if err != nil {
		return writeError(c, err, http.StatusUnauthorized)
	}
	return c.JSON(http.StatusOK, toUserJSON(u))
}
