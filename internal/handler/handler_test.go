package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/pill-dispenser/internal/middleware"
	"github.com/iliyamo/pill-dispenser/internal/model"
	"github.com/iliyamo/pill-dispenser/internal/service"
)

func newContext() (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		authStatus int
		status     int
		body       string
	}{
		{"validation", &service.ValidationError{Messages: []string{"a.", "b."}}, http.StatusBadRequest, http.StatusBadRequest, `{"detail":"a. b."}`},
		{"login", &service.AuthenticationError{Message: "bad"}, http.StatusBadRequest, http.StatusBadRequest, `{"detail":"bad"}`},
		{"refresh", &service.AuthenticationError{Message: "bad"}, http.StatusUnauthorized, http.StatusUnauthorized, `{"detail":"bad"}`},
		{"not found", &service.NotFoundError{Message: "Dispenser not found"}, http.StatusUnauthorized, http.StatusNotFound, `{"detail":"Dispenser not found"}`},
		{"conflict", &service.ConflictError{Message: "taken"}, http.StatusUnauthorized, http.StatusConflict, `{"detail":"taken"}`},
		{"internal", errors.New("db down"), http.StatusUnauthorized, http.StatusInternalServerError, `{"detail":"internal server error"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, rec := newContext()
			require.NoError(t, writeError(c, tc.err, tc.authStatus))
			assert.Equal(t, tc.status, rec.Code)
			assert.JSONEq(t, tc.body, rec.Body.String())
		})
	}
}

func TestGetUserID(t *testing.T) {
	c, _ := newContext()
	_, err := getUserID(c)
	assert.Error(t, err)

	c.Set(middleware.CtxUserID, uint64(7))
	c.Set(middleware.CtxRole, model.RoleStaff)
	caller, err := callerFrom(c)
	require.NoError(t, err)
	assert.Equal(t, service.Caller{ID: 7, Role: model.RoleStaff}, caller)

	c.Set(middleware.CtxUserID, uint64(0))
	_, err = getUserID(c)
	assert.Error(t, err)
}

func TestDispenserJSON(t *testing.T) {
	created := time.Date(2025, 5, 24, 10, 0, 0, 0, time.UTC)
	d := &model.Dispenser{
		ID: 3, Name: "Kitchen", SerialID: "S-20250524-0001", Size: model.SizeSmall,
		OwnerUsername: "ann", CreatedAt: created,
		Containers: []model.Container{{
			ID: 11, DispenserID: 3, SlotNumber: 1, PillName: "Aspirin",
			Schedules: []model.Schedule{{ID: 21, ContainerID: 11, Weekday: model.Friday, Time: 8*3600 + 30*60}},
		}},
	}
	c, rec := newContext()
	require.NoError(t, c.JSON(http.StatusOK, toDispenserJSON(d)))
	assert.JSONEq(t, `{
		"id": 3, "name": "Kitchen", "serial_id": "S-20250524-0001", "size": "S", "owner": "ann",
		"created_at": "2025-05-24T10:00:00Z",
		"containers": [{"id": 11, "dispenser": 3, "slot_number": 1, "pill_name": "Aspirin",
			"schedules": [{"id": 21, "container": 11, "weekday": 4, "time": "08:30:00"}]}]
	}`, rec.Body.String())
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	c, rec := newContext()
	require.NoError(t, Health(nil)(c))
	assert.Equal(t, "ok", rec.Body.String())

	c, rec = newContext()
	require.NoError(t, Health(pingFunc(func(context.Context) error { return errors.New("down") }))(c))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
