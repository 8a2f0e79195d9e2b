package handler // handler defines http handlers

import (
    "context"   // context bounds store calls
    "errors"    // errors maps service errors to status codes
    "log/slog"  // slog records unexpected failures
    "net/http"  // net/http provides status codes
    "strconv"   // strconv converts strings to numeric types
    "time"      // time sets the store timeout

    "github.com/labstack/echo/v4" // echo defines request context types

    "github.com/iliyamo/pill-dispenser/internal/middleware" // context keys set by JWTAuth
    "github.com/iliyamo/pill-dispenser/internal/model"      // domain types rendered as JSON
    "github.com/iliyamo/pill-dispenser/internal/service"    // typed service errors
)

// storeTimeout bounds every service call made by a handler.
const storeTimeout = 5 * time.Second

// Messages produced by the HTTP layer itself.
const (
    msgInvalidBody = "Malformed request body."
    msgInternal    = "internal server error"
    msgLoggedOut   = "Logout successful."
)

// storeCtx derives the per-request context used for service calls.
func storeCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), storeTimeout)
}

// getUserID extracts the user_id from echo.Context and converts it to uint64
func getUserID(c echo.Context) (uint64, error) { // begin getUserID helper
    v := c.Get(middleware.CtxUserID) // fetch user_id from context
    switch t := v.(type) {           // perform type switch on the value
    case uint64: // when already uint64
        if t != 0 {
            return t, nil // return directly
        }
    case string: // when stored as string
        if n, err := strconv.ParseUint(t, 10, 64); err == nil && n != 0 { // parse string to uint64
            return n, nil // return parsed number
        }
    } // end type switch
    return 0, errors.New("invalid user_id in context") // return error if value is missing or invalid
}

// callerFrom builds the service caller from the JWT context values.
func callerFrom(c echo.Context) (service.Caller, error) {
    id, err := getUserID(c)
    if err != nil {
        return service.Caller{}, err
    }
    role, _ := c.Get(middleware.CtxRole).(string)
    return service.Caller{ID: id, Role: role}, nil
}

// detail writes the {"detail": msg} error body.
func detail(c echo.Context, status int, msg string) error {
    return c.JSON(status, echo.Map{"detail": msg})
}

// writeError maps a service error onto an HTTP response.  authStatus is
// the status used for AuthenticationError, which differs between login
// (400) and token refresh (401).
func writeError(c echo.Context, err error, authStatus int) error {
    var (
        ve *service.ValidationError
        ae *service.AuthenticationError
        ne *service.NotFoundError
        ce *service.ConflictError
    )
    if !service.IsClientError(err) {
        slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
        return detail(c, http.StatusInternalServerError, msgInternal)
    }
    switch {
    case errors.As(err, &ve):
        return detail(c, http.StatusBadRequest, ve.Error())
    case errors.As(err, &ae):
        return detail(c, authStatus, ae.Message)
    case errors.As(err, &ne):
        return detail(c, http.StatusNotFound, ne.Message)
    case errors.As(err, &ce):
        return detail(c, http.StatusConflict, ce.Message)
    }
    return detail(c, http.StatusInternalServerError, msgInternal)
}

// unauthenticated is returned when a protected handler runs without the
// identity JWTAuth should have set.
func unauthenticated(c echo.Context) error {
    return detail(c, http.StatusUnauthorized, "Authentication credentials were not provided.")
}

// ----- JSON views -----

type userJSON struct {
    Email       string  `json:"email"`
    Username    string  `json:"username"`
    PhoneNumber *string `json:"phoneNumber"`
}

type scheduleJSON struct {
    ID        uint64 `json:"id"`
    Container uint64 `json:"container"`
    Weekday   int    `json:"weekday"`
    Time      string `json:"time"`
}

type containerJSON struct {
    ID         uint64         `json:"id"`
    Dispenser  uint64         `json:"dispenser"`
    SlotNumber int            `json:"slot_number"`
    PillName   string         `json:"pill_name"`
    Schedules  []scheduleJSON `json:"schedules"`
}

type dispenserJSON struct {
    ID         uint64          `json:"id"`
    Name       string          `json:"name"`
    SerialID   string          `json:"serial_id"`
    Size       string          `json:"size"`
    Owner      string          `json:"owner"`
    CreatedAt  time.Time       `json:"created_at"`
    Containers []containerJSON `json:"containers"`
}

func toUserJSON(u *model.User) userJSON {
    return userJSON{Email: u.Email, Username: u.Username, PhoneNumber: u.PhoneNumber}
}

func toContainerJSON(c *model.Container) containerJSON {
    out := containerJSON{
        ID:         c.ID,
        Dispenser:  c.DispenserID,
        SlotNumber: c.SlotNumber,
        PillName:   c.PillName,
        Schedules:  make([]scheduleJSON, 0, len(c.Schedules)),
    }
    for _, s := range c.Schedules {
        out.Schedules = append(out.Schedules, scheduleJSON{
            ID:        s.ID,
            Container: s.ContainerID,
            Weekday:   int(s.Weekday),
            Time:      s.Time.String(),
        })
    }
    return out
}

func toDispenserJSON(d *model.Dispenser) dispenserJSON {
    out := dispenserJSON{
        ID:         d.ID,
        Name:       d.Name,
        SerialID:   d.SerialID,
        Size:       string(d.Size),
        Owner:      d.OwnerUsername,
        CreatedAt:  d.CreatedAt,
        Containers: make([]containerJSON, 0, len(d.Containers)),
    }
    for i := range d.Containers {
        out.Containers = append(out.Containers, toContainerJSON(&d.Containers[i]))
    }
    return out
}
