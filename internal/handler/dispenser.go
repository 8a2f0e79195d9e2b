package handler

import (
    "net/http" // HTTP status codes

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing

    "github.com/iliyamo/pill-dispenser/internal/service"    // owner-scoped dispenser operations
    "github.com/iliyamo/pill-dispenser/internal/validation" // schedule input and messages
)

// DispenserHandler serves the dispenser, container and schedule endpoints.
// Every route runs behind JWTAuth and acts on the caller's own dispensers.
type DispenserHandler struct {
	Dispensers *service.DispenserService
}

func NewDispenserHandler(dispensers *service.DispenserService) *DispenserHandler {
	if dispensers == nil {
		panic("nil dispenser service passed to NewDispenserHandler")
	}
	return &DispenserHandler{Dispensers: dispensers}
}

// ----- DTOs -----

type registerDispenserReq struct {
	SerialID string `json:"serial_id"`
	Name     string `json:"name"`
}

type scheduleReq struct {
	Weekday *int    `json:"weekday"`
	Time    *string `json:"time"`
}

type containerScheduleReq struct {
	DispenserName string         `json:"dispenser_name"`
	SlotNumber    *int           `json:"slot_number"`
	Schedules     *[]scheduleReq `json:"schedules"`
	PillName      *string        `json:"pill_name"`
}

type updatePillNameReq struct {
	DispenserName string  `json:"dispenser_name"`
	SlotNumber    *int    `json:"slot_number"`
	PillName      *string `json:"pill_name"`
}

type renameDispenserReq struct {
	CurrentName string `json:"current_name"`
	NewName     string `json:"new_name"`
}

// Register handles POST /register-dispenser.
func (h *DispenserHandler) Register(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req registerDispenserReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, msgInvalidBody)
	}
	if req.SerialID == "" || req.Name == "" {
		return detail(c, http.StatusBadRequest, validation.MsgRequired)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	d, err := h.Dispensers.RegisterDispenser(ctx, uid, req.Name, req.SerialID)
	if err != nil {
		return writeError(c, err, http.StatusUnauthorized)
	}
	return c.JSON(http.StatusCreated, toDispenserJSON(d))
}

// List handles GET /dispensers.
func (h *DispenserHandler) List(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	ds, err := h.Dispensers.ListDispensers(ctx, uid)
	if err != nil {
		return writeError(c, err, http.StatusUnauthorized)
	}
	out := make([]dispenserJSON, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDispenserJSON(d))
	}
	return c.JSON(http.StatusOK, out)
}

// ReplaceSchedule handles PUT /container-schedule.
func (h *DispenserHandler) ReplaceSchedule(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req containerScheduleReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, msgInvalidBody)
	}
	if req.DispenserName == "" || req.SlotNumber == nil || req.Schedules == nil {
		return detail(c, http.StatusBadRequest, validation.MsgRequired)
	}
	entries := make([]validation.ScheduleInput, 0, len(*req.Schedules))
	for _, s := range *req.Schedules {
		if s.Weekday == nil || s.Time == nil {
			return detail(c, http.StatusBadRequest, validation.MsgRequired)
		}
		entries = append(entries, validation.ScheduleInput{Weekday: *s.Weekday, Time: *s.Time})
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	ct, err := h.Dispensers.ReplaceContainerSchedule(ctx, uid, req.DispenserName, *req.SlotNumber, req.PillName, entries)
	if err != nil {
		return writeError(c, err, http.StatusUnauthorized)
	}
	return c.JSON(http.StatusOK, toContainerJSON(ct))
}

// UpdatePillName handles POST /update-pill-name.
func (h *DispenserHandler) UpdatePillName(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req updatePillNameReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, msgInvalidBody)
	}
	if req.DispenserName == "" || req.SlotNumber == nil || req.PillName == nil {
		return detail(c, http.StatusBadRequest, validation.MsgRequired)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	ct, err := h.Dispensers.UpdatePillName(ctx, uid, req.DispenserName, *req.SlotNumber, *req.PillName)
	if err != nil {
		return writeError(c, err, http.StatusUnauthorized)
	}
	return c.JSON(http.StatusOK, toContainerJSON(ct))
}

// Rename handles POST /update-dispenser-name.
func (h *DispenserHandler) Rename(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}
	var req renameDispenserReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, msgInvalidBody)
	}
	if req.CurrentName == "" || req.NewName == "" {
		return detail(c, http.StatusBadRequest, validation.MsgRequired)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	d, err := h.Dispensers.RenameDispenser(ctx, uid, req.CurrentName, req.NewName)
	if err != nil {
		return writeError(c, err, http.StatusUnauthorized)
	}
	return c.JSON(http.StatusOK, toDispenserJSON(d))
}

// Delete handles DELETE /delete-dispenser/:name.
func (h *DispenserHandler) Delete(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return unauthenticated(c)
	}

	ctx, cancel := storeCtx(c)
	defer cancel()

	msg, err := h.Dispensers.DeleteDispenser(ctx, uid, c.Param("name"))
	if err != nil {
		return writeError(c, err, http.StatusUnauthorized)
	}
	return detail(c, http.StatusOK, msg)
}
