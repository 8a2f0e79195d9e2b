// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services to distinguish between different failure scenarios without
// inspecting driver errors. The in-memory store returns the same values
// so callers behave identically against either backend.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Lookup misses.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrDispenserNotFound = errors.New("dispenser not found")
	ErrContainerNotFound = errors.New("container not found")
)

// Uniqueness violations surfaced by the storage layer.
var (
	ErrEmailExists       = errors.New("email already exists")
	ErrUsernameExists    = errors.New("username already exists")
	ErrDuplicateSerial   = errors.New("serial id already registered")
	ErrDuplicateName     = errors.New("dispenser name already used by owner")
	ErrDuplicateSlot     = errors.New("slot number already used in dispenser")
	ErrDuplicateSchedule = errors.New("schedule already exists for container")
)

// ErrQuotaExceeded is returned when an owner already has the maximum
// number of dispensers at insert time.
var ErrQuotaExceeded = errors.New("dispenser quota exceeded")

// ErrConflict is returned for a uniqueness violation on a key this
// package does not recognise.
var ErrConflict = errors.New("conflict")

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// Unique key names declared by the migrations.
var uniqueKeyErrors = map[string]error{
	"uq_users_email":                      ErrEmailExists,
	"uq_users_username":                   ErrUsernameExists,
	"uq_dispensers_serial":                ErrDuplicateSerial,
	"uq_dispensers_owner_name":            ErrDuplicateName,
	"uq_containers_dispenser_slot":        ErrDuplicateSlot,
	"uq_schedules_container_weekday_time": ErrDuplicateSchedule,
}

// mapDuplicate converts a MySQL duplicate-entry error into the sentinel
// for the violated unique key.  Other errors are returned unchanged.
func mapDuplicate(err error) error {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return err
	}
	for key, sentinel := range uniqueKeyErrors {
		if strings.Contains(me.Message, key) {
			return sentinel
		}
	}
	return ErrConflict
}
