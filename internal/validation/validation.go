// Package validation holds the rules applied to user, dispenser, container
// and schedule input before anything is written.  Rules are pure: the only
// state they observe is read through the lookup interfaces declared here,
// and each returns an ordered list of violation messages (empty when valid).
package validation

import "strings"

// Violations is an ordered list of human readable rule violations.
type Violations []string

// OK reports whether no rule was violated.
func (v Violations) OK() bool { return len(v) == 0 }

// First returns the first violation or "" when valid.
func (v Violations) First() string {
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Join concatenates every violation separated by a single space.
func (v Violations) Join() string { return strings.Join(v, " ") }

func (v *Violations) add(msg string) { *v = append(*v, msg) }

// Messages shared by the rule set.  Handlers return them verbatim.
const (
	MsgRequired = "This field is required."

	MsgEmailInvalid      = "Enter a valid email address."
	MsgEmailTaken        = "A user with this email already exists."
	MsgUsernameRequired  = "Username is required."
	MsgUsernameInvalid   = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	MsgUsernameTooLong   = "Username must be at most 150 characters long."
	MsgUsernameTaken     = "A user with this username already exists."
	MsgPasswordMismatch  = "Passwords do not match."
	MsgPasswordTooShort  = "Password must be at least 8 characters long."
	MsgPhoneDigits       = "Phone number must contain only digits."
	MsgPhoneTooLong      = "Phone number must be at most 15 digits long."
	MsgPasswordRequired  = "Password is required."
	MsgEmailRequired     = "Email is required."
	MsgRefreshRequired   = "Refresh token is required."
	MsgTokenInvalid      = "Token is invalid or expired"
	MsgBadCredentials    = "Incorrect email or password."
	MsgDispenserNotFound = "Dispenser not found"
	MsgContainerNotFound = "Container not found"
	MsgUserNotFound      = "User not found"

	MsgNameTooShort   = "Dispenser name must be at least 3 characters long"
	MsgNameCharset    = "Dispenser name can only contain letters, numbers, spaces, hyphens, and underscores"
	MsgNameTooLong    = "Dispenser name must be at most 100 characters long"
	MsgNameTaken      = "You already have a dispenser with this name"
	MsgSerialFormat   = "Invalid serial ID format. Expected format: SIZE-YYYYMMDD-XXXX (e.g., S-20250524-0001)"
	MsgSerialTaken    = "This dispenser is already registered"
	MsgQuotaExceeded  = "You cannot have more than 5 dispensers"
	MsgSlotPositive   = "Slot number must be positive"
	MsgSlotTaken      = "This slot number is already in use for this dispenser"
	MsgPillEmpty      = "Pill name cannot be empty"
	MsgPillTooLong    = "Pill name must be at most 100 characters long"
	MsgWeekdayRange   = "Weekday must be between 0 (Monday) and 6 (Sunday)"
	MsgTimeInvalid    = "Enter a valid time."
	MsgScheduleExists = "A schedule for this container at this weekday and time already exists"
)

// MaxNameLength bounds dispenser and pill names.
const MaxNameLength = 100
