// Package service implements the account and dispenser operations on top
// of the storage interfaces.  Every failure a client can cause is returned
// as one of the typed errors below; anything else is an internal error.
package service

import (
	"errors"
	"strings"

	"github.com/iliyamo/pill-dispenser/internal/validation"
)

// ValidationError reports rejected input.  Messages holds the violated
// rules in order.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string { return strings.Join(e.Messages, " ") }

// AuthenticationError reports bad credentials or an unusable token.  The
// message never says which part was wrong.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// NotFoundError reports an ownership-scoped lookup miss.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ConflictError reports a uniqueness or quota violation detected by the
// storage layer after validation passed, i.e. a lost race.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func invalid(v validation.Violations) error { return &ValidationError{Messages: v} }

func invalidFirst(v validation.Violations) error {
	return &ValidationError{Messages: []string{v.First()}}
}

func invalidMsg(msg string) error { return &ValidationError{Messages: []string{msg}} }

// IsClientError reports whether err is one of the typed errors above.
func IsClientError(err error) bool {
	var (
		ve *ValidationError
		ae *AuthenticationError
		ne *NotFoundError
		ce *ConflictError
	)
	return errors.As(err, &ve) || errors.As(err, &ae) || errors.As(err, &ne) || errors.As(err, &ce)
}
