package validation

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// UserLookup exposes the uniqueness queries the registration rules need.
type UserLookup interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
}

// Registration is an account sign-up request.
type Registration struct {
	Email       string
	Username    string
	PhoneNumber *string
	Password    string
	Password2   string
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// UserRegistration validates a sign-up request and returns it normalized.
// Unlike the dispenser rules it never stops early: every violated rule
// contributes its message so the client sees all problems at once.
func UserRegistration(ctx context.Context, lookup UserLookup, in Registration) (Registration, Violations, error) {
	var v Violations
	out := in
	out.Email = NormalizeEmail(in.Email)
	out.Username = strings.TrimSpace(in.Username)
	if in.PhoneNumber != nil {
		p := strings.TrimSpace(*in.PhoneNumber)
		if p == "" {
			out.PhoneNumber = nil
		} else {
			out.PhoneNumber = &p
		}
	}

	emailOK := false
	switch {
	case out.Email == "":
		v.add(MsgEmailRequired)
	case !validEmail(out.Email):
		v.add(MsgEmailInvalid)
	default:
		emailOK = true
	}
	usernameOK := false
	switch {
	case out.Username == "":
		v.add(MsgUsernameRequired)
	case utf8.RuneCountInString(out.Username) > 150:
		v.add(MsgUsernameTooLong)
	case !usernamePattern.MatchString(out.Username):
		v.add(MsgUsernameInvalid)
	default:
		usernameOK = true
	}
	if in.Password == "" {
		v.add(MsgPasswordRequired)
	}
	if in.Password != in.Password2 {
		v.add(MsgPasswordMismatch)
	}
	if emailOK {
		taken, err := lookup.EmailExists(ctx, out.Email)
		if err != nil {
			return out, nil, err
		}
		if taken {
			v.add(MsgEmailTaken)
		}
	}
	if usernameOK {
		taken, err := lookup.UsernameExists(ctx, out.Username)
		if err != nil {
			return out, nil, err
		}
		if taken {
			v.add(MsgUsernameTaken)
		}
	}
	if out.PhoneNumber != nil {
		if !allDigits(*out.PhoneNumber) {
			v.add(MsgPhoneDigits)
		} else if len(*out.PhoneNumber) > 15 {
			v.add(MsgPhoneTooLong)
		}
	}
	if in.Password != "" && utf8.RuneCountInString(in.Password) < 8 {
		v.add(MsgPasswordTooShort)
	}
	return out, v, nil
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
