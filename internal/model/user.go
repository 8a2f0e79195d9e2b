package model

import "time"

// Roles carried in the access token "role" claim.  Staff accounts may
// browse every user; regular users only see themselves.
const (
    RoleUser  = "USER"
    RoleStaff = "STAFF"
)

// User represents an account as stored in the `users` table.  The
// email address is the login identity; the username is a second
// unique handle shown to other users.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, lower-cased email address.
//  Username     – unique display handle.
//  PhoneNumber  – optional digits-only phone number (nil if absent).
//  PasswordHash – bcrypt hashed password.
//  IsActive     – inactive accounts cannot log in or refresh.
//  IsStaff      – grants the STAFF role.
//  DateJoined   – timestamp of registration.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    Username     string    // users.username
    PhoneNumber  *string   // users.phone_number (nullable)
    PasswordHash string    // users.password_hash
    IsActive     bool      // users.is_active
    IsStaff      bool      // users.is_staff
    DateJoined   time.Time // users.date_joined
}

// Role returns the token role for the user.
func (u *User) Role() string {
    if u.IsStaff {
        return RoleStaff
    }
    return RoleUser
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA‑256 hash of the raw token is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA‑256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (nil if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}

// Usable reports whether the token can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
    return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
