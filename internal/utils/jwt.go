package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/rand"   // secure random number generation
    "crypto/sha256" // SHA‑256 hashing for refresh tokens
    "encoding/hex"  // hex encoding and decoding functions
    "errors"        // errors reports malformed claims
    "strconv"       // strconv encodes the numeric user id in the sub claim
    "time"          // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/google/uuid"       // uuid generates the jti claim
)

// ErrInvalidToken is returned by ParseAccessToken for any token that is
// malformed, expired, signed with another key or missing required claims.
var ErrInvalidToken = errors.New("invalid access token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.  Access tokens are short‑lived and encoded
// in the Authorization header when calling protected endpoints.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
    UserID   uint64 // sub
    Role     string // role (USER or STAFF)
    Username string // username
    ID       string // jti
}

// RefreshToken represents a long‑lived token used to obtain new access tokens.
// The Raw field contains the raw token string returned to the client.  The Exp
// field records when it expires.  In the database only a SHA‑256 hash of the
// raw string is stored.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The claims are
// sub (decimal user id), role, username, exp, iat and a random jti so two
// tokens issued in the same second still differ.
func NewAccessToken(secret string, userID uint64, role, username string, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":      strconv.FormatUint(userID, 10),
        "role":     role,
        "username": username,
        "exp":      exp.Unix(),
        "iat":      now.Unix(),
        "jti":      uuid.NewString(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw with secret and returns its claims.  Only
// HMAC signatures are accepted and exp is required.
func ParseAccessToken(secret, raw string) (AccessClaims, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        return []byte(secret), nil
    }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
    if err != nil || !tok.Valid {
        return AccessClaims{}, ErrInvalidToken
    }
    mc, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return AccessClaims{}, ErrInvalidToken
    }
    sub, err := mc.GetSubject()
    if err != nil {
        return AccessClaims{}, ErrInvalidToken
    }
    id, err := strconv.ParseUint(sub, 10, 64)
    if err != nil || id == 0 {
        return AccessClaims{}, ErrInvalidToken
    }
    out := AccessClaims{UserID: id}
    out.Role, _ = mc["role"].(string)
    out.Username, _ = mc["username"].(string)
    out.ID, _ = mc["jti"].(string)
    return out, nil
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.  Refresh tokens live longer than access tokens and
// are used to obtain new access tokens.  The ttlDays parameter controls
// how many days the refresh token is valid.
func NewRefreshToken(ttlDays int) (RefreshToken, error) {
    raw, err := randomHex(48) // 48 bytes -> 96 hex chars
    if err != nil {
        return RefreshToken{}, err
    }
    return RefreshToken{
        Raw: raw,
        Exp: time.Now().UTC().Add(time.Duration(ttlDays) * 24 * time.Hour),
    }, nil
}

// HashRefreshRaw returns the SHA‑256 hash of the raw refresh token as a hex
// string.  Only the hash is persisted.
func HashRefreshRaw(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// LooksLikeRefreshToken reports whether raw has the shape NewRefreshToken
// produces, so obviously malformed input can be rejected without a lookup.
func LooksLikeRefreshToken(raw string) bool {
    if len(raw) != 96 {
        return false
    }
    _, err := hex.DecodeString(raw)
    return err == nil
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf := make([]byte, n)
    if _, err := rand.Read(buf); err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}
