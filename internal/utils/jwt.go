package utils // package utils provides helper functions for token creation and hashing

import (
    "crypto/sha256"   // SHA‑256 hashing for refresh and reset tokens
    "encoding/base64" // URL-safe encoding for emailed tokens
    "encoding/hex"    // hex encoding and decoding functions
    "errors"
    "strconv"
    "time" // time utilities for generating expirations

    "github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
    "github.com/google/uuid"
)

// AccessToken represents a signed JWT access token along with its expiry.
// Access tokens are short‑lived and sent in the Authorization header when
// calling protected endpoints.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// RefreshToken represents a long‑lived token used to obtain new access tokens.
// In the database only a SHA‑256 hash of the raw string is stored.
type RefreshToken struct {
    Raw string    // raw token string returned to the client
    Exp time.Time // UTC expiration time
}

// ResetToken is an emailed password reset credential.  Like refresh tokens
// only its hash is persisted.
type ResetToken struct {
    Raw string
    Exp time.Time
}

// ErrInvalidToken is returned by ParseAccessToken for any token that does
// not verify.
var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken builds and signs an HS256 JWT for a user.  The subject is
// the decimal user id; role is informational only, the session middleware
// recomputes it from the user record on every request.
func NewAccessToken(secret string, userID uint64, role string, ttlMin int) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(time.Duration(ttlMin) * time.Minute)
    claims := jwt.MapClaims{
        "sub":  strconv.FormatUint(userID, 10),
        "role": role,
        "jti":  uuid.NewString(),
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
    signed, err := t.SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and returns the user id held
// in the subject claim.  Numeric subjects from older tokens are accepted.
func ParseAccessToken(secret, raw string) (uint64, error) {
    tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
        if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
            return nil, ErrInvalidToken
        }
        return []byte(secret), nil
    })
    if err != nil || !tok.Valid {
        return 0, ErrInvalidToken
    }
    claims, ok := tok.Claims.(jwt.MapClaims)
    if !ok {
        return 0, ErrInvalidToken
    }
    switch sub := claims["sub"].(type) {
    case string:
        id, err := strconv.ParseUint(sub, 10, 64)
        if err != nil || id == 0 {
            return 0, ErrInvalidToken
        }
        return id, nil
    case float64:
        if sub <= 0 {
            return 0, ErrInvalidToken
        }
        return uint64(sub), nil
    }
    return 0, ErrInvalidToken
}

// NewRefreshToken returns a cryptographically secure random token (raw) and
// its expiration time.
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

// NewResetToken returns 32 random bytes, URL-safe base64 encoded, expiring
// ttl after now.
func NewResetToken(now time.Time, ttl time.Duration) (ResetToken, error) {
    raw, err := randomURLSafe(32)
    if err != nil {
        return ResetToken{}, err
    }
    return ResetToken{Raw: raw, Exp: now.UTC().Add(ttl)}, nil
}

// HashToken returns the SHA‑256 hash of a raw refresh or reset token as a
// hex string.  Storing only the hash prevents a leaked table from being
// replayed.
func HashToken(raw string) string {
    sum := sha256.Sum256([]byte(raw))
    return hex.EncodeToString(sum[:])
}

// randomHex returns a hex‑encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
    buf, err := randomBytes(n)
    if err != nil {
        return "", err
    }
    return hex.EncodeToString(buf), nil
}

func randomURLSafe(n int) (string, error) {
    buf, err := randomBytes(n)
    if err != nil {
        return "", err
    }
    return base64.RawURLEncoding.EncodeToString(buf), nil
}
