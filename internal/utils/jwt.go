package utils // package utils provides helpers for session tokens and password hashing

import (
	"errors" // sentinel errors for malformed tokens
	"fmt"    // error wrapping
	"time"   // expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// ErrInvalidToken is returned when a session token cannot be verified.
var ErrInvalidToken = errors.New("invalid session token")

// SessionToken is a signed JWT together with its expiry.  It is stored in
// the session cookie by the login handler and may also be sent as a Bearer
// token by API clients.
type SessionToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// SessionClaims is what the middleware needs to rebuild the caller.
type SessionClaims struct {
	UserID    uint64
	Username  string
	Superuser bool
}

// NewSessionToken builds and signs an HS256 JWT.  The claims carry the
// subject (sub), the username, the superuser flag (su), exp and iat.
func NewSessionToken(secret string, c SessionClaims, ttl time.Duration) (SessionToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":      fmt.Sprintf("%d", c.UserID),
		"username": c.Username,
		"su":       c.Superuser,
		"exp":      exp.Unix(),
		"iat":      now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken verifies the signature and expiry of raw and returns its
// claims.  Only HMAC signing methods are accepted.
func ParseSessionToken(secret, raw string) (SessionClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return SessionClaims{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return SessionClaims{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return SessionClaims{}, ErrInvalidToken
	}
	var id uint64
	if _, err := fmt.Sscanf(sub, "%d", &id); err != nil || id == 0 {
		return SessionClaims{}, ErrInvalidToken
	}
	out := SessionClaims{UserID: id}
	out.Username, _ = claims["username"].(string)
	out.Superuser, _ = claims["su"].(bool)
	return out, nil
}
