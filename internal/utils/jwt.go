package utils // package utils provides helper functions for device tokens and hashing

import (
	"errors" // sentinel for malformed tokens
	"time"   // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens
)

// ErrInvalidToken is returned by ParseAccessToken for any token that is not
// a valid, unexpired HS256 device token.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
// Devices send it in the Authorization header on every ticket request.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a device.  The subject
// claim carries the device id, which selects the ticket namespace.
func NewAccessToken(secret, deviceID string, ttlMin int, now time.Time) (AccessToken, error) {
	now = now.UTC()
	exp := now.Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw and returns the device id it was issued to.
func ParseAccessToken(secret, raw string) (string, error) {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC; "none" and RSA confusion included.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
