package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and verifies the stateless bearer tokens devices
// present on every upload. Tokens are HS256-signed with the device id as
// subject; there is no revocation list, so a rotated secret does not recall
// tokens issued before the rotation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// TTL returns the validity window applied at issuance.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

func (s *TokenService) Issue(deviceID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the device id a token asserts. Every defect - wrong
// signature, wrong algorithm, expiry, structural damage - fails uniformly
// with ErrInvalidCredential.
func (s *TokenService) Verify(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidCredential
			}
			return s.secret, nil
		})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidCredential
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidCredential
	}
	return claims.Subject, nil
}
