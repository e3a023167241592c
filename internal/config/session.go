package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrSessionExpired is returned for a session token past its exp claim.
var ErrSessionExpired = errors.New("session expired - run 'inbox auth login' again")

// TokenClaims are the session token fields the console reads. The signature
// is not verified; the server remains the authority.
type TokenClaims struct {
	Subject   string
	Email     string
	CompanyID string
	ExpiresAt time.Time
}

// InspectToken decodes a JWT session token without verifying it. Opaque
// tokens return an error.
func InspectToken(token string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(token), claims); err != nil {
		return TokenClaims{}, fmt.Errorf("session token is not a JWT: %w", err)
	}

	var out TokenClaims
	out.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	switch v := claims["company_id"].(type) {
	case string:
		out.CompanyID = v
	case float64:
		out.CompanyID = fmt.Sprintf("%.0f", v)
	}
	return out, nil
}

// CheckSession fails with ErrSessionExpired when token carries an exp claim
// at or before now. Tokens without a readable expiry pass.
func CheckSession(token string, now time.Time) error {
	claims, err := InspectToken(token)
	if err != nil || claims.ExpiresAt.IsZero() {
		return nil
	}
	if !now.Before(claims.ExpiresAt) {
		return fmt.Errorf("%w (at %s)", ErrSessionExpired, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}
