package jwtutil

import (
	"errors"
	"time"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/config"

	"github.com/golang-jwt/jwt/v4"
)

// Verification failure kinds. Expired is distinct from the other two so the
// HTTP layer can tell the caller to log in again rather than returning a
// generic 401.
var (
	ErrTokenExpired     = errors.New("session token expired")
	ErrTokenMalformed   = errors.New("session token malformed")
	ErrSignatureInvalid = errors.New("session token signature invalid")
)

var (
	signingKey []byte
	lifetime   = 24 * time.Hour
)

// Initialize configures the signing key and token lifetime.
func Initialize(cfg *config.JWTConfig) {
	signingKey = []byte(cfg.SigningKey)
	if cfg.ExpirationHours > 0 {
		lifetime = time.Duration(cfg.ExpirationHours) * time.Hour
	}
}

// SessionClaims is the signed claim set carried by every authenticated
// request: identity, organization, role and the platform flag. Sessions are
// stateless; the server never stores them.
type SessionClaims struct {
	UserID            uint       `json:"user_id"`
	Email             string     `json:"email"`
	Role              model.Role `json:"role"`
	OrganizationID    *uint      `json:"organization_id,omitempty"`
	IsPlatformAccount bool       `json:"is_platform_account,omitempty"`
	jwt.RegisteredClaims
}

// Issue mints a signed bearer token for the given identity. No side effects.
func Issue(user *model.User) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	expiresAt = now.Add(lifetime)

	claims := SessionClaims{
		UserID:            user.ID,
		Email:             user.Email,
		Role:              user.Role,
		OrganizationID:    user.OrganizationID,
		IsPlatformAccount: user.IsPlatformAccount,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	return token, expiresAt, err
}

// Verify parses and validates a bearer token. Pure function of the token and
// the signing key; never touches the data store.
func Verify(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return signingKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrSignatureInvalid
		default:
			return nil, ErrTokenMalformed
		}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
