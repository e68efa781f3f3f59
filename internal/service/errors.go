package service

import (
	"errors"
	"fmt"
	"time"
)

// Expected authentication failures. The HTTP layer translates these directly
// into status codes; anything else is treated as an internal error.
var (
	// ErrInvalidCredentials covers both unknown identifier and wrong
	// password so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")

	ErrEmailTaken     = errors.New("email already registered")
	ErrOrgNotFound    = errors.New("organization not found")
	ErrCrossOrgAccess = errors.New("resource belongs to a different organization")

	ErrResetTokenInvalid = errors.New("invalid or expired reset token")
)

// Registration token lifecycle failures. Distinct internally; handlers
// collapse them to a generic message so token state cannot be probed.
var (
	ErrTokenNotFound   = errors.New("token not found")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenUsed       = errors.New("token already used")
	ErrTokenRevoked    = errors.New("token revoked")
	ErrTokenEmailTaken = errors.New("an organization or active token already exists for this email")
	ErrTokenUsedRevoke = errors.New("cannot revoke a used token")
)

// AccountLockedError is returned while a lockout window is open.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// AccountNotActiveError is returned for suspended, inactive or pending
// accounts.
type AccountNotActiveError struct {
	Status string
}

func (e *AccountNotActiveError) Error() string {
	return fmt.Sprintf("account is %s", e.Status)
}

// RemainingAttemptsError wraps ErrInvalidCredentials with a hint of how many
// attempts remain before lockout. Unwraps to ErrInvalidCredentials.
type RemainingAttemptsError struct {
	Remaining int
}

func (e *RemainingAttemptsError) Error() string {
	return fmt.Sprintf("invalid email or password, %d attempts remaining", e.Remaining)
}

func (e *RemainingAttemptsError) Unwrap() error {
	return ErrInvalidCredentials
}
