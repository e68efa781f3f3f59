package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// TokenStatus is the lifecycle state of an organization registration token.
// The lattice is one-way: active -> used | expired | revoked, and no
// transition ever leaves used or revoked.
type TokenStatus string

const (
	TokenStatusActive  TokenStatus = "active"
	TokenStatusUsed    TokenStatus = "used"
	TokenStatusExpired TokenStatus = "expired"
	TokenStatusRevoked TokenStatus = "revoked"
)

// OrganizationToken is a single-use credential that bootstraps a new
// organization and its first administrator. Distributed out-of-band and
// presented once at registration time.
type OrganizationToken struct {
	ID    uint   `json:"id" gorm:"primaryKey"`
	Token string `json:"token" gorm:"type:varchar(64);not null;uniqueIndex"`

	// Descriptive only: the prospective organization is not created until
	// the token is consumed.
	OrganizationName string `json:"organization_name" gorm:"type:varchar(200);not null"`
	Email            string `json:"email" gorm:"type:varchar(100);not null;index"`

	Status    TokenStatus `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`
	ExpiresAt time.Time   `json:"expires_at" gorm:"not null;index"`

	// Set only on the transition to used.
	UsedAt         *time.Time `json:"used_at,omitempty"`
	UsedByID       *uint      `json:"used_by,omitempty"`
	OrganizationID *uint      `json:"organization_id,omitempty" gorm:"index"`

	CreatedByID uint   `json:"created_by" gorm:"not null;index"`
	Notes       string `json:"notes,omitempty" gorm:"type:varchar(500)"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsExpired reports whether the token's validity window has passed,
// regardless of the persisted status.
func (t *OrganizationToken) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// EffectiveStatus returns the status the token should be observed in at
// the given instant. A token persisted as active whose expiry has passed is
// reported expired; the caller is responsible for persisting the correction.
func (t *OrganizationToken) EffectiveStatus(now time.Time) TokenStatus {
	if t.Status == TokenStatusActive && t.IsExpired(now) {
		return TokenStatusExpired
	}
	return t.Status
}

// NewTokenString generates a cryptographically random opaque token.
func NewTokenString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
