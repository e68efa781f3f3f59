package model

import (
	"time"

	"gorm.io/gorm"
)

// User account statuses.
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusInactive  = "inactive"
	UserStatusPending   = "pending"
)

// User represents an authenticatable identity stored in the database.
// Email is unique within an organization; platform accounts carry no
// organization and administer all of them.
type User struct {
	ID           uint   `json:"id" gorm:"primaryKey"`
	Email        string `json:"email" gorm:"type:varchar(100);not null;uniqueIndex:idx_users_email_org"`
	PasswordHash string `json:"-" gorm:"type:varchar(255);not null"`
	FirstName    string `json:"first_name" gorm:"type:varchar(100)"`
	LastName     string `json:"last_name" gorm:"type:varchar(100)"`

	Role              Role  `json:"role" gorm:"type:varchar(50);not null;default:'student'"`
	OrganizationID    *uint `json:"organization_id,omitempty" gorm:"uniqueIndex:idx_users_email_org;index"`
	IsPlatformAccount bool  `json:"is_platform_account" gorm:"default:false"`

	Status string `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`

	EmailVerified          bool   `json:"email_verified" gorm:"default:false"`
	EmailVerificationToken string `json:"-" gorm:"type:varchar(64);index"`

	// Lockout state. failed_login_attempts only resets on a successful
	// authentication; locked_until in the future refuses logins outright.
	FailedLoginAttempts int        `json:"-" gorm:"not null;default:0"`
	LockedUntil         *time.Time `json:"-"`

	LastLogin    *time.Time `json:"last_login,omitempty"`
	LastActivity *time.Time `json:"last_activity,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsLocked reports whether the account is currently locked out.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// FullName returns the display name used in audit records.
func (u *User) FullName() string {
	if u.FirstName == "" && u.LastName == "" {
		return u.Email
	}
	return u.FirstName + " " + u.LastName
}
