package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Organization statuses.
const (
	OrgStatusActive    = "active"
	OrgStatusInactive  = "inactive"
	OrgStatusSuspended = "suspended"
)

// Organization is the unit of data isolation. Every non-platform user
// belongs to exactly one organization, and every persistence query made on
// behalf of such a user is scoped by its ID.
type Organization struct {
	ID          uint   `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"type:varchar(200);not null;uniqueIndex"`
	Slug        string `json:"slug" gorm:"type:varchar(50);not null;uniqueIndex"`
	Email       string `json:"email" gorm:"type:varchar(100);not null;index"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	Status string `json:"status" gorm:"type:varchar(20);not null;default:'active';index"`

	// SuperAdminID references the organization's first administrator,
	// created together with the organization when a registration token is
	// consumed. The referenced user always belongs to this organization.
	SuperAdminID *uint `json:"super_admin_id,omitempty" gorm:"index"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// IsActive reports whether the organization accepts requests.
func (o *Organization) IsActive() bool {
	return o.Status == OrgStatusActive
}

// Slugify derives a URL-safe slug from an organization name.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	var b strings.Builder
	lastDash := true
	for _, r := range slug {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	out := strings.Trim(b.String(), "-")
	if len(out) > 50 {
		out = strings.Trim(out[:50], "-")
	}
	return out
}
