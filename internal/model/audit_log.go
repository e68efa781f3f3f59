package model

import (
	"time"
)

// Audit actions emitted by the authentication core.
const (
	AuditLoginSuccess           = "LOGIN_SUCCESS"
	AuditLoginFailed            = "LOGIN_FAILED"
	AuditAccountLocked          = "ACCOUNT_LOCKED"
	AuditLogout                 = "LOGOUT"
	AuditUserCreated            = "USER_CREATED"
	AuditPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	AuditPasswordResetCompleted = "PASSWORD_RESET_COMPLETED"
	AuditEmailVerified          = "EMAIL_VERIFIED"
	AuditOrgRegistered          = "ORGANIZATION_REGISTERED"
	AuditOrgTokenCreated        = "ORGANIZATION_TOKEN_CREATED"
	AuditOrgTokenRevoked        = "ORGANIZATION_TOKEN_REVOKED"
)

// Audit outcomes.
const (
	AuditStatusSuccess = "SUCCESS"
	AuditStatusFailed  = "FAILED"
	AuditStatusWarning = "WARNING"
)

// AuditLog is one record per security-relevant transition. The table is
// append-only; rows are never updated or deleted by the service.
type AuditLog struct {
	ID uint `json:"id" gorm:"primaryKey"`

	Action string `json:"action" gorm:"type:varchar(50);not null;index"`

	ActorUserID *uint  `json:"actor_user_id,omitempty" gorm:"index"`
	ActorEmail  string `json:"actor_email,omitempty" gorm:"type:varchar(100)"`
	ActorRole   string `json:"actor_role,omitempty" gorm:"type:varchar(50)"`

	EntityType string `json:"entity_type" gorm:"type:varchar(50);index"`
	EntityID   *uint  `json:"entity_id,omitempty" gorm:"index"`
	EntityName string `json:"entity_name,omitempty" gorm:"type:varchar(200)"`

	OrganizationID *uint `json:"organization_id,omitempty" gorm:"index"`

	Status       string `json:"status" gorm:"type:varchar(20);not null"`
	ErrorMessage string `json:"error_message,omitempty" gorm:"type:varchar(500)"`
	Metadata     string `json:"metadata,omitempty" gorm:"type:text"`

	IP        string    `json:"ip,omitempty" gorm:"type:varchar(45)"`
	UserAgent string    `json:"user_agent,omitempty" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
