package service

import (
	"encoding/json"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AuditService writes security events to the append-only audit table.
// Writes are best effort: a failed audit write is logged locally and never
// fails the primary operation.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService returns an audit sink backed by the given database.
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

// RequestInfo carries the transport-level context attached to every event.
type RequestInfo struct {
	IP        string
	UserAgent string
}

func (s *AuditService) write(entry *model.AuditLog) {
	if err := s.db.Create(entry).Error; err != nil {
		logger.GetLogger().Error("audit log write failed",
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

func marshalMetadata(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(b)
}

// LogLoginSuccess records a successful authentication.
func (s *AuditService) LogLoginSuccess(user *model.User, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:         model.AuditLoginSuccess,
		ActorUserID:    &user.ID,
		ActorEmail:     user.Email,
		ActorRole:      user.Role.String(),
		EntityType:     "USER",
		EntityID:       &user.ID,
		EntityName:     user.FullName(),
		OrganizationID: user.OrganizationID,
		Status:         model.AuditStatusSuccess,
		IP:             req.IP,
		UserAgent:      req.UserAgent,
	})
}

// LogLoginFailed records a failed authentication attempt.
func (s *AuditService) LogLoginFailed(email, reason string, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:       model.AuditLoginFailed,
		ActorEmail:   email,
		EntityType:   "USER",
		Status:       model.AuditStatusFailed,
		ErrorMessage: reason,
		Metadata:     marshalMetadata(map[string]interface{}{"email": email, "reason": reason}),
		IP:           req.IP,
		UserAgent:    req.UserAgent,
	})
}

// LogAccountLocked records a lockout transition.
func (s *AuditService) LogAccountLocked(user *model.User, failedAttempts int, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:         model.AuditAccountLocked,
		ActorUserID:    &user.ID,
		ActorEmail:     user.Email,
		EntityType:     "USER",
		EntityID:       &user.ID,
		EntityName:     user.FullName(),
		OrganizationID: user.OrganizationID,
		Status:         model.AuditStatusWarning,
		Metadata: marshalMetadata(map[string]interface{}{
			"failed_attempts": failedAttempts,
			"reason":          "too many failed login attempts",
		}),
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
}

// LogLogout records an advisory logout.
func (s *AuditService) LogLogout(user *model.User, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:         model.AuditLogout,
		ActorUserID:    &user.ID,
		ActorEmail:     user.Email,
		ActorRole:      user.Role.String(),
		EntityType:     "USER",
		EntityID:       &user.ID,
		OrganizationID: user.OrganizationID,
		Status:         model.AuditStatusSuccess,
		IP:             req.IP,
		UserAgent:      req.UserAgent,
	})
}

// LogUserCreated records a new identity.
func (s *AuditService) LogUserCreated(user *model.User, createdByEmail string, req RequestInfo) {
	if createdByEmail == "" {
		createdByEmail = "self-registration"
	}
	s.write(&model.AuditLog{
		Action:         model.AuditUserCreated,
		EntityType:     "USER",
		EntityID:       &user.ID,
		EntityName:     user.FullName(),
		OrganizationID: user.OrganizationID,
		Status:         model.AuditStatusSuccess,
		Metadata: marshalMetadata(map[string]interface{}{
			"email":      user.Email,
			"role":       user.Role,
			"created_by": createdByEmail,
		}),
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
}

// LogPasswordResetRequested records a reset token issuance.
func (s *AuditService) LogPasswordResetRequested(user *model.User, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:         model.AuditPasswordResetRequested,
		ActorEmail:     user.Email,
		EntityType:     "USER",
		EntityID:       &user.ID,
		OrganizationID: user.OrganizationID,
		Status:         model.AuditStatusSuccess,
		IP:             req.IP,
		UserAgent:      req.UserAgent,
	})
}

// LogPasswordResetCompleted records a completed password reset.
func (s *AuditService) LogPasswordResetCompleted(user *model.User, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:         model.AuditPasswordResetCompleted,
		ActorUserID:    &user.ID,
		ActorEmail:     user.Email,
		EntityType:     "USER",
		EntityID:       &user.ID,
		OrganizationID: user.OrganizationID,
		Status:         model.AuditStatusSuccess,
		IP:             req.IP,
		UserAgent:      req.UserAgent,
	})
}

// LogEmailVerified records a verified email address.
func (s *AuditService) LogEmailVerified(user *model.User, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:         model.AuditEmailVerified,
		ActorUserID:    &user.ID,
		ActorEmail:     user.Email,
		EntityType:     "USER",
		EntityID:       &user.ID,
		OrganizationID: user.OrganizationID,
		Status:         model.AuditStatusSuccess,
		IP:             req.IP,
		UserAgent:      req.UserAgent,
	})
}

// LogOrgRegistered records a new organization bootstrapped from a token.
func (s *AuditService) LogOrgRegistered(org *model.Organization, admin *model.User, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:         model.AuditOrgRegistered,
		ActorUserID:    &admin.ID,
		ActorEmail:     admin.Email,
		ActorRole:      admin.Role.String(),
		EntityType:     "ORGANIZATION",
		EntityID:       &org.ID,
		EntityName:     org.Name,
		OrganizationID: &org.ID,
		Status:         model.AuditStatusSuccess,
		Metadata:       marshalMetadata(map[string]interface{}{"slug": org.Slug}),
		IP:             req.IP,
		UserAgent:      req.UserAgent,
	})
}

// LogOrgTokenCreated records a new registration token.
func (s *AuditService) LogOrgTokenCreated(token *model.OrganizationToken, creator *model.User, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:      model.AuditOrgTokenCreated,
		ActorUserID: &creator.ID,
		ActorEmail:  creator.Email,
		ActorRole:   creator.Role.String(),
		EntityType:  "ORGANIZATION_TOKEN",
		EntityID:    &token.ID,
		EntityName:  token.OrganizationName,
		Status:      model.AuditStatusSuccess,
		Metadata: marshalMetadata(map[string]interface{}{
			"email":      token.Email,
			"expires_at": token.ExpiresAt,
		}),
		IP:        req.IP,
		UserAgent: req.UserAgent,
	})
}

// LogOrgTokenRevoked records an explicit token revocation.
func (s *AuditService) LogOrgTokenRevoked(token *model.OrganizationToken, actor *model.User, reason string, req RequestInfo) {
	s.write(&model.AuditLog{
		Action:      model.AuditOrgTokenRevoked,
		ActorUserID: &actor.ID,
		ActorEmail:  actor.Email,
		ActorRole:   actor.Role.String(),
		EntityType:  "ORGANIZATION_TOKEN",
		EntityID:    &token.ID,
		EntityName:  token.OrganizationName,
		Status:      model.AuditStatusWarning,
		Metadata:    marshalMetadata(map[string]interface{}{"reason": reason}),
		IP:          req.IP,
		UserAgent:   req.UserAgent,
	})
}
