package service

import (
	"errors"
	"time"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/config"
	"lms-auth-service/pkg/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// OrgTokenService governs the registration token lifecycle
// (active -> used | expired | revoked) and is the only writer of new
// organization rows.
type OrgTokenService struct {
	db    *gorm.DB
	audit *AuditService
	cfg   config.AuthConfig
	tok   config.OrgTokenConfig

	now func() time.Time
}

// NewOrgTokenService returns a token lifecycle manager backed by the given
// database.
func NewOrgTokenService(db *gorm.DB, audit *AuditService, authCfg config.AuthConfig, tokCfg config.OrgTokenConfig) *OrgTokenService {
	return &OrgTokenService{db: db, audit: audit, cfg: authCfg, tok: tokCfg, now: time.Now}
}

// CreateTokenRequest carries the fields for a new registration token.
type CreateTokenRequest struct {
	OrganizationName string
	Email            string
	ExpiryDays       int
	Notes            string
}

// CreateToken issues a new registration token. The caller must already have
// passed the platform-account gate. Rejected when an organization or an
// unexpired active token already exists for the email, so tokens cannot
// pile up.
func (s *OrgTokenService) CreateToken(req CreateTokenRequest, creator *model.User, info RequestInfo) (*model.OrganizationToken, error) {
	now := s.now()

	var orgCount int64
	if err := s.db.Model(&model.Organization{}).Where("email = ?", req.Email).Count(&orgCount).Error; err != nil {
		return nil, err
	}
	if orgCount > 0 {
		return nil, ErrTokenEmailTaken
	}

	var tokenCount int64
	if err := s.db.Model(&model.OrganizationToken{}).
		Where("email = ? AND status = ? AND expires_at > ?", req.Email, model.TokenStatusActive, now).
		Count(&tokenCount).Error; err != nil {
		return nil, err
	}
	if tokenCount > 0 {
		return nil, ErrTokenEmailTaken
	}

	tokenString, err := model.NewTokenString()
	if err != nil {
		return nil, err
	}

	expiryDays := req.ExpiryDays
	if expiryDays <= 0 {
		expiryDays = s.tok.DefaultExpiryDays
	}

	token := &model.OrganizationToken{
		Token:            tokenString,
		OrganizationName: req.OrganizationName,
		Email:            req.Email,
		Status:           model.TokenStatusActive,
		ExpiresAt:        now.AddDate(0, 0, expiryDays),
		CreatedByID:      creator.ID,
		Notes:            req.Notes,
	}
	if err := s.db.Create(token).Error; err != nil {
		return nil, err
	}

	s.audit.LogOrgTokenCreated(token, creator, info)
	return token, nil
}

// Validate looks up a token and reports its effective state. A token read
// past its expiry is corrected to expired on the spot, so expiry holds even
// if no sweep ever runs.
func (s *OrgTokenService) Validate(tokenString string) (*model.OrganizationToken, error) {
	now := s.now()

	var token model.OrganizationToken
	err := s.db.Where("token = ?", tokenString).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	if token.EffectiveStatus(now) == model.TokenStatusExpired && token.Status == model.TokenStatusActive {
		// Lazy correction, guarded on status so a concurrent consume that
		// already won cannot be overwritten.
		res := s.db.Model(&model.OrganizationToken{}).
			Where("id = ? AND status = ?", token.ID, model.TokenStatusActive).
			Update("status", model.TokenStatusExpired)
		if res.Error != nil {
			return nil, res.Error
		}
		token.Status = model.TokenStatusExpired
		return nil, ErrTokenExpired
	}

	switch token.Status {
	case model.TokenStatusActive:
		return &token, nil
	case model.TokenStatusUsed:
		return nil, ErrTokenUsed
	case model.TokenStatusExpired:
		return nil, ErrTokenExpired
	case model.TokenStatusRevoked:
		return nil, ErrTokenRevoked
	default:
		return nil, ErrTokenNotFound
	}
}

// SuperAdminRequest carries the fields for the first administrator of a new
// organization.
type SuperAdminRequest struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// OrgRequest carries optional overrides for the new organization; token
// fields are used for anything omitted.
type OrgRequest struct {
	Name        string
	Slug        string
	Email       string
	Description string
}

// RegistrationResult is the outcome of consuming a registration token.
type RegistrationResult struct {
	Organization *model.Organization
	SuperAdmin   *model.User
}

// RegisterOrganization consumes a registration token and creates the new
// organization together with its super-admin identity, as one transaction.
// The token transition to used is a conditional UPDATE on status=active and
// the expiry, so of two concurrent registrations presenting the same token
// exactly one wins; the loser observes the used state. If anything in the
// unit fails, the token remains active.
func (s *OrgTokenService) RegisterOrganization(tokenString string, adminReq SuperAdminRequest, orgReq OrgRequest, info RequestInfo) (*RegistrationResult, error) {
	now := s.now()

	token, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	orgName := orgReq.Name
	if orgName == "" {
		orgName = token.OrganizationName
	}
	orgEmail := orgReq.Email
	if orgEmail == "" {
		orgEmail = token.Email
	}
	slug := orgReq.Slug
	if slug == "" {
		slug = model.Slugify(orgName)
	}

	var nameCount int64
	if err := s.db.Model(&model.Organization{}).
		Where("name = ? OR slug = ?", orgName, slug).
		Count(&nameCount).Error; err != nil {
		return nil, err
	}
	if nameCount > 0 {
		return nil, ErrTokenEmailTaken
	}

	var emailCount int64
	if err := s.db.Model(&model.User{}).Where("email = ?", adminReq.Email).Count(&emailCount).Error; err != nil {
		return nil, err
	}
	if emailCount > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminReq.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	var result RegistrationResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		org := &model.Organization{
			Name:        orgName,
			Slug:        slug,
			Email:       orgEmail,
			Description: orgReq.Description,
			Status:      model.OrgStatusActive,
		}
		if err := tx.Create(org).Error; err != nil {
			return err
		}

		admin := &model.User{
			Email:          adminReq.Email,
			PasswordHash:   string(hash),
			FirstName:      adminReq.FirstName,
			LastName:       adminReq.LastName,
			Role:           model.RoleAdmin,
			OrganizationID: &org.ID,
			Status:         model.UserStatusActive,
			EmailVerified:  true,
		}
		if err := tx.Create(admin).Error; err != nil {
			return err
		}

		if err := tx.Model(org).Update("super_admin_id", admin.ID).Error; err != nil {
			return err
		}
		org.SuperAdminID = &admin.ID

		// Re-checked under the write: only one concurrent registration can
		// flip status away from active.
		res := tx.Model(&model.OrganizationToken{}).
			Where("id = ? AND status = ? AND expires_at > ?", token.ID, model.TokenStatusActive, now).
			Updates(map[string]interface{}{
				"status":          model.TokenStatusUsed,
				"used_at":         now,
				"used_by_id":      admin.ID,
				"organization_id": org.ID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrTokenUsed
		}

		result.Organization = org
		result.SuperAdmin = admin
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogOrgRegistered(result.Organization, result.SuperAdmin, info)
	s.audit.LogUserCreated(result.SuperAdmin, "organization registration", info)
	return &result, nil
}

// Revoke moves an active or expired token to revoked. Used tokens cannot be
// revoked.
func (s *OrgTokenService) Revoke(tokenString, reason string, actor *model.User, info RequestInfo) error {
	var token model.OrganizationToken
	err := s.db.Where("token = ?", tokenString).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTokenNotFound
		}
		return err
	}

	if token.Status == model.TokenStatusUsed {
		return ErrTokenUsedRevoke
	}

	res := s.db.Model(&model.OrganizationToken{}).
		Where("id = ? AND status <> ?", token.ID, model.TokenStatusUsed).
		Update("status", model.TokenStatusRevoked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTokenUsedRevoke
	}

	token.Status = model.TokenStatusRevoked
	s.audit.LogOrgTokenRevoked(&token, actor, reason, info)
	return nil
}

// ListTokens returns tokens for the platform dashboard, newest first,
// optionally filtered by status.
func (s *OrgTokenService) ListTokens(status model.TokenStatus) ([]model.OrganizationToken, error) {
	query := s.db.Model(&model.OrganizationToken{}).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var tokens []model.OrganizationToken
	if err := query.Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// SweepExpired bulk-corrects active tokens whose expiry has passed. Lazy
// correction on read already enforces expiry; this is hygiene for listings.
func (s *OrgTokenService) SweepExpired() (int64, error) {
	res := s.db.Model(&model.OrganizationToken{}).
		Where("status = ? AND expires_at < ?", model.TokenStatusActive, s.now()).
		Update("status", model.TokenStatusExpired)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		logger.GetLogger().Info("expired registration tokens swept",
			zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
