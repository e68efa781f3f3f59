package service

import (
	"errors"
	"time"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/config"
	"lms-auth-service/pkg/jwtutil"
	"lms-auth-service/pkg/logger"
	"lms-auth-service/prometheus"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Authenticator validates credential pairs against the user store and drives
// the failed-login lockout state machine. All state transitions are single
// conditional UPDATEs so concurrent attempts against the same account cannot
// interleave between a read and a write.
type Authenticator struct {
	db    *gorm.DB
	audit *AuditService
	cfg   config.AuthConfig

	// now is swapped in tests.
	now func() time.Time
}

// NewAuthenticator returns an authenticator backed by the given database.
func NewAuthenticator(db *gorm.DB, audit *AuditService, cfg config.AuthConfig) *Authenticator {
	return &Authenticator{db: db, audit: audit, cfg: cfg, now: time.Now}
}

// LoginRequest carries a credential pair. Organization is an optional slug
// scoping the email lookup; without it the email must identify exactly one
// account across all organizations.
type LoginRequest struct {
	Email        string
	Password     string
	Organization string
}

// LoginResult is a successful authentication outcome.
type LoginResult struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Login authenticates a credential pair and mints a session on success.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Authenticator) Login(req LoginRequest, info RequestInfo) (*LoginResult, error) {
	now := s.now()

	user, err := s.resolveUser(req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.audit.LogLoginFailed(req.Email, "unknown identifier", info)
		}
		return nil, err
	}

	// A locked account refuses authentication outright; the password is not
	// compared so a correct guess neither succeeds nor resets the window.
	if user.IsLocked(now) {
		s.audit.LogLoginFailed(user.Email, "account locked", info)
		return nil, &AccountLockedError{Until: *user.LockedUntil}
	}

	if user.Status != model.UserStatusActive {
		s.audit.LogLoginFailed(user.Email, "account "+user.Status, info)
		return nil, &AccountNotActiveError{Status: user.Status}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, s.recordFailedAttempt(user, info)
	}

	// Successful authentication always clears the lockout state.
	updates := map[string]interface{}{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login":            now,
	}
	if err := s.db.Model(&model.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now

	token, expiresAt, err := jwtutil.Issue(user)
	if err != nil {
		return nil, err
	}

	s.audit.LogLoginSuccess(user, info)
	return &LoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Authenticator) resolveUser(req LoginRequest) (*model.User, error) {
	query := s.db.Model(&model.User{}).Where("users.email = ?", req.Email)
	if req.Organization != "" {
		query = query.
			Joins("JOIN organizations ON organizations.id = users.organization_id").
			Where("organizations.slug = ?", req.Organization)
	}

	var users []model.User
	if err := query.Limit(2).Find(&users).Error; err != nil {
		return nil, err
	}
	// Zero matches and an ambiguous email both collapse to the generic
	// failure; the latter requires the caller to supply the organization.
	if len(users) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &users[0], nil
}

// recordFailedAttempt increments the counter and, when the threshold is
// reached, opens the lockout window — in one conditional UPDATE.
func (s *Authenticator) recordFailedAttempt(user *model.User, info RequestInfo) error {
	now := s.now()
	lockUntil := now.Add(s.cfg.LockoutDuration)

	err := s.db.Model(&model.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
			"locked_until": gorm.Expr(
				"CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE locked_until END",
				s.cfg.MaxLoginFails, lockUntil),
		}).Error
	if err != nil {
		return err
	}

	// Re-read to observe the count this attempt landed on; concurrent
	// attempts may have pushed it further, which is fine.
	var updated model.User
	if err := s.db.First(&updated, user.ID).Error; err != nil {
		return err
	}

	s.audit.LogLoginFailed(user.Email, "invalid password", info)

	if updated.FailedLoginAttempts >= s.cfg.MaxLoginFails {
		prometheus.AccountLockoutCounter.Inc()
		s.audit.LogAccountLocked(&updated, updated.FailedLoginAttempts, info)
		logger.GetLogger().Warn("account locked",
			zap.String("email", updated.Email),
			zap.Int("failed_attempts", updated.FailedLoginAttempts))
		until := lockUntil
		if updated.LockedUntil != nil {
			until = *updated.LockedUntil
		}
		return &AccountLockedError{Until: until}
	}

	return &RemainingAttemptsError{Remaining: s.cfg.MaxLoginFails - updated.FailedLoginAttempts}
}

// RegisterRequest carries the fields for a new identity.
type RegisterRequest struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Role           model.Role
	OrganizationID *uint
}

// Register creates a new active identity with zero lockout counters. The
// email must be unused within the target organization. A session is not
// issued; the caller logs in explicitly if it wants one.
func (s *Authenticator) Register(req RegisterRequest, createdByEmail string, info RequestInfo) (*model.User, error) {
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if !req.Role.Valid() {
		return nil, errors.New("unknown role: " + string(req.Role))
	}

	var count int64
	scope := s.db.Model(&model.User{}).Where("email = ?", req.Email)
	if req.OrganizationID != nil {
		scope = scope.Where("organization_id = ?", *req.OrganizationID)
	} else {
		scope = scope.Where("organization_id IS NULL")
	}
	if err := scope.Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	verifyToken, err := model.NewTokenString()
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:                  req.Email,
		PasswordHash:           string(hash),
		FirstName:              req.FirstName,
		LastName:               req.LastName,
		Role:                   req.Role,
		OrganizationID:         req.OrganizationID,
		Status:                 model.UserStatusActive,
		EmailVerificationToken: verifyToken,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}

	s.audit.LogUserCreated(user, createdByEmail, info)
	return user, nil
}

// Logout stamps last activity. Sessions are stateless, so this is advisory:
// the bearer token stays valid until its natural expiry.
func (s *Authenticator) Logout(user *model.User, info RequestInfo) error {
	now := s.now()
	if err := s.db.Model(&model.User{}).Where("id = ?", user.ID).
		Update("last_activity", now).Error; err != nil {
		return err
	}
	s.audit.LogLogout(user, info)
	return nil
}

// RequestPasswordReset issues a single-use reset token for the account, if
// one exists. The empty return for unknown emails is deliberate: callers
// respond identically either way.
func (s *Authenticator) RequestPasswordReset(email string, info RequestInfo) (string, error) {
	var user model.User
	err := s.db.Where("email = ?", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}

	token, hash, err := model.NewResetToken()
	if err != nil {
		return "", err
	}

	reset := &model.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: hash,
		ExpiresAt: s.now().Add(s.cfg.ResetTokenTTL),
	}
	if err := s.db.Create(reset).Error; err != nil {
		return "", err
	}

	s.audit.LogPasswordResetRequested(&user, info)
	return token, nil
}

// CompletePasswordReset verifies a reset token and installs the new
// password. The token is consumed with a conditional UPDATE so it can be
// used at most once. Completing a reset also clears the lockout state, as a
// reset proves control of the account.
func (s *Authenticator) CompletePasswordReset(token, newPassword string, info RequestInfo) error {
	now := s.now()

	var reset model.PasswordResetToken
	err := s.db.Where("token_hash = ?", model.HashResetToken(token)).First(&reset).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if reset.UsedAt != nil || !reset.ExpiresAt.After(now) {
		return ErrResetTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.BcryptCost)
	if err != nil {
		return err
	}

	var user model.User
	if err := s.db.First(&user, reset.UserID).Error; err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrResetTokenInvalid
		}

		if err := tx.Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"password_hash":         string(hash),
			"failed_login_attempts": 0,
			"locked_until":          nil,
		}).Error; err != nil {
			return err
		}

		s.audit.LogPasswordResetCompleted(&user, info)
		return nil
	})
}

// VerifyEmail flips the verified flag for the account holding the given
// verification token.
func (s *Authenticator) VerifyEmail(token string, info RequestInfo) error {
	if token == "" {
		return ErrResetTokenInvalid
	}

	var user model.User
	err := s.db.Where("email_verification_token = ?", token).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	if err := s.db.Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"email_verified":           true,
		"email_verification_token": "",
	}).Error; err != nil {
		return err
	}

	s.audit.LogEmailVerified(&user, info)
	return nil
}

// ListOrgUsers returns the accounts belonging to one organization, newest
// first.
func (s *Authenticator) ListOrgUsers(orgID uint) ([]model.User, error) {
	defer prometheus.TrackDBOperation("query")(time.Now())

	var users []model.User
	err := s.db.Where("organization_id = ?", orgID).
		Order("created_at DESC").Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}
