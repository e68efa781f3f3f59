package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/config"
	"lms-auth-service/pkg/database"
	"lms-auth-service/pkg/jwtutil"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testInfo = RequestInfo{IP: "127.0.0.1", UserAgent: "go-test"}

func init() {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "service-test-key", ExpirationHours: 1})
}

// openTestDB gives each test its own in-memory database with the full schema.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	// Shared-cache sqlite locks up under concurrent writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		BcryptCost:      bcrypt.MinCost,
		MaxLoginFails:   5,
		LockoutDuration: 3 * time.Hour,
		ResetTokenTTL:   time.Hour,
	}
}

func testTokenConfig() config.OrgTokenConfig {
	return config.OrgTokenConfig{DefaultExpiryDays: 7}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func seedOrg(t *testing.T, db *gorm.DB, name, slug string) *model.Organization {
	t.Helper()
	org := &model.Organization{
		Name:   name,
		Slug:   slug,
		Email:  slug + "@example.com",
		Status: model.OrgStatusActive,
	}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("seed org: %v", err)
	}
	return org
}

func seedUser(t *testing.T, db *gorm.DB, email, password string, orgID *uint) *model.User {
	t.Helper()
	user := &model.User{
		Email:          email,
		PasswordHash:   mustHash(t, password),
		FirstName:      "Test",
		LastName:       "User",
		Role:           model.RoleStudent,
		OrganizationID: orgID,
		Status:         model.UserStatusActive,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedPlatformAdmin(t *testing.T, db *gorm.DB, email string) *model.User {
	t.Helper()
	user := &model.User{
		Email:             email,
		PasswordHash:      mustHash(t, "platform-pass"),
		Role:              model.RoleAdmin,
		IsPlatformAccount: true,
		Status:            model.UserStatusActive,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed platform admin: %v", err)
	}
	return user
}

func countAudit(t *testing.T, db *gorm.DB, action string) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	return n
}

func reloadUser(t *testing.T, db *gorm.DB, id uint) *model.User {
	t.Helper()
	var user model.User
	if err := db.First(&user, id).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return &user
}

func reloadToken(t *testing.T, db *gorm.DB, id uint) *model.OrganizationToken {
	t.Helper()
	var token model.OrganizationToken
	if err := db.First(&token, id).Error; err != nil {
		t.Fatalf("reload token: %v", err)
	}
	return &token
}
