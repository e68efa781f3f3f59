package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/config"
	"lms-auth-service/pkg/database"
	"lms-auth-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testSigningKey = "middleware-test-key"

func init() {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: testSigningKey, ExpirationHours: 1})
}

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
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedOrg(t *testing.T, db *gorm.DB, name, slug, status string) *model.Organization {
	t.Helper()
	org := &model.Organization{Name: name, Slug: slug, Email: slug + "@example.com", Status: status}
	if err := db.Create(org).Error; err != nil {
		t.Fatalf("seed org: %v", err)
	}
	return org
}

func seedUser(t *testing.T, db *gorm.DB, email string, role model.Role, orgID *uint, platform bool) *model.User {
	t.Helper()
	user := &model.User{
		Email:             email,
		PasswordHash:      "x",
		Role:              role,
		OrganizationID:    orgID,
		IsPlatformAccount: platform,
		Status:            model.UserStatusActive,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// newTestContext builds an echo context around a bare GET request.
func newTestContext(t *testing.T) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func setAuth(c echo.Context, user *model.User) {
	c.Set(authContextKey, &AuthContext{
		User:              user,
		UserID:            user.ID,
		Email:             user.Email,
		Role:              user.Role,
		OrganizationID:    user.OrganizationID,
		IsPlatformAccount: user.IsPlatformAccount,
	})
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
