package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/config"
	"lms-auth-service/pkg/database"
	"lms-auth-service/pkg/jwtutil"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	jwtutil.Initialize(&config.JWTConfig{SigningKey: "server-test-key", ExpirationHours: 1})
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			BcryptCost:      bcrypt.MinCost,
			MaxLoginFails:   5,
			LockoutDuration: 3 * time.Hour,
			ResetTokenTTL:   time.Hour,
		},
		OrgToken: config.OrgTokenConfig{DefaultExpiryDays: 7},
	}
}

func newTestServer(t *testing.T) (*echo.Echo, *gorm.DB) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return New(testConfig(), db), db
}

func seedOrg(t *testing.T, db *gorm.DB, name, slug string) *model.Organization {
	t.Helper()
	org := &model.Organization{Name: name, Slug: slug, Email: slug + "@example.com", Status: model.OrgStatusActive}
	require.NoError(t, db.Create(org).Error)
	return org
}

func seedUser(t *testing.T, db *gorm.DB, email, password string, role model.Role, orgID *uint, platform bool) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	user := &model.User{
		Email:             email,
		PasswordHash:      string(hash),
		FirstName:         "Seed",
		LastName:          "User",
		Role:              role,
		OrganizationID:    orgID,
		IsPlatformAccount: platform,
		Status:            model.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// do sends a JSON request through the full middleware chain and decodes the
// response body.
func do(t *testing.T, e *echo.Echo, method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *strings.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	decoded := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func login(t *testing.T, e *echo.Echo, email, password string) string {
	t.Helper()
	rec, body := do(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    email,
		"password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, "login response: %s", rec.Body.String())
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestHealthEndpoint(t *testing.T) {
	e, _ := newTestServer(t)
	rec, body := do(t, e, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestLoginAndMe(t *testing.T) {
	e, db := newTestServer(t)
	org := seedOrg(t, db, "Acme University", "acme")
	seedUser(t, db, "student@acme.edu", "password1", model.RoleStudent, &org.ID, false)

	rec, _ := do(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "student@acme.edu",
		"password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token := login(t, e, "student@acme.edu", "password1")

	rec, body := do(t, e, http.MethodGet, "/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "student@acme.edu", user["email"])
}

func TestLoginLockoutOverHTTP(t *testing.T) {
	e, db := newTestServer(t)
	org := seedOrg(t, db, "Acme University", "acme")
	seedUser(t, db, "student@acme.edu", "password1", model.RoleStudent, &org.ID, false)

	var rec *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		rec, _ = do(t, e, http.MethodPost, "/auth/login", "", map[string]string{
			"email":    "student@acme.edu",
			"password": "wrong password",
		})
	}
	require.Equal(t, http.StatusLocked, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Correct password while the window is open is still refused.
	rec, _ = do(t, e, http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "student@acme.edu",
		"password": "password1",
	})
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestRegisterEndpoint(t *testing.T) {
	e, db := newTestServer(t)
	seedOrg(t, db, "Acme University", "acme")

	payload := map[string]interface{}{
		"email":        "new@acme.edu",
		"password":     "password1",
		"first_name":   "New",
		"last_name":    "Student",
		"organization": "acme",
	}

	rec, body := do(t, e, http.MethodPost, "/auth/register", "", payload)
	require.Equal(t, http.StatusCreated, rec.Code, "register response: %s", rec.Body.String())
	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "student", user["role"])

	// Duplicate email within the same organization.
	rec, _ = do(t, e, http.MethodPost, "/auth/register", "", payload)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown organization slug.
	payload["email"] = "someone@else.edu"
	payload["organization"] = "nowhere"
	rec, _ = do(t, e, http.MethodPost, "/auth/register", "", payload)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Short password.
	payload["organization"] = "acme"
	payload["password"] = "abc"
	rec, _ = do(t, e, http.MethodPost, "/auth/register", "", payload)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrganizationRegistrationFlow(t *testing.T) {
	e, db := newTestServer(t)
	seedUser(t, db, "ops@lms.io", "platform-pass", model.RoleAdmin, nil, true)
	platformToken := login(t, e, "ops@lms.io", "platform-pass")

	// Platform account issues a registration token.
	rec, body := do(t, e, http.MethodPost, "/api/organizations/tokens", platformToken, map[string]interface{}{
		"organization_name": "Acme University",
		"email":             "contact@acme.edu",
	})
	require.Equal(t, http.StatusCreated, rec.Code, "create token response: %s", rec.Body.String())
	tokenObj, ok := body["token"].(map[string]interface{})
	require.True(t, ok)
	regToken, _ := tokenObj["token"].(string)
	require.NotEmpty(t, regToken)

	// Public pre-flight check.
	rec, body = do(t, e, http.MethodGet, "/organizations/validate-token/"+regToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, "Acme University", body["organization_name"])

	// Consume the token: organization plus super admin in one unit.
	register := map[string]interface{}{
		"token": regToken,
		"super_admin": map[string]string{
			"email":      "admin@acme.edu",
			"password":   "admin-pass",
			"first_name": "Ada",
			"last_name":  "Admin",
		},
		"organization": map[string]string{},
	}
	rec, body = do(t, e, http.MethodPost, "/organizations/register", "", register)
	require.Equal(t, http.StatusCreated, rec.Code, "register org response: %s", rec.Body.String())
	orgObj, ok := body["organization"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "acme-university", orgObj["slug"])

	// The new super admin can authenticate immediately.
	adminToken := login(t, e, "admin@acme.edu", "admin-pass")
	rec, body = do(t, e, http.MethodGet, "/auth/me", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "admin", user["role"])

	// The token is spent; a second registration is refused generically.
	register["super_admin"].(map[string]string)["email"] = "other@acme.edu"
	rec, body = do(t, e, http.MethodPost, "/organizations/register", "", register)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid or expired token", body["error"])
}

func TestTokenAdministrationRequiresPlatformAccount(t *testing.T) {
	e, db := newTestServer(t)
	org := seedOrg(t, db, "Acme University", "acme")
	seedUser(t, db, "admin@acme.edu", "password1", model.RoleAdmin, &org.ID, false)
	token := login(t, e, "admin@acme.edu", "password1")

	rec, _ := do(t, e, http.MethodPost, "/api/organizations/tokens", token, map[string]interface{}{
		"organization_name": "Globex College",
		"email":             "contact@globex.edu",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/organizations", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCrossOrganizationIsolation(t *testing.T) {
	e, db := newTestServer(t)
	acme := seedOrg(t, db, "Acme University", "acme")
	globex := seedOrg(t, db, "Globex College", "globex")
	seedUser(t, db, "teacher@acme.edu", "password1", model.RoleTeacher, &acme.ID, false)
	token := login(t, e, "teacher@acme.edu", "password1")

	rec, _ := do(t, e, http.MethodGet, fmt.Sprintf("/api/organizations/%d", acme.ID), token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, e, http.MethodGet, fmt.Sprintf("/api/organizations/%d", globex.ID), token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListUsersRoleGate(t *testing.T) {
	e, db := newTestServer(t)
	org := seedOrg(t, db, "Acme University", "acme")
	seedUser(t, db, "student@acme.edu", "password1", model.RoleStudent, &org.ID, false)
	seedUser(t, db, "manager@acme.edu", "password1", model.RoleManager, &org.ID, false)

	studentToken := login(t, e, "student@acme.edu", "password1")
	rec, _ := do(t, e, http.MethodGet, "/api/users", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	managerToken := login(t, e, "manager@acme.edu", "password1")
	rec, body := do(t, e, http.MethodGet, "/api/users", managerToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	users, ok := body["users"].([]interface{})
	require.True(t, ok)
	assert.Len(t, users, 2)
}
