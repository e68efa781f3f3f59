package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/jwtutil"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

func authRequest(t *testing.T, header string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestJWTAuthMissingHeader(t *testing.T) {
	db := openTestDB(t)
	c, rec := authRequest(t, "")

	if err := JWTAuth(db)(okHandler)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestJWTAuthBadFormat(t *testing.T) {
	db := openTestDB(t)
	for _, header := range []string{"token abc", "Bearer"} {
		c, rec := authRequest(t, header)
		if err := JWTAuth(db)(okHandler)(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", header, rec.Code)
		}
	}
}

func TestJWTAuthExpiredToken(t *testing.T) {
	db := openTestDB(t)
	org := seedOrg(t, db, "Acme University", "acme", model.OrgStatusActive)
	user := seedUser(t, db, "student@acme.edu", model.RoleStudent, &org.ID, false)

	past := time.Now().Add(-2 * time.Hour)
	claims := jwtutil.SessionClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	c, rec := authRequest(t, "Bearer "+token)
	if err := JWTAuth(db)(okHandler)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "token expired") {
		t.Errorf("expired token should get its own message, got %s", rec.Body.String())
	}
}

func TestJWTAuthInvalidToken(t *testing.T) {
	db := openTestDB(t)
	c, rec := authRequest(t, "Bearer not-a-real-token")

	if err := JWTAuth(db)(okHandler)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "expired") {
		t.Errorf("malformed token must not be reported as expired")
	}
}

func TestJWTAuthValidToken(t *testing.T) {
	db := openTestDB(t)
	org := seedOrg(t, db, "Acme University", "acme", model.OrgStatusActive)
	user := seedUser(t, db, "student@acme.edu", model.RoleStudent, &org.ID, false)

	token, _, err := jwtutil.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var seen *AuthContext
	handler := JWTAuth(db)(func(c echo.Context) error {
		seen, _ = AuthFromContext(c)
		return c.NoContent(http.StatusOK)
	})

	c, rec := authRequest(t, "Bearer "+token)
	if err := handler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.UserID != user.ID || seen.Email != user.Email {
		t.Errorf("auth context not attached: %+v", seen)
	}
}

func TestJWTAuthSuspendedAccount(t *testing.T) {
	db := openTestDB(t)
	org := seedOrg(t, db, "Acme University", "acme", model.OrgStatusActive)
	user := seedUser(t, db, "student@acme.edu", model.RoleStudent, &org.ID, false)

	token, _, err := jwtutil.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// The session outlives the suspension; the re-read must catch it.
	if err := db.Model(user).Update("status", model.UserStatusSuspended).Error; err != nil {
		t.Fatalf("suspend: %v", err)
	}

	c, rec := authRequest(t, "Bearer "+token)
	if err := JWTAuth(db)(okHandler)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestJWTAuthDeletedUser(t *testing.T) {
	db := openTestDB(t)
	org := seedOrg(t, db, "Acme University", "acme", model.OrgStatusActive)
	user := seedUser(t, db, "student@acme.edu", model.RoleStudent, &org.ID, false)

	token, _, err := jwtutil.Issue(user)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := db.Delete(user).Error; err != nil {
		t.Fatalf("delete: %v", err)
	}

	c, rec := authRequest(t, "Bearer "+token)
	if err := JWTAuth(db)(okHandler)(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	e := echo.New()

	t.Run("generates when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := RequestIDMiddleware(okHandler)(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if rec.Header().Get(RequestIDHeader) == "" {
			t.Errorf("response missing generated request id")
		}
	})

	t.Run("echoes when present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-12345")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := RequestIDMiddleware(okHandler)(c); err != nil {
			t.Fatalf("handler: %v", err)
		}
		if got := rec.Header().Get(RequestIDHeader); got != "req-12345" {
			t.Errorf("request id = %q, want req-12345", got)
		}
	})
}
