package middleware

import (
	"lms-auth-service/internal/model"

	"github.com/labstack/echo/v4"
)

const (
	authContextKey = "auth_context"
	orgContextKey  = "org_context"
)

// AuthContext is the immutable per-request identity resolved from a verified
// session. Middleware attaches it once; downstream code only reads it.
type AuthContext struct {
	User              *model.User
	UserID            uint
	Email             string
	Role              model.Role
	OrganizationID    *uint
	IsPlatformAccount bool
}

// OrgContext is the per-request organization resolved for data scoping.
// Nil Organization means a platform account operating without a target
// organization (platform-wide operations only).
type OrgContext struct {
	Organization *model.Organization
}

// AuthFromContext returns the identity attached by the session middleware.
func AuthFromContext(c echo.Context) (*AuthContext, bool) {
	ac, ok := c.Get(authContextKey).(*AuthContext)
	return ac, ok
}

// OrgFromContext returns the organization attached by the org middleware.
func OrgFromContext(c echo.Context) (*OrgContext, bool) {
	oc, ok := c.Get(orgContextKey).(*OrgContext)
	return oc, ok
}
