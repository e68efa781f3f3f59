package middleware

import (
	"net/http"

	"lms-auth-service/internal/model"
	"lms-auth-service/prometheus"

	"github.com/labstack/echo/v4"
)

// Authorize gates a route on an exact role allow-list. Membership is an
// exact set test, never a rank comparison: authorize(admin) does not admit
// manager. Rank comparisons are reserved for ownership checks
// (Role.AtLeast).
func Authorize(allowed ...model.Role) echo.MiddlewareFunc {
	allowedSet := make(map[model.Role]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, ok := AuthFromContext(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			if ac.User.Status != model.UserStatusActive {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account is " + ac.User.Status})
			}

			if _, ok := allowedSet[ac.Role]; !ok {
				prometheus.RecordAuthError("insufficient_role")
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":          "access denied",
					"required_roles": allowed,
					"your_role":      ac.Role,
				})
			}

			return next(c)
		}
	}
}

// RequireOrgAdmin passes platform accounts unconditionally, otherwise
// requires the caller to be the organization's super admin or hold the
// admin role.
func RequireOrgAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ac, ok := AuthFromContext(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}

		if ac.IsPlatformAccount {
			return next(c)
		}

		if oc, ok := OrgFromContext(c); ok && oc.Organization != nil &&
			oc.Organization.SuperAdminID != nil && *oc.Organization.SuperAdminID == ac.UserID {
			return next(c)
		}

		if ac.Role == model.RoleAdmin {
			return next(c)
		}

		prometheus.RecordAuthError("insufficient_role")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "organization admin access required"})
	}
}

// RequirePlatformAccount passes only identities with the platform flag.
func RequirePlatformAccount(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ac, ok := AuthFromContext(c)
		if !ok {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		}

		if !ac.IsPlatformAccount {
			prometheus.RecordAuthError("platform_account_required")
			return c.JSON(http.StatusForbidden, echo.Map{"error": "platform account required"})
		}

		return next(c)
	}
}
