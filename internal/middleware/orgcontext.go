package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"lms-auth-service/internal/model"
	"lms-auth-service/internal/service"
	"lms-auth-service/pkg/logger"
	"lms-auth-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrgHeader is the side-channel through which platform accounts target a
// specific organization. Regular users never supply it.
const OrgHeader = "X-Organization-ID"

// OrgContextMiddleware resolves the effective organization for the request.
// Platform accounts may target any organization (or none, for platform-wide
// operations); everyone else is bound to their own, which must exist and be
// active.
func OrgContextMiddleware(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			ac, ok := AuthFromContext(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}

			if ac.IsPlatformAccount {
				targetID := c.Request().Header.Get(OrgHeader)
				if targetID == "" {
					targetID = c.QueryParam("organization_id")
				}
				if targetID == "" {
					c.Set(orgContextKey, &OrgContext{})
					return next(c)
				}

				id, err := strconv.ParseUint(targetID, 10, 32)
				if err != nil {
					return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid organization id"})
				}

				var org model.Organization
				if err := db.First(&org, uint(id)).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						prometheus.RecordAuthError("org_not_found")
						return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
					}
					log.Error("failed to load target organization", zap.Error(err))
					return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
				}

				c.Set(orgContextKey, &OrgContext{Organization: &org})
				return next(c)
			}

			// A non-platform identity without an organization reference is a
			// corrupt row; it must never happen.
			if ac.OrganizationID == nil {
				log.Error("user has no organization context",
					zap.Uint("user_id", ac.UserID),
					zap.String("email", ac.Email))
				prometheus.RecordAuthError("no_org_context")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "no organization context"})
			}

			var org model.Organization
			if err := db.First(&org, *ac.OrganizationID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					prometheus.RecordAuthError("org_not_found")
					return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
				}
				log.Error("failed to load organization", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}

			if !org.IsActive() {
				prometheus.RecordAuthError("org_not_active")
				return c.JSON(http.StatusForbidden, echo.Map{
					"error":  "organization is not active",
					"status": org.Status,
				})
			}

			c.Set(orgContextKey, &OrgContext{Organization: &org})
			return next(c)
		}
	}
}

// VerifyOrgOwnership rejects requests whose path or query names an
// organization other than the resolved one. Platform accounts are exempt.
func VerifyOrgOwnership(field string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ac, ok := AuthFromContext(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if ac.IsPlatformAccount {
				return next(c)
			}

			raw := c.Param(field)
			if raw == "" {
				raw = c.QueryParam(field)
			}
			if raw == "" {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "resource organization id not found"})
			}

			resourceOrgID, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid organization id"})
			}

			if err := CheckOwnership(c, uint(resourceOrgID)); err != nil {
				prometheus.RecordAuthError("cross_org_access")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied - resource belongs to different organization"})
			}

			return next(c)
		}
	}
}

// CheckOwnership compares a resource-carried organization id against the
// resolved request organization. Handlers call it for body-carried ids;
// VerifyOrgOwnership calls it for path and query ids. Platform accounts
// always pass.
func CheckOwnership(c echo.Context, resourceOrgID uint) error {
	ac, ok := AuthFromContext(c)
	if !ok {
		return service.ErrCrossOrgAccess
	}
	if ac.IsPlatformAccount {
		return nil
	}

	oc, ok := OrgFromContext(c)
	if !ok || oc.Organization == nil {
		return service.ErrCrossOrgAccess
	}
	if oc.Organization.ID != resourceOrgID {
		return service.ErrCrossOrgAccess
	}
	return nil
}
