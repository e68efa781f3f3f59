package middleware

import (
	"errors"
	"net/http"
	"strings"

	"lms-auth-service/internal/model"
	"lms-auth-service/pkg/jwtutil"
	"lms-auth-service/pkg/logger"
	"lms-auth-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// JWTAuth verifies the bearer session and attaches the resolved identity to
// the request. The user row is re-read so status changes take effect before
// the token expires.
func JWTAuth(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromContext(c)

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				prometheus.RecordAuthError("missing_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing authorization token"})
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				prometheus.RecordAuthError("invalid_auth_format")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid authorization format, expected Bearer token"})
			}

			claims, err := jwtutil.Verify(parts[1])
			if err != nil {
				// Expired gets its own message so clients know to log in
				// again; everything else stays generic.
				if errors.Is(err, jwtutil.ErrTokenExpired) {
					prometheus.RecordAuthError("token_expired")
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token expired, please log in again"})
				}
				log.Debug("session verification failed", zap.Error(err))
				prometheus.RecordAuthError("invalid_token")
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			var user model.User
			if err := db.First(&user, claims.UserID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					prometheus.RecordAuthError("user_not_found")
					return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
				}
				log.Error("failed to load user for session", zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
			}

			if user.Status != model.UserStatusActive {
				prometheus.RecordAuthError("account_not_active")
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account is " + user.Status})
			}

			c.Set(authContextKey, &AuthContext{
				User:              &user,
				UserID:            user.ID,
				Email:             user.Email,
				Role:              user.Role,
				OrganizationID:    user.OrganizationID,
				IsPlatformAccount: user.IsPlatformAccount,
			})

			return next(c)
		}
	}
}
