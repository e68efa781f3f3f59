package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"lms-auth-service/internal/service"
	"lms-auth-service/pkg/logger"
	"lms-auth-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// writeServiceError translates expected service failures into their HTTP
// form. Token lifecycle failures collapse to a generic message so token
// state cannot be probed from outside. Anything unrecognized is a 500 with
// no internal detail.
func writeServiceError(c echo.Context, err error) error {
	var locked *service.AccountLockedError
	if errors.As(err, &locked) {
		retryAfter := int(time.Until(locked.Until).Seconds())
		if retryAfter < 0 {
			retryAfter = 0
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
		prometheus.RecordAuthError("account_locked")
		return c.JSON(http.StatusLocked, echo.Map{
			"error":        "account locked due to too many failed login attempts",
			"locked_until": locked.Until,
		})
	}

	var notActive *service.AccountNotActiveError
	if errors.As(err, &notActive) {
		prometheus.RecordAuthError("account_not_active")
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	}

	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		prometheus.RecordAuthError("invalid_credentials")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})

	case errors.Is(err, service.ErrEmailTaken):
		prometheus.RecordAuthError("email_taken")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})

	case errors.Is(err, service.ErrTokenEmailTaken):
		return c.JSON(http.StatusConflict, echo.Map{"error": "an organization or active token already exists for this email"})

	case errors.Is(err, service.ErrTokenNotFound):
		prometheus.RecordAuthError("org_token_invalid")
		return c.JSON(http.StatusNotFound, echo.Map{"error": "invalid or expired token"})

	case errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrTokenUsed),
		errors.Is(err, service.ErrTokenRevoked):
		prometheus.RecordAuthError("org_token_invalid")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})

	case errors.Is(err, service.ErrTokenUsedRevoke):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot revoke a used token"})

	case errors.Is(err, service.ErrResetTokenInvalid):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid or expired token"})

	case errors.Is(err, service.ErrOrgNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})

	case errors.Is(err, service.ErrOrgHasUsers):
		return c.JSON(http.StatusConflict, echo.Map{"error": "cannot delete organization with existing users"})
	}

	logger.FromContext(c).Error("unexpected service error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

func requestInfo(c echo.Context) service.RequestInfo {
	return service.RequestInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
