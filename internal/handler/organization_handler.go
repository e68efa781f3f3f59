package handler

import (
	"net/http"
	"strconv"

	"lms-auth-service/internal/middleware"
	"lms-auth-service/internal/model"
	"lms-auth-service/internal/service"
	"lms-auth-service/pkg/logger"
	"lms-auth-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// OrganizationHandler exposes the registration token lifecycle and the
// organization read/update surface.
type OrganizationHandler struct {
	tokens *service.OrgTokenService
	orgs   *service.OrgService
}

// NewOrganizationHandler wires the organization services behind the HTTP
// surface.
func NewOrganizationHandler(tokens *service.OrgTokenService, orgs *service.OrgService) *OrganizationHandler {
	return &OrganizationHandler{tokens: tokens, orgs: orgs}
}

// CreateToken issues a registration token. Platform accounts only (enforced
// by route middleware).
func (h *OrganizationHandler) CreateToken(c echo.Context) error {
	log := logger.FromContext(c)
	ac, ok := middleware.AuthFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		OrganizationName string `json:"organization_name"`
		Email            string `json:"email"`
		ExpiryDays       int    `json:"expiry_days,omitempty"`
		Notes            string `json:"notes,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.OrganizationName == "" || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "organization_name and email are required"})
	}

	token, err := h.tokens.CreateToken(service.CreateTokenRequest{
		OrganizationName: req.OrganizationName,
		Email:            req.Email,
		ExpiryDays:       req.ExpiryDays,
		Notes:            req.Notes,
	}, ac.User, requestInfo(c))
	if err != nil {
		return writeServiceError(c, err)
	}

	prometheus.RecordTokenTransition("created")
	log.Info("registration token created",
		zap.String("organization_name", token.OrganizationName),
		zap.Time("expires_at", token.ExpiresAt))

	return c.JSON(http.StatusCreated, echo.Map{"token": token})
}

// ListTokens returns registration tokens for the platform dashboard.
func (h *OrganizationHandler) ListTokens(c echo.Context) error {
	status := model.TokenStatus(c.QueryParam("status"))
	tokens, err := h.tokens.ListTokens(status)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tokens": tokens})
}

// RevokeToken explicitly retires an unused registration token.
func (h *OrganizationHandler) RevokeToken(c echo.Context) error {
	ac, ok := middleware.AuthFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	// Body is optional for revocation.
	_ = c.Bind(&req)

	if err := h.tokens.Revoke(c.Param("token"), req.Reason, ac.User, requestInfo(c)); err != nil {
		return writeServiceError(c, err)
	}

	prometheus.RecordTokenTransition("revoked")
	return c.JSON(http.StatusOK, echo.Map{"message": "token revoked"})
}

// ValidateToken is the public pre-flight used by the registration UI. The
// response never distinguishes why a token is unusable.
func (h *OrganizationHandler) ValidateToken(c echo.Context) error {
	token, err := h.tokens.Validate(c.Param("token"))
	if err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"valid":             true,
		"organization_name": token.OrganizationName,
		"expires_at":        token.ExpiresAt,
	})
}

// RegisterOrganization consumes a registration token, creating the new
// organization and its super admin in one unit.
func (h *OrganizationHandler) RegisterOrganization(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrgOperation("register")

	var req struct {
		Token      string `json:"token"`
		SuperAdmin struct {
			Email     string `json:"email"`
			Password  string `json:"password"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		} `json:"super_admin"`
		Organization struct {
			Name        string `json:"name,omitempty"`
			Slug        string `json:"slug,omitempty"`
			Email       string `json:"email,omitempty"`
			Description string `json:"description,omitempty"`
		} `json:"organization"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}
	sa := req.SuperAdmin
	if sa.Email == "" || sa.Password == "" || sa.FirstName == "" || sa.LastName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "super_admin email, password, first_name and last_name are required"})
	}
	if len(sa.Password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 6 characters long"})
	}

	result, err := h.tokens.RegisterOrganization(req.Token,
		service.SuperAdminRequest{
			Email:     sa.Email,
			Password:  sa.Password,
			FirstName: sa.FirstName,
			LastName:  sa.LastName,
		},
		service.OrgRequest{
			Name:        req.Organization.Name,
			Slug:        req.Organization.Slug,
			Email:       req.Organization.Email,
			Description: req.Organization.Description,
		}, requestInfo(c))
	if err != nil {
		return writeServiceError(c, err)
	}

	prometheus.RecordTokenTransition("used")
	prometheus.ActiveOrganizationsGauge.Inc()
	log.Info("organization registered",
		zap.String("name", result.Organization.Name),
		zap.String("slug", result.Organization.Slug),
		zap.Uint("super_admin_id", result.SuperAdmin.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":      "organization registered successfully",
		"organization": result.Organization,
		"super_admin":  result.SuperAdmin,
	})
}

// ListOrganizations returns all organizations. Platform accounts only.
func (h *OrganizationHandler) ListOrganizations(c echo.Context) error {
	orgs, err := h.orgs.List(c.QueryParam("status"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"organizations": orgs})
}

// GetOrganization returns one organization; non-platform callers can only
// reach their own (ownership middleware enforces the id).
func (h *OrganizationHandler) GetOrganization(c echo.Context) error {
	prometheus.RecordOrgOperation("access")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid organization id"})
	}

	org, err := h.orgs.GetByID(uint(id))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"organization": org})
}

// UpdateOrganization applies the allowed fields. Requires org admin.
func (h *OrganizationHandler) UpdateOrganization(c echo.Context) error {
	prometheus.RecordOrgOperation("update")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid organization id"})
	}

	var req struct {
		Description *string `json:"description,omitempty"`
		Email       *string `json:"email,omitempty"`
		Status      *string `json:"status,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	org, err := h.orgs.Update(uint(id), service.OrgUpdate{
		Description: req.Description,
		Email:       req.Email,
		Status:      req.Status,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"organization": org})
}

// DeleteOrganization soft-deletes an organization without users. Platform
// accounts only.
func (h *OrganizationHandler) DeleteOrganization(c echo.Context) error {
	prometheus.RecordOrgOperation("delete")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid organization id"})
	}

	if err := h.orgs.Delete(uint(id)); err != nil {
		return writeServiceError(c, err)
	}

	prometheus.ActiveOrganizationsGauge.Dec()
	return c.JSON(http.StatusOK, echo.Map{"message": "organization deleted"})
}
