package handler

import (
	"net/http"

	"lms-auth-service/internal/middleware"
	"lms-auth-service/internal/model"
	"lms-auth-service/internal/service"
	"lms-auth-service/pkg/logger"
	"lms-auth-service/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// AuthHandler exposes the credential endpoints: login, registration, logout
// and the password reset / email verification flows.
type AuthHandler struct {
	auth *service.Authenticator
	orgs *service.OrgService
}

// NewAuthHandler wires the authenticator behind the HTTP surface.
func NewAuthHandler(auth *service.Authenticator, orgs *service.OrgService) *AuthHandler {
	return &AuthHandler{auth: auth, orgs: orgs}
}

// Login authenticates a credential pair and returns a bearer session.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email        string `json:"email"`
		Password     string `json:"password"`
		Organization string `json:"organization,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	result, err := h.auth.Login(service.LoginRequest{
		Email:        req.Email,
		Password:     req.Password,
		Organization: req.Organization,
	}, requestInfo(c))
	if err != nil {
		return writeServiceError(c, err)
	}

	prometheus.ActiveSessionsGauge.Inc()
	log.Info("user logged in",
		zap.String("email", result.User.Email),
		zap.String("role", result.User.Role.String()))

	return c.JSON(http.StatusOK, echo.Map{
		"token":      result.Token,
		"expires_at": result.ExpiresAt,
		"user":       result.User,
	})
}

// Register creates a new account within an organization. A session is only
// issued when explicitly requested.
func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email        string     `json:"email"`
		Password     string     `json:"password"`
		FirstName    string     `json:"first_name"`
		LastName     string     `json:"last_name"`
		Role         model.Role `json:"role,omitempty"`
		Organization string     `json:"organization"`
		IssueSession bool       `json:"issue_session,omitempty"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" || req.FirstName == "" || req.LastName == "" {
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, password, first_name and last_name are required"})
	}
	if len(req.Password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 6 characters long"})
	}
	if req.Organization == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "organization is required"})
	}

	org, err := h.orgs.GetBySlug(req.Organization)
	if err != nil {
		return writeServiceError(c, err)
	}

	user, err := h.auth.Register(service.RegisterRequest{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           req.Role,
		OrganizationID: &org.ID,
	}, "", requestInfo(c))
	if err != nil {
		return writeServiceError(c, err)
	}

	log.Info("user registered",
		zap.String("email", user.Email),
		zap.Uint("organization_id", org.ID))

	response := echo.Map{
		"message": "user registered successfully",
		"user":    user,
	}

	if req.IssueSession {
		result, err := h.auth.Login(service.LoginRequest{
			Email:        req.Email,
			Password:     req.Password,
			Organization: req.Organization,
		}, requestInfo(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		response["token"] = result.Token
		response["expires_at"] = result.ExpiresAt
	}

	return c.JSON(http.StatusCreated, response)
}

// Me returns the authenticated identity.
func (h *AuthHandler) Me(c echo.Context) error {
	ac, ok := middleware.AuthFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": ac.User})
}

// Logout is advisory: sessions are stateless and the token remains valid
// until expiry. Last activity is stamped and the event audited.
func (h *AuthHandler) Logout(c echo.Context) error {
	ac, ok := middleware.AuthFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	if err := h.auth.Logout(ac.User, requestInfo(c)); err != nil {
		return writeServiceError(c, err)
	}

	prometheus.ActiveSessionsGauge.Dec()
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out successfully"})
}

// RequestPasswordReset issues a reset token. The response is identical
// whether or not the account exists.
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email is required"})
	}

	token, err := h.auth.RequestPasswordReset(req.Email, requestInfo(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	if token != "" {
		// Delivery is out of band; the token never appears in the response.
		log.Info("password reset requested", zap.String("email", req.Email))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "if the email is registered, reset instructions have been sent",
	})
}

// ConfirmPasswordReset consumes a reset token and installs a new password.
func (h *AuthHandler) ConfirmPasswordReset(c echo.Context) error {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token and new_password are required"})
	}
	if len(req.NewPassword) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 6 characters long"})
	}

	if err := h.auth.CompletePasswordReset(req.Token, req.NewPassword, requestInfo(c)); err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "password has been reset"})
}

// ListUsers returns the accounts of the resolved organization. Every query
// is scoped by the organization id attached by the middleware chain;
// platform accounts without a target organization see nothing here.
func (h *AuthHandler) ListUsers(c echo.Context) error {
	oc, ok := middleware.OrgFromContext(c)
	if !ok || oc.Organization == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "organization context required"})
	}

	users, err := h.auth.ListOrgUsers(oc.Organization.ID)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// VerifyEmail confirms an email address from its verification token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req struct {
		Token string `json:"token"`
	}
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}

	if err := h.auth.VerifyEmail(req.Token, requestInfo(c)); err != nil {
		return writeServiceError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "email verified"})
}
