package server

import (
	"lms-auth-service/internal/handler"
	"lms-auth-service/internal/middleware"
	"lms-auth-service/internal/model"
	"lms-auth-service/internal/service"
	"lms-auth-service/pkg/config"
	"lms-auth-service/pkg/logger"
	"lms-auth-service/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"
)

// New assembles the Echo application: services, middleware chains and
// routes. The same wiring serves production and the handler tests.
func New(cfg *config.Config, db *gorm.DB) *echo.Echo {
	audit := service.NewAuditService(db)
	authenticator := service.NewAuthenticator(db, audit, cfg.Auth)
	orgService := service.NewOrgService(db)
	tokenService := service.NewOrgTokenService(db, audit, cfg.Auth, cfg.OrgToken)

	authHandler := handler.NewAuthHandler(authenticator, orgService)
	orgHandler := handler.NewOrganizationHandler(tokenService, orgService)

	e := echo.New()
	e.HideBanner = true

	// Global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())

	// Public routes
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Credential endpoints; no session required
	auth := e.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/register", authHandler.Register)
	auth.POST("/password-reset/request", authHandler.RequestPasswordReset)
	auth.POST("/password-reset/confirm", authHandler.ConfirmPasswordReset)
	auth.POST("/verify-email", authHandler.VerifyEmail)

	// Session-only endpoints, no organization context needed
	session := e.Group("/auth", middleware.JWTAuth(db))
	session.GET("/me", authHandler.Me)
	session.POST("/logout", authHandler.Logout)

	// Public organization bootstrap path
	orgs := e.Group("/organizations")
	orgs.POST("/register", orgHandler.RegisterOrganization)
	orgs.GET("/validate-token/:token", orgHandler.ValidateToken)

	// Authenticated API; every route below resolves an organization context
	api := e.Group("/api", middleware.JWTAuth(db), middleware.OrgContextMiddleware(db))

	// Registration token administration; platform accounts only
	tokens := api.Group("/organizations/tokens", middleware.RequirePlatformAccount)
	tokens.POST("", orgHandler.CreateToken)
	tokens.GET("", orgHandler.ListTokens)
	tokens.DELETE("/:token", orgHandler.RevokeToken)

	// Organization management
	api.GET("/organizations", orgHandler.ListOrganizations, middleware.RequirePlatformAccount)
	api.GET("/organizations/:id", orgHandler.GetOrganization, middleware.VerifyOrgOwnership("id"))
	api.PATCH("/organizations/:id", orgHandler.UpdateOrganization,
		middleware.VerifyOrgOwnership("id"), middleware.RequireOrgAdmin)
	api.DELETE("/organizations/:id", orgHandler.DeleteOrganization, middleware.RequirePlatformAccount)

	// User administration within the resolved organization; exact-role gate
	api.GET("/users", authHandler.ListUsers, middleware.Authorize(model.RoleAdmin, model.RoleManager))

	return e
}
