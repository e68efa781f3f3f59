package main

import (
	"time"

	"lms-auth-service/internal/server"
	"lms-auth-service/internal/service"
	"lms-auth-service/pkg/config"
	"lms-auth-service/pkg/database"
	"lms-auth-service/pkg/jwtutil"
	"lms-auth-service/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	if err := logger.InitLogger(cfg); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	log.Info("Starting LMS auth service...", zap.String("environment", cfg.Server.Env))

	if err := database.InitDB(cfg); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	jwtutil.Initialize(&cfg.JWT)

	db := database.GetDB()
	e := server.New(cfg, db)

	// Optional hygiene sweep for expired registration tokens. Lazy expiry
	// on read keeps correctness without it.
	if cfg.OrgToken.SweepInterval > 0 {
		audit := service.NewAuditService(db)
		tokens := service.NewOrgTokenService(db, audit, cfg.Auth, cfg.OrgToken)
		go func() {
			ticker := time.NewTicker(cfg.OrgToken.SweepInterval)
			defer ticker.Stop()
			for range ticker.C {
				if _, err := tokens.SweepExpired(); err != nil {
					log.Error("token sweep failed", zap.Error(err))
				}
			}
		}()
		log.Info("Token sweep scheduled", zap.Duration("interval", cfg.OrgToken.SweepInterval))
	}

	log.Info("Starting server", zap.String("port", cfg.Server.Port))
	if err := e.Start(":" + cfg.Server.Port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
