package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	nats "github.com/nats-io/nats.go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/npsg02/auth-service/config"
	httpadapter "github.com/npsg02/auth-service/internal/adapters/http"
	apiv1 "github.com/npsg02/auth-service/internal/adapters/http/api/v1"
	handlers "github.com/npsg02/auth-service/internal/adapters/http/api/v1/handlers"
	authmw "github.com/npsg02/auth-service/internal/adapters/http/middleware"
	natsadapter "github.com/npsg02/auth-service/internal/adapters/nats"
	"github.com/npsg02/auth-service/internal/adapters/notifier"
	repo "github.com/npsg02/auth-service/internal/adapters/postgres"
	"github.com/npsg02/auth-service/internal/adapters/rediscache"
	"github.com/npsg02/auth-service/internal/domain"
	"github.com/npsg02/auth-service/internal/usecase"
	pkglog "github.com/npsg02/auth-service/pkg/log"
)

type App struct {
	cfg      *config.Config
	logger   pkglog.Logger
	db       *gorm.DB
	cache    rediscache.Cache
	natsConn *nats.Conn
	echo     *echo.Echo
	sessions usecase.SessionManager
	otps     repo.OtpTokenRepository
}

func New(ctx context.Context) (*App, error) {
	cfg := config.MustLoad()
	logger := pkglog.With(pkglog.New(cfg.AppEnv), pkglog.Fields{"service": cfg.AppName})

	db, err := gorm.Open(postgres.Open(buildDSN(cfg)), &gorm.Config{
		Logger:         loggerForGorm(cfg),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	})
	if err != nil {
		return nil, err
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Role{},
		&domain.Permission{},
		&domain.UserRole{},
		&domain.RolePermission{},
		&domain.Session{},
		&domain.OtpToken{},
		&domain.WalletAccount{},
		&domain.PasskeyCredential{},
		&domain.AuthProvider{},
		&domain.AuthProviderUser{},
	); err != nil {
		return nil, err
	}

	cache := rediscache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		log.Printf("nats connect failed: %v", err)
	}

	userRepo := repo.NewUserRepository(db)
	sessionRepo := repo.NewSessionRepository(db)
	otpRepo := repo.NewOtpTokenRepository(db)
	walletRepo := repo.NewWalletRepository(db)
	passkeyRepo := repo.NewPasskeyRepository(db)
	providerRepo := repo.NewProviderRepository(db)

	var sender notifier.Client = notifier.Noop{}
	if cfg.NotifierURL != "" {
		sender = notifier.NewHTTPClient(cfg.NotifierURL, cfg.NotifierTimeout)
	}
	var events usecase.EventPublisher = natsadapter.NoopPublisher{}
	if nc != nil {
		events = natsadapter.NewEventPublisher(nc, cfg.NATSUserCreatedSubject)
	}

	signer, err := usecase.NewJWTSigner(cfg)
	if err != nil {
		return nil, err
	}
	sessions := usecase.NewSessionManager(cfg, logger, userRepo, sessionRepo, cache, signer)
	passwords := usecase.NewPasswordService()
	otps := usecase.NewOtpEngine(cfg, logger, otpRepo, cache, sender)

	authSvc := usecase.NewAuthService(cfg, logger, userRepo, passwords, otps, sessions, events)
	walletSvc := usecase.NewWalletAuthService(cfg, logger, userRepo, walletRepo, passkeyRepo, providerRepo, cache, sessions, events)
	passkeySvc, err := usecase.NewPasskeyService(cfg, logger, userRepo, walletRepo, passkeyRepo, providerRepo, otpRepo, sessions)
	if err != nil {
		return nil, err
	}
	oauthSvc := usecase.NewOAuthService(cfg, logger, userRepo, walletRepo, passkeyRepo, providerRepo, sessions, events)

	authMW := authmw.NewAuthMiddleware(sessions)
	router := httpadapter.NewRouter(cfg, apiv1.NewRouter(
		handlers.NewAuthHandler(authSvc, sessions),
		handlers.NewWalletHandler(walletSvc),
		handlers.NewPasskeyHandler(passkeySvc),
		handlers.NewOAuthHandler(oauthSvc),
		authMW.Handler,
	))

	if nc != nil {
		validateHandler := natsadapter.NewValidateHandler(sessions)
		if err := validateHandler.Subscribe(nc, cfg.NATSValidateSubject, cfg.AppName); err != nil {
			logger.Warn().Err(err).Msg("validate session subscription failed")
		}
	}

	e := echo.New()
	router.Setup(e)

	return &App{cfg: cfg, logger: logger, db: db, cache: cache, natsConn: nc, echo: e, sessions: sessions, otps: otpRepo}, nil
}

func (a *App) Run(ctx context.Context) error {
	go a.cleanupLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		errCh <- a.echo.Start(fmt.Sprintf("%s:%s", a.cfg.HTTPHost, a.cfg.HTTPPort))
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// cleanupLoop sweeps expired session and otp rows. Validation never trusts
// expired rows, the sweep only keeps the tables from growing without bound.
func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.SessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := a.sessions.CleanupExpired(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("session cleanup failed")
			} else if removed > 0 {
				a.logger.Info().Int64("removed", removed).Msg("expired sessions removed")
			}
			if _, err := a.otps.DeleteAllExpired(ctx, time.Now()); err != nil {
				a.logger.Warn().Err(err).Msg("otp cleanup failed")
			}
		}
	}
}

func (a *App) Close() {
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)
}

func loggerForGorm(cfg *config.Config) logger.Interface {
	level := logger.Silent
	switch cfg.AppEnv {
	case "local":
		level = logger.Info
	default:
		level = logger.Warn
	}
	return logger.Default.LogMode(level)
}
