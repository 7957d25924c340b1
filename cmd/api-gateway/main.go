package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/staff-card-api/api/swagger"
	"github.com/noah-isme/staff-card-api/internal/handler"
	"github.com/noah-isme/staff-card-api/internal/repository"
	"github.com/noah-isme/staff-card-api/internal/service"
	"github.com/noah-isme/staff-card-api/pkg/cache"
	"github.com/noah-isme/staff-card-api/pkg/cardpdf"
	"github.com/noah-isme/staff-card-api/pkg/config"
	"github.com/noah-isme/staff-card-api/pkg/database"
	"github.com/noah-isme/staff-card-api/pkg/logger"
	"github.com/noah-isme/staff-card-api/pkg/qr"
	"github.com/noah-isme/staff-card-api/pkg/storage"
)

// @title Staff Card API
// @version 1.0.0
// @description Teaching-staff directory with printable ID cards
// @BasePath /api
// @schemes http

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.EnsureSchema(bootCtx, db); err != nil {
		cancelBoot()
		logr.Fatal("failed to prepare schema", zap.Error(err))
	}
	cancelBoot()

	var redisClient *redis.Client
	if cfg.QRCache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, qr cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
		}
	}

	app, err := buildApp(cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if _, err := app.auth.EnsureAdmin(seedCtx, cfg.Admin.Email, cfg.Admin.Password); err != nil {
		logr.Error("failed to seed administrator", zap.Error(err))
	}
	cancelSeed()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logr.Fatal("server failed", zap.Error(err))
	case sig := <-shutdown:
		logr.Info("shutdown started", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logr.Error("graceful shutdown failed", zap.Error(err))
			_ = server.Close()
		}
	}
}

type app struct {
	auth       *service.AuthService
	metrics    *service.MetricsService
	photos     *storage.LocalStorage
	authH      *handler.AuthHandler
	professorH *handler.ProfessorHandler
	cardH      *handler.CardHandler
	metricsH   *handler.MetricsHandler
}

func buildApp(cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*app, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	photos, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		return nil, err
	}

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.QRCache.TTL, logr, cfg.QRCache.Enabled)
	qrSvc := service.NewQRService(qr.NewEncoder(), cacheSvc, cfg.QRCache.TTL, logr)

	renderer, err := cardpdf.NewRenderer(cardpdf.Config{
		PublicBaseURL:     cfg.Cards.PublicBaseURL,
		InstitutionName:   cfg.Cards.InstitutionName,
		InstitutionDomain: cfg.Cards.InstitutionDomain,
		QRPixelSize:       cfg.Cards.QRPixelSize,
		Compress:          cfg.Cards.Compress,
	}, qrSvc, photos, cardpdf.WithLogger(logr))
	if err != nil {
		return nil, err
	}

	admins := repository.NewAdminRepository(db)
	professors := repository.NewProfessorRepository(db)

	authSvc := service.NewAuthService(admins, professors, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	professorSvc := service.NewProfessorService(professors, photos, qrSvc, validate, logr, service.ProfessorServiceConfig{
		MaxPhotoBytes: cfg.Uploads.MaxPhotoSizeBytes,
		ProfileURL:    renderer.ProfileURL,
	})
	importSvc := service.NewImportService(professors, validate, logr)
	orchestrator := service.NewBatchOrchestrator(renderer, cfg.Cards.MaxConcurrentRenders, metrics, logr)
	cardSvc := service.NewCardService(professors, renderer, orchestrator, metrics, logr, service.CardServiceConfig{
		BatchMode: cfg.Cards.BatchMode,
		Manifest:  cfg.Cards.BatchManifest,
	})

	return &app{
		auth:       authSvc,
		metrics:    metrics,
		photos:     photos,
		authH:      handler.NewAuthHandler(authSvc),
		professorH: handler.NewProfessorHandler(professorSvc, importSvc, cfg.Uploads.MaxSheetSizeBytes),
		cardH:      handler.NewCardHandler(cardSvc, logr),
		metricsH:   handler.NewMetricsHandler(metrics),
	}, nil
}
