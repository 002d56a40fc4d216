package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/camden-git/ppemonitor/config"
	"github.com/camden-git/ppemonitor/database"
	"github.com/camden-git/ppemonitor/detection"
	"github.com/camden-git/ppemonitor/handlers"
	"github.com/camden-git/ppemonitor/logging"
	"github.com/camden-git/ppemonitor/media"
	"github.com/camden-git/ppemonitor/realtime"
	"github.com/camden-git/ppemonitor/repository"
	"github.com/camden-git/ppemonitor/services"
)

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logger.Fatal("failed to create database directory", zap.String("path", dir), zap.Error(err))
		}
	}

	db, err := database.InitGormDB(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := database.AutoMigrateModels(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("failed to get sql.DB from GORM", zap.Error(err))
	}
	defer sqlDB.Close()
	logger.Info("database ready", zap.String("path", cfg.DatabasePath))

	userRepo := repository.NewGormUserRepository(db)
	violationRepo := repository.NewGormViolationRepository(db)
	uploadRepo := repository.NewGormUploadRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := handlers.EnsureAdminAccount(ctx, userRepo, handlers.AdminAccount{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Email:    cfg.AdminEmail,
	}, logger); err != nil {
		if !errors.Is(err, handlers.ErrNoAdminAccount) || !cfg.AllowAdminSetup {
			logger.Fatal("failed to provision admin account", zap.Error(err))
		}
		logger.Warn("no admin account; ALLOW_ADMIN_SETUP is on, create one through POST /api/setup/admin")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret, err = handlers.RandomSecret()
		if err != nil {
			logger.Fatal("failed to generate token secret", zap.Error(err))
		}
		logger.Warn("JWT_SECRET is not set; using a random secret, tokens will not survive a restart")
	}
	tokens, err := handlers.NewTokenManager(secret, cfg.JWTExpiration)
	if err != nil {
		logger.Fatal("failed to initialize token manager", zap.Error(err))
	}

	detector, err := detection.NewYOLODetector(detection.YOLOConfig{
		ModelPath:     cfg.ModelPath,
		ClassNames:    cfg.ModelClassNames,
		InputSize:     cfg.ModelInputSize,
		ConfThreshold: cfg.ModelConfThreshold,
		NMSThreshold:  cfg.ModelNMSThreshold,
	}, logger)
	if err != nil {
		logger.Fatal("failed to load detection model", zap.String("path", cfg.ModelPath), zap.Error(err))
	}
	defer detector.Close()

	var (
		mediaStore     media.Store
		mediaProcessor *media.Processor
	)
	if cfg.RetainUploads {
		localStore, err := media.NewLocalStorage(cfg.MediaStoragePath, map[media.AssetType]string{
			media.AssetTypeOriginal:  cfg.UploadsPath,
			media.AssetTypeAnnotated: cfg.AnnotatedPath,
			media.AssetTypeThumbnail: cfg.ThumbnailsPath,
		}, logger)
		if err != nil {
			logger.Fatal("failed to initialize media store", zap.Error(err))
		}
		mediaStore = localStore
		mediaProcessor = media.NewProcessor(localStore, cfg.ThumbnailMaxSize, logger)
	} else {
		logger.Info("upload retention disabled")
	}

	hub := realtime.NewHub(logger, originChecker(cfg.CORSAllowedOrigins))
	go hub.Run(ctx)
	publishers := realtime.MultiPublisher{hub}

	if cfg.NatsURL != "" {
		natsPublisher, err := realtime.NewNATSPublisher(cfg.NatsURL, cfg.NatsSubject, logger)
		if err != nil {
			logger.Error("NATS unavailable; events stay local", zap.String("url", cfg.NatsURL), zap.Error(err))
		} else {
			defer natsPublisher.Close()
			publishers = append(publishers, natsPublisher)
		}
	}

	complianceService := services.NewComplianceService(detector, violationRepo, uploadRepo, mediaProcessor, publishers, logger)

	deps := handlers.RouterDeps{
		Tokens:         tokens,
		UserRepo:       userRepo,
		Auth:           handlers.NewAuthHandler(userRepo, tokens, logger),
		Detect:         handlers.NewDetectHandler(complianceService, cfg.MaxUploadBytes, logger),
		Violations:     handlers.NewViolationHandler(violationRepo, logger),
		Admin:          handlers.NewAdminUserHandler(userRepo, violationRepo, uploadRepo, mediaStore, sqlDB, logger),
		Events:         hub.ServeWS,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	}
	if cfg.AllowAdminSetup {
		deps.Setup = handlers.NewSetupHandler(db, logger)
	}
	if mediaStore != nil {
		deps.Uploads = handlers.NewUploadHandler(uploadRepo, mediaStore, logger)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
