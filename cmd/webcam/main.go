// Command webcam analyzes frames from a local camera and optionally records
// the results for a user.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/camden-git/ppemonitor/config"
	"github.com/camden-git/ppemonitor/database"
	"github.com/camden-git/ppemonitor/detection"
	"github.com/camden-git/ppemonitor/logging"
	"github.com/camden-git/ppemonitor/realtime"
	"github.com/camden-git/ppemonitor/repository"
	"github.com/camden-git/ppemonitor/services"
	"github.com/camden-git/ppemonitor/webcam"
)

func main() {
	userID := flag.String("user", "", "user id to record results for")
	persist := flag.Bool("persist", true, "store each frame's results in the database")
	headless := flag.Bool("headless", false, "run without a preview window")
	flag.Parse()

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

	db, err := database.InitGormDB(cfg.DatabasePath, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	if err := database.AutoMigrateModels(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *persist && *userID != "" {
		if _, err := repository.NewGormUserRepository(db).GetByID(ctx, *userID); err != nil {
			logger.Fatal("unknown user", zap.String("user_id", *userID), zap.Error(err))
		}
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

	var publisher realtime.Publisher
	if cfg.NatsURL != "" {
		natsPublisher, err := realtime.NewNATSPublisher(cfg.NatsURL, cfg.NatsSubject, logger)
		if err != nil {
			logger.Warn("NATS unavailable; events will not be published", zap.Error(err))
		} else {
			defer natsPublisher.Close()
			publisher = natsPublisher
		}
	}

	service := services.NewComplianceService(detector, repository.NewGormViolationRepository(db), repository.NewGormUploadRepository(db), nil, publisher, logger)

	capture, err := gocv.OpenVideoCapture(cfg.WebcamDevice)
	if err != nil {
		logger.Fatal("failed to open camera", zap.String("device", cfg.WebcamDevice), zap.Error(err))
	}

	var display webcam.Display
	if !*headless {
		display = gocv.NewWindow("Webcam")
	}

	logger.Info("webcam loop started",
		zap.String("device", cfg.WebcamDevice),
		zap.Duration("interval", cfg.WebcamInterval),
		zap.Bool("persist", *persist),
		zap.Bool("headless", *headless),
	)
	loop := webcam.NewLoop(capture, display, service, webcam.Options{
		UserID:   *userID,
		Persist:  *persist,
		Interval: cfg.WebcamInterval,
	}, logger)
	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("webcam loop ended", zap.Error(err))
	}
}
