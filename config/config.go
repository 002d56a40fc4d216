package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultUploadsSubDir    = "uploads"
	DefaultAnnotatedSubDir  = "annotated"
	DefaultThumbnailsSubDir = "thumbnails"
)

const (
	defaultPort              = "8000"
	defaultThumbnailMaxSize  = 300
	defaultMaxUploadMB       = 20
	defaultModelInputSize    = 640
	defaultConfThreshold     = 0.25
	defaultNMSThreshold      = 0.45
	defaultJWTExpiration     = 30 * time.Minute
	defaultWebcamInterval    = 4 * time.Second
	defaultNatsSubject       = "ppe.violations"
	defaultModelClassNames   = "Helmet,NoHelmet,NoVest,Person,Vest"
	defaultCORSAllowedOrigin = "http://localhost:3000"
)

type Config struct {
	Port string

	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // root for stored uploads, annotated copies and thumbnails
	UploadsPath      string // full-calculated path for original uploads
	AnnotatedPath    string // full-calculated path for annotated copies
	ThumbnailsPath   string // full-calculated path for thumbnails
	RetainUploads    bool
	ThumbnailMaxSize int
	MaxUploadBytes   int64

	// detection model (ONNX, YOLOv8 export layout)
	ModelPath          string
	ModelClassNames    []string
	ModelInputSize     int
	ModelConfThreshold float32
	ModelNMSThreshold  float32

	// auth
	JWTSecret     string
	JWTExpiration time.Duration

	// startup admin provisioning; the password is only needed to create the account
	AdminUsername string
	AdminPassword string
	AdminEmail    string

	// opt-in: start without an admin and expose POST /api/setup/admin
	AllowAdminSetup bool

	CORSAllowedOrigins []string

	// optional event fan-out
	NatsURL     string
	NatsSubject string

	// webcam loop
	WebcamDevice   string
	WebcamInterval time.Duration

	LogLevel  string
	LogFormat string
}

// fileValues is the optional YAML overlay. Keys mirror the env var names.
type fileValues map[string]string

var overlay fileValues

func loadOverlay(path string) (fileValues, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}
	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode config file '%s': %w", path, err)
	}
	values := fileValues{}
	for k, v := range raw {
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return values, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	if v, ok := overlay[key]; ok && v != "" {
		return v
	}
	return defaultValue
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := getEnvOrDefault(envVar, "")
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvFloatOrDefault(envVar string, defaultVal float32) float32 {
	valStr := getEnvOrDefault(envVar, "")
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 32)
	if err != nil || val <= 0 || val > 1 {
		log.Printf("Warning: Invalid %s '%s'. Using default %.2f. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return float32(val)
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := getEnvOrDefault(envVar, "")
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		log.Printf("Warning: Invalid %s '%s'. Using default %t. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := getEnvOrDefault(envVar, "")
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadConfig reads configuration from the environment. When CONFIG_FILE points at
// a YAML file its values are used as defaults underneath the environment.
func LoadConfig() (Config, error) {
	overlay = nil
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		values, err := loadOverlay(path)
		if err != nil {
			return Config{}, err
		}
		overlay = values
	}

	dbPath := getEnvOrDefault("DATABASE_PATH", "ppe.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	classNames := splitList(getEnvOrDefault("MODEL_CLASSES", defaultModelClassNames))
	if len(classNames) == 0 {
		return Config{}, fmt.Errorf("MODEL_CLASSES must name at least one class")
	}

	adminUser := getEnvOrDefault("ADMIN_USERNAME", "")
	adminPass := getEnvOrDefault("ADMIN_PASSWORD", "")
	if adminPass != "" && adminUser == "" {
		return Config{}, fmt.Errorf("ADMIN_PASSWORD is set but ADMIN_USERNAME is empty")
	}

	cfg := Config{
		Port:               getEnvOrDefault("PORT", defaultPort),
		DatabasePath:       dbPath,
		MediaStoragePath:   absMediaStorage,
		UploadsPath:        filepath.Join(absMediaStorage, getEnvOrDefault("UPLOADS_SUBDIR", DefaultUploadsSubDir)),
		AnnotatedPath:      filepath.Join(absMediaStorage, getEnvOrDefault("ANNOTATED_SUBDIR", DefaultAnnotatedSubDir)),
		ThumbnailsPath:     filepath.Join(absMediaStorage, getEnvOrDefault("THUMBNAILS_SUBDIR", DefaultThumbnailsSubDir)),
		RetainUploads:      getEnvBoolOrDefault("RETAIN_UPLOADS", true),
		ThumbnailMaxSize:   getEnvIntOrDefault("THUMBNAIL_MAX_SIZE", defaultThumbnailMaxSize),
		MaxUploadBytes:     int64(getEnvIntOrDefault("MAX_UPLOAD_MB", defaultMaxUploadMB)) << 20,
		ModelPath:          getEnvOrDefault("MODEL_PATH", filepath.Join(".", "models", "ppe.onnx")),
		ModelClassNames:    classNames,
		ModelInputSize:     getEnvIntOrDefault("MODEL_INPUT_SIZE", defaultModelInputSize),
		ModelConfThreshold: getEnvFloatOrDefault("MODEL_CONF_THRESHOLD", defaultConfThreshold),
		ModelNMSThreshold:  getEnvFloatOrDefault("MODEL_NMS_THRESHOLD", defaultNMSThreshold),
		JWTSecret:          getEnvOrDefault("JWT_SECRET", ""),
		JWTExpiration:      getEnvDurationOrDefault("JWT_EXPIRATION", defaultJWTExpiration),
		AdminUsername:      adminUser,
		AdminPassword:      adminPass,
		AdminEmail:         getEnvOrDefault("ADMIN_EMAIL", ""),
		AllowAdminSetup:    getEnvBoolOrDefault("ALLOW_ADMIN_SETUP", false),
		CORSAllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", defaultCORSAllowedOrigin)),
		NatsURL:            getEnvOrDefault("NATS_URL", ""),
		NatsSubject:        getEnvOrDefault("NATS_SUBJECT", defaultNatsSubject),
		WebcamDevice:       getEnvOrDefault("WEBCAM_DEVICE", "0"),
		WebcamInterval:     getEnvDurationOrDefault("WEBCAM_INTERVAL", defaultWebcamInterval),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvOrDefault("LOG_FORMAT", "console"),
	}

	return cfg, nil
}
