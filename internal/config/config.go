package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config — настройки mocapd из окружения.
type Config struct {
	// HTTP
	HTTPAddr string

	// Пути
	ProjectRoot string
	WorkRoot    string
	Python      string
	Blender     string
	Checkpoint  string

	// Pipeline
	SmoothingPolicy    string
	TaskTimeout        time.Duration
	TrackingTimeout    time.Duration
	ExtractionTimeout  time.Duration
	SmoothingTimeout   time.Duration
	ExportTimeout      time.Duration
	PackagingTimeout   time.Duration
	KillGracePeriod    time.Duration
	SkipToolchainCheck bool

	// Очередь
	QueueCapacity int

	// Cleanup
	CleanupEnabled     bool
	CleanupSchedule    string
	CompletedRetention time.Duration
	FailedRetention    time.Duration

	// Интеграции (пустое значение — отключено)
	DatabaseURL    string
	AMQPURL        string
	IntakeEnabled  bool
	IntakePrefetch int

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIOPrefix    string
	UploadTimeout  time.Duration
}

// FromEnv читает конфигурацию из переменных окружения.
func FromEnv() Config {
	projectRoot := getenv("MOCAP_PROJECT_ROOT", ".")

	return Config{
		HTTPAddr: getenv("MOCAP_HTTP_ADDR", ":8000"),

		ProjectRoot: projectRoot,
		WorkRoot:    getenv("MOCAP_WORK_ROOT", filepath.Join(projectRoot, "outputs")),
		Python:      getenv("MOCAP_PYTHON", "python3"),
		Blender:     getenv("MOCAP_BLENDER", "blender"),
		Checkpoint:  getenv("MOCAP_SMOOTHING_CHECKPOINT", ""),

		SmoothingPolicy:    getenv("MOCAP_SMOOTHING_POLICY", "soft"),
		TaskTimeout:        getenvDuration("MOCAP_TASK_TIMEOUT", 1200*time.Second),
		TrackingTimeout:    getenvDuration("MOCAP_TRACKING_TIMEOUT", 900*time.Second),
		ExtractionTimeout:  getenvDuration("MOCAP_EXTRACTION_TIMEOUT", 60*time.Second),
		SmoothingTimeout:   getenvDuration("MOCAP_SMOOTHING_TIMEOUT", 120*time.Second),
		ExportTimeout:      getenvDuration("MOCAP_EXPORT_TIMEOUT", 120*time.Second),
		PackagingTimeout:   getenvDuration("MOCAP_PACKAGING_TIMEOUT", 60*time.Second),
		KillGracePeriod:    getenvDuration("MOCAP_KILL_GRACE", 5*time.Second),
		SkipToolchainCheck: getenvBool("MOCAP_SKIP_TOOLCHAIN_CHECK", false),

		QueueCapacity: getenvInt("MOCAP_QUEUE_CAPACITY", 10),

		CleanupEnabled:     getenvBool("MOCAP_CLEANUP_ENABLED", true),
		CleanupSchedule:    getenv("MOCAP_CLEANUP_SCHEDULE", "@every 6h"),
		CompletedRetention: getenvDuration("MOCAP_COMPLETED_RETENTION", 72*time.Hour),
		FailedRetention:    getenvDuration("MOCAP_FAILED_RETENTION", 72*time.Hour),

		DatabaseURL:    getenv("DB_URL", ""),
		AMQPURL:        getenv("RABBITMQ_URL", ""),
		IntakeEnabled:  getenvBool("MOCAP_AMQP_INTAKE", true),
		IntakePrefetch: getenvInt("MOCAP_AMQP_PREFETCH", 1),

		MinIOEndpoint:  getenv("MOCAP_MINIO_ENDPOINT", ""),
		MinIOAccessKey: getenv("MOCAP_MINIO_ACCESS_KEY", ""),
		MinIOSecretKey: getenv("MOCAP_MINIO_SECRET_KEY", ""),
		MinIOBucket:    getenv("MOCAP_MINIO_BUCKET", "mocap-results"),
		MinIOUseSSL:    getenvBool("MOCAP_MINIO_USE_SSL", false),
		MinIOPrefix:    getenv("MOCAP_MINIO_PREFIX", "results"),
		UploadTimeout:  getenvDuration("MOCAP_UPLOAD_TIMEOUT", 5*time.Minute),
	}
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}

// getenvDuration принимает Go duration ("90s", "72h") или целое число секунд.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
