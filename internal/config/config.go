// Package config loads process configuration from the environment, with an
// optional local .env file for development.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist (e.g. in production), but we should
		// log it just in case. Mostly we rely on environment variables being
		// set directly.
		log.Println("No .env file found or error loading it, using system environment variables")
	}
}

// Config holds every knob from §6.5, resolved once at process start.
type Config struct {
	DatabaseURL string
	RedisURL    string

	ObjectStoreEndpoint  string
	ObjectStoreBucket    string
	ObjectStoreRegion    string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreUsePathStyle bool

	RetentionDays  int
	MaxUploadSize  int64
	WorkerCount    int
	JobTimeout     time.Duration
	JobSoftTimeout time.Duration

	MediaToolBinary  string
	ProbeToolBinary  string
	EncodingPreset   string // fast | balanced | quality
	HWAccelPref      string // auto | nvenc | qsv | vaapi | none

	OTELServiceName     string
	OTELExporterOTLPURL string
	Environment         string // dev | staging | production
	LogLevel            string
}

// Load resolves Config from the environment, applying the defaults named in
// spec.md §6.5 where a knob is left unset.
func Load() Config {
	return Config{
		DatabaseURL: getString("DATABASE_URL", "postgres://localhost:5432/videopipe?sslmode=disable"),
		RedisURL:    getString("REDIS_URL", "redis://localhost:6379/0"),

		ObjectStoreEndpoint:     getString("OBJECT_STORE_ENDPOINT", ""),
		ObjectStoreBucket:       getString("OBJECT_STORE_BUCKET", "videopipe-assets"),
		ObjectStoreRegion:       getString("OBJECT_STORE_REGION", "auto"),
		ObjectStoreAccessKey:    getString("OBJECT_STORE_ACCESS_KEY", ""),
		ObjectStoreSecretKey:    getString("OBJECT_STORE_SECRET_KEY", ""),
		ObjectStoreUsePathStyle: getBool("OBJECT_STORE_USE_PATH_STYLE", true),

		RetentionDays:  getInt("RETENTION_DAYS", 30),
		MaxUploadSize:  getInt64("MAX_UPLOAD_SIZE", 5<<30),
		WorkerCount:    getInt("WORKER_COUNT", 4),
		JobTimeout:     getDuration("JOB_TIMEOUT_SECONDS", 3600*time.Second),
		JobSoftTimeout: getDuration("JOB_SOFT_TIMEOUT_SECONDS", 3000*time.Second),

		MediaToolBinary: getString("MEDIA_TOOL_BINARY", "ffmpeg"),
		ProbeToolBinary: getString("PROBE_TOOL_BINARY", "ffprobe"),
		EncodingPreset:  getString("ENCODING_PRESET_DEFAULT", "balanced"),
		HWAccelPref:     getString("HWACCEL_PREFERENCE", "auto"),

		OTELServiceName:     getString("OTEL_SERVICE_NAME", "videopipe-worker"),
		OTELExporterOTLPURL: getString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Environment:         getString("ENVIRONMENT", "development"),
		LogLevel:            getString("LOG_LEVEL", "info"),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("config: invalid int64 for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("config: invalid bool for %s=%q, using default %t", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid seconds for %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return time.Duration(secs) * time.Second
}
