package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all process-wide configuration for Janus, loaded from
// environment variables with sane defaults.
type Config struct {
	DB        DBConfig
	Data      DataConfig
	Images    ImagesConfig
	HTTP      HTTPConfig
	Scheduler SchedulerConfig
	Stages    StageTimeouts
}

// DBConfig locates the bbolt-backed image-digest cache.
type DBConfig struct {
	DBPath string // Path to store db file
	DBFile string // Name of database file
	Bucket string // Database bucket name
}

// DataConfig locates layout.json and other small persisted state.
type DataConfig struct {
	Dir string
}

// ImagesConfig locates the directory scanned for flashable images.
type ImagesConfig struct {
	Dir string
}

type HTTPConfig struct {
	Port string
}

type SchedulerConfig struct {
	DefaultConcurrency int
}

// StageTimeouts holds the per-stage wall-clock ceilings from spec.md §5.
// Write and Verify are baselines scaled by image size via ScaledTimeout.
type StageTimeouts struct {
	Write  time.Duration
	Verify time.Duration
	Expand time.Duration
	Resize time.Duration
	Eject  time.Duration
}

// Defaults holds the default configuration values, each overridable by an
// environment variable.
var Defaults = Config{
	DB: DBConfig{
		DBPath: getEnv("DB_PATH", "./data"),
		DBFile: getEnv("DB_FILE", "janus.db"),
		Bucket: getEnv("DB_BUCKET", "image_digests"),
	},
	Data: DataConfig{
		Dir: getEnv("DATA_DIR", "./data"),
	},
	Images: ImagesConfig{
		Dir: getEnv("IMAGES_DIR", "./images"),
	},
	HTTP: HTTPConfig{
		Port: getEnv("HTTP_PORT", "8000"),
	},
	Scheduler: SchedulerConfig{
		DefaultConcurrency: getEnvInt("DEFAULT_CONCURRENCY", 2),
	},
	Stages: StageTimeouts{
		Write:  getEnvDuration("WRITE_TIMEOUT", 30*time.Minute),
		Verify: getEnvDuration("VERIFY_TIMEOUT", 30*time.Minute),
		Expand: getEnvDuration("EXPAND_TIMEOUT", 60*time.Second),
		Resize: getEnvDuration("RESIZE_TIMEOUT", 60*time.Second),
		Eject:  getEnvDuration("EJECT_TIMEOUT", 60*time.Second),
	},
}

// LoadDefault returns a copy of the default configuration.
func LoadDefault() (*Config, error) {
	cfg := Defaults
	return &cfg, nil
}

// getEnv returns the value of the environment variable key if it exists, otherwise it returns the fallback value
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// referenceImageSize is the image size the baseline write/verify timeouts
// are calibrated against; larger images get proportionally more time.
const referenceImageSize = 8 << 30 // 8 GiB

// ScaledTimeout scales a baseline write/verify timeout by image size, per
// spec.md §5.
func ScaledTimeout(baseline time.Duration, imageBytes int64) time.Duration {
	if imageBytes <= referenceImageSize {
		return baseline
	}
	factor := float64(imageBytes) / float64(referenceImageSize)
	return time.Duration(float64(baseline) * factor)
}
