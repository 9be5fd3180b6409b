package common

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string
	UploadsDir   string

	LogLevel  string // debug, info, warn, error
	LogFormat string // json, console

	// MaxUploadBytes caps the size of an uploaded CSV file
	MaxUploadBytes int64

	// SampleSize is the number of rows inspected by pre-run shape checks
	SampleSize int

	// WarnThreshold is the shape-check failure ratio above which a
	// validation warning is emitted
	WarnThreshold float64

	// MaxStoredErrors limits how many row errors are kept verbatim on a
	// batch; the error counter stays exact regardless
	MaxStoredErrors int

	// ProgressUpdateFrequency controls how often the runner persists
	// progress (every N rows)
	ProgressUpdateFrequency int
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// GetConfig loads configuration on first use. Values come from environment
// variables (IMPORT_ prefix) with sensible defaults for local development.
func GetConfig() *Config {
	cfgOnce.Do(func() {
		v := viper.New()
		v.SetEnvPrefix("import")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		v.SetDefault("port", "8080")
		v.SetDefault("database.path", "contacts.db")
		v.SetDefault("uploads.dir", "uploads")
		v.SetDefault("log.level", "info")
		v.SetDefault("log.format", "console")
		v.SetDefault("max.upload.bytes", 25*1024*1024)
		v.SetDefault("sample.size", 50)
		v.SetDefault("warn.threshold", 0.5)
		v.SetDefault("max.stored.errors", 100)
		v.SetDefault("progress.update.frequency", 1)

		cfg = &Config{
			Port:                    v.GetString("port"),
			DatabasePath:            v.GetString("database.path"),
			UploadsDir:              v.GetString("uploads.dir"),
			LogLevel:                v.GetString("log.level"),
			LogFormat:               v.GetString("log.format"),
			MaxUploadBytes:          v.GetInt64("max.upload.bytes"),
			SampleSize:              v.GetInt("sample.size"),
			WarnThreshold:           v.GetFloat64("warn.threshold"),
			MaxStoredErrors:         v.GetInt("max.stored.errors"),
			ProgressUpdateFrequency: v.GetInt("progress.update.frequency"),
		}
	})
	return cfg
}
