package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig
	S3      S3Config
	App     AppConfig
	Archive ArchiveConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

type AppConfig struct {
	WorkDir          string
	MaxUploadSize    int64
	MaxSlices        int
	AllowedFormats   []string
	SliceHeight      int
	SliceWidth       int
	IntensityMin     float64
	IntensityMax     float64
	MinSurvivalRatio float64
}

type ArchiveConfig struct {
	Enabled bool
	Prefix  string
}

type LogConfig struct {
	Level string
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", "8001")
	v.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 120*time.Second)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("S3_ENDPOINT", "localhost:9000")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("S3_USE_SSL", false)
	v.SetDefault("S3_BUCKET_NAME", "reconstructions")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("ARCHIVE_ENABLED", false)
	v.SetDefault("ARCHIVE_PREFIX", "reconstructions/")
	v.SetDefault("APP_WORK_DIR", os.TempDir())
	v.SetDefault("APP_MAX_UPLOAD_SIZE", 50*1024*1024) // 50MB per slice
	v.SetDefault("APP_MAX_SLICES", 1000)
	v.SetDefault("APP_ALLOWED_FORMATS", []string{".png", ".jpg", ".jpeg", ".tiff", ".bmp"})
	v.SetDefault("APP_SLICE_HEIGHT", 256)
	v.SetDefault("APP_SLICE_WIDTH", 256)
	v.SetDefault("APP_INTENSITY_MIN", 0.0)
	v.SetDefault("APP_INTENSITY_MAX", 255.0)
	v.SetDefault("APP_MIN_SURVIVAL_RATIO", 0.0)
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a validated Config from v and prepares the work directory.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("SERVER_HOST"),
			Port:         v.GetString("SERVER_PORT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			BucketName:      v.GetString("S3_BUCKET_NAME"),
			Region:          v.GetString("S3_REGION"),
		},
		App: AppConfig{
			WorkDir:          v.GetString("APP_WORK_DIR"),
			MaxUploadSize:    v.GetInt64("APP_MAX_UPLOAD_SIZE"),
			MaxSlices:        v.GetInt("APP_MAX_SLICES"),
			AllowedFormats:   normalizeFormats(v.GetStringSlice("APP_ALLOWED_FORMATS")),
			SliceHeight:      v.GetInt("APP_SLICE_HEIGHT"),
			SliceWidth:       v.GetInt("APP_SLICE_WIDTH"),
			IntensityMin:     v.GetFloat64("APP_INTENSITY_MIN"),
			IntensityMax:     v.GetFloat64("APP_INTENSITY_MAX"),
			MinSurvivalRatio: v.GetFloat64("APP_MIN_SURVIVAL_RATIO"),
		},
		Archive: ArchiveConfig{
			Enabled: v.GetBool("ARCHIVE_ENABLED"),
			Prefix:  v.GetString("ARCHIVE_PREFIX"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.App.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create work directory %s: %w", cfg.App.WorkDir, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.App.SliceHeight <= 0 || c.App.SliceWidth <= 0:
		return fmt.Errorf("slice size must be positive, got %dx%d", c.App.SliceHeight, c.App.SliceWidth)
	case c.App.IntensityMax <= c.App.IntensityMin:
		return fmt.Errorf("intensity range [%v, %v] is empty", c.App.IntensityMin, c.App.IntensityMax)
	case c.App.MinSurvivalRatio < 0 || c.App.MinSurvivalRatio > 1:
		return fmt.Errorf("min survival ratio must be within [0, 1], got %v", c.App.MinSurvivalRatio)
	case c.App.MaxSlices < 2:
		return fmt.Errorf("max slices must be at least 2, got %d", c.App.MaxSlices)
	case c.App.MaxUploadSize <= 0:
		return fmt.Errorf("max upload size must be positive, got %d", c.App.MaxUploadSize)
	case len(c.App.AllowedFormats) == 0:
		return fmt.Errorf("at least one allowed format is required")
	case c.App.WorkDir == "":
		return fmt.Errorf("work directory must be configured")
	case c.Archive.Enabled && c.S3.BucketName == "":
		return fmt.Errorf("archive enabled but S3_BUCKET_NAME is empty")
	}
	return nil
}

// normalizeFormats lower-cases extensions and adds the leading dot.
func normalizeFormats(formats []string) []string {
	out := make([]string, 0, len(formats))
	for _, f := range formats {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		out = append(out, f)
	}
	return out
}
