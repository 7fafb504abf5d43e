package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	OutputDir      string `envconfig:"OUTPUT_DIR" default:"/tmp"`
	YTDLPPath      string `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	FFmpegLocation string `envconfig:"FFMPEG_LOCATION"`
	AudioFormat    string `envconfig:"AUDIO_FORMAT" default:"bestaudio/best"`
	AudioCodec     string `envconfig:"AUDIO_CODEC" default:"mp3"`
	AudioQuality   string `envconfig:"AUDIO_QUALITY" default:"192"`
	ProfilesFile   string `envconfig:"PROFILES_FILE"`

	Progress struct {
		PollInterval  time.Duration `split_words:"true" default:"200ms"`
		TTL           time.Duration `envconfig:"TTL" default:"10m"`
		SweepInterval time.Duration `split_words:"true" default:"1m"`
		WaitTimeout   time.Duration `split_words:"true" default:"0"`
	}

	StaticDir string `envconfig:"STATIC_DIR" default:"static"`

	DBPath            string        `envconfig:"DB_PATH" default:"downloads.db"`
	KeepDownloadedFor time.Duration `envconfig:"KEEP_DOWNLOADED_FOR" default:"1h"`
	CleanupInterval   time.Duration `envconfig:"CLEANUP_INTERVAL" default:"10m"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	// InstanceID scopes file expiry in a shared ledger. Empty means the hostname.
	InstanceID string `envconfig:"INSTANCE_ID"`

	RemoveBG struct {
		Backend   string `default:"border"`
		Tolerance int    `default:"48"`
	}
	RembgPath      string `envconfig:"REMBG_PATH" default:"rembg"`
	MaxUploadSize  int64  `envconfig:"MAX_UPLOAD_SIZE" default:"20971520"`
	MaxImagePixels int64  `envconfig:"MAX_IMAGE_PIXELS" default:"178956970"`

	TelemetryEnabled bool   `envconfig:"TELEMETRY_ENABLED" default:"true"`
	ServiceName      string `envconfig:"SERVICE_NAME" default:"media_toolbox"`
	ServiceVersion   string `envconfig:"SERVICE_VERSION" default:"dev"`
	OTLPEndpoint     string `envconfig:"OTLP_ENDPOINT"`

	Web struct {
		BindAddress     string        `split_words:"true" default:"0.0.0.0:8000"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"60s"`
		IdleTimeout     time.Duration `split_words:"true" default:"60s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.RemoveBG.Backend {
	case "border", "rembg":
	default:
		return fmt.Errorf("invalid REMOVEBG_BACKEND %q: must be border or rembg", c.RemoveBG.Backend)
	}

	if c.Progress.PollInterval <= 0 {
		return fmt.Errorf("PROGRESS_POLL_INTERVAL must be positive")
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("MAX_UPLOAD_SIZE must be positive")
	}

	if c.MaxImagePixels <= 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must be positive")
	}

	return nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
