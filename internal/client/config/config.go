package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime settings for the LazyDrop CLI.
//
// Durations are time.Duration values; MaxFileSize is in bytes. The S3*
// fields are optional: with S3Bucket set, downloads go to the bucket instead
// of DownloadDir.
type Config struct {
	APIBaseURL   string `validate:"required,url"`
	WebSocketURL string `validate:"required,url"`
	JoinURLBase  string `validate:"omitempty,url"`

	RequestTimeout    time.Duration `validate:"gt=0"`
	ReconnectDelay    time.Duration `validate:"gt=0"`
	DownloadDelay     time.Duration `validate:"gte=0"`
	DefaultSessionTTL time.Duration `validate:"gt=0"`
	ToastDuration     time.Duration `validate:"gt=0"`

	MaxFileSize       int64 `validate:"gt=0"`
	UploadConcurrency int   `validate:"min=1,max=16"`

	DownloadDir string `validate:"required"`
	StateDB     string `validate:"required"`
	AuthToken   string
	LogLevel    string `validate:"oneof=debug info warn error"`

	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3BaseEndpoint string `validate:"omitempty,url"`
	S3AccessKey    string
	S3SecretKey    string `validate:"required_with=S3AccessKey"`
}

// LoadDefaults populates c with development defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080/api"
	c.WebSocketURL = "ws://127.0.0.1:8080/ws"
	c.JoinURLBase = "http://127.0.0.1:3000/join"
	c.RequestTimeout = 15 * time.Second
	c.ReconnectDelay = 5 * time.Second
	c.DownloadDelay = 500 * time.Millisecond
	c.DefaultSessionTTL = 600 * time.Second
	c.ToastDuration = 5 * time.Second
	c.MaxFileSize = 100 << 20
	c.UploadConcurrency = 3
	c.DownloadDir = "downloads"
	c.StateDB = "lazydrop.db"
	c.LogLevel = "info"
	c.S3Region = "us-east-1"
}

var validate = validator.New()

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
