package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/lazydrop/internal/flagx"
	"github.com/dmitrijs2005/lazydrop/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent fields
// leave the current values alone.
type JsonConfig struct {
	APIBaseURL        string          `json:"api_base_url"`
	WebSocketURL      string          `json:"websocket_url"`
	JoinURLBase       string          `json:"join_url_base"`
	RequestTimeout    *timex.Duration `json:"request_timeout"`
	ReconnectDelay    *timex.Duration `json:"reconnect_delay"`
	DownloadDelay     *timex.Duration `json:"download_delay"`
	DefaultSessionTTL *timex.Duration `json:"default_session_ttl"`
	ToastDuration     *timex.Duration `json:"toast_duration"`
	MaxFileSize       int64           `json:"max_file_size"`
	UploadConcurrency int             `json:"upload_concurrency"`
	DownloadDir       string          `json:"download_dir"`
	StateDB           string          `json:"state_db"`
	LogLevel          string          `json:"log_level"`
	S3Bucket          string          `json:"s3_bucket"`
	S3Prefix          string          `json:"s3_prefix"`
	S3Region          string          `json:"s3_region"`
	S3BaseEndpoint    string          `json:"s3_base_endpoint"`
	S3AccessKey       string          `json:"s3_access_key"`
	S3SecretKey       string          `json:"s3_secret_key"`
}

// parseJson overlays cfg with the JSON file named by -c/-config, if any.
// It panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}
	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}
	jc.apply(cfg)
}

func (jc JsonConfig) apply(cfg *Config) {
	setString(&cfg.APIBaseURL, jc.APIBaseURL)
	setString(&cfg.WebSocketURL, jc.WebSocketURL)
	setString(&cfg.JoinURLBase, jc.JoinURLBase)
	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.ReconnectDelay, jc.ReconnectDelay)
	setDuration(&cfg.DownloadDelay, jc.DownloadDelay)
	setDuration(&cfg.DefaultSessionTTL, jc.DefaultSessionTTL)
	setDuration(&cfg.ToastDuration, jc.ToastDuration)
	if jc.MaxFileSize != 0 {
		cfg.MaxFileSize = jc.MaxFileSize
	}
	if jc.UploadConcurrency != 0 {
		cfg.UploadConcurrency = jc.UploadConcurrency
	}
	setString(&cfg.DownloadDir, jc.DownloadDir)
	setString(&cfg.StateDB, jc.StateDB)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Prefix, jc.S3Prefix)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
