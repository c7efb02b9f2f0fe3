package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// envFile is loaded into the process environment before LAZYDROP_* variables
// are read. Variables already set win over the file.
var envFile = ".env"

// parseEnv overlays cfg with LAZYDROP_* environment variables. It panics on
// malformed numbers or durations.
func parseEnv(cfg *Config) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	envString(&cfg.APIBaseURL, "LAZYDROP_API_URL")
	envString(&cfg.WebSocketURL, "LAZYDROP_WS_URL")
	envString(&cfg.JoinURLBase, "LAZYDROP_JOIN_URL")
	envString(&cfg.AuthToken, "LAZYDROP_TOKEN")
	envString(&cfg.DownloadDir, "LAZYDROP_DOWNLOAD_DIR")
	envString(&cfg.StateDB, "LAZYDROP_STATE_DB")
	envString(&cfg.LogLevel, "LAZYDROP_LOG_LEVEL")
	envDuration(&cfg.RequestTimeout, "LAZYDROP_REQUEST_TIMEOUT")
	envDuration(&cfg.ReconnectDelay, "LAZYDROP_RECONNECT_DELAY")
	envInt64(&cfg.MaxFileSize, "LAZYDROP_MAX_FILE_SIZE")

	envString(&cfg.S3Bucket, "LAZYDROP_S3_BUCKET")
	envString(&cfg.S3Prefix, "LAZYDROP_S3_PREFIX")
	envString(&cfg.S3Region, "LAZYDROP_S3_REGION")
	envString(&cfg.S3BaseEndpoint, "LAZYDROP_S3_ENDPOINT")
	envString(&cfg.S3AccessKey, "LAZYDROP_S3_ACCESS_KEY")
	envString(&cfg.S3SecretKey, "LAZYDROP_S3_SECRET_KEY")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envDuration(dst *time.Duration, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(key + ": " + err.Error())
	}
	*dst = d
}

func envInt64(dst *int64, key string) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		panic(key + ": " + err.Error())
	}
	*dst = n
}
