package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaults() Config {
	var c Config
	c.LoadDefaults()
	return c
}

func TestLoadDefaults(t *testing.T) {
	c := defaults()

	assert.Equal(t, "http://127.0.0.1:8080/api", c.APIBaseURL)
	assert.Equal(t, 15*time.Second, c.RequestTimeout)
	assert.Equal(t, 5*time.Second, c.ReconnectDelay)
	assert.Equal(t, 600*time.Second, c.DefaultSessionTTL)
	assert.EqualValues(t, 100<<20, c.MaxFileSize)
	require.NoError(t, c.Validate())
}

func TestLoadConfig_Precedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	origEnv := envFile
	t.Cleanup(func() { envFile = origEnv })
	envFile = filepath.Join(t.TempDir(), "missing.env")

	path := writeTempJSON(t, "", "", map[string]any{
		"api_base_url":    "https://json.example/api",
		"download_dir":    "/from/json",
		"request_timeout": "20s",
	})
	t.Setenv("LAZYDROP_DOWNLOAD_DIR", "/from/env")
	t.Setenv("LAZYDROP_TOKEN", "env-token")
	os.Args = []string{"lazydrop", "-config", path, "-t", "flag-token"}

	got := LoadConfig()

	want := defaults()
	want.APIBaseURL = "https://json.example/api"
	want.RequestTimeout = 20 * time.Second
	want.DownloadDir = "/from/env"
	want.AuthToken = "flag-token"
	assert.Empty(t, cmp.Diff(&want, got))
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"api url", func(c *Config) { c.APIBaseURL = "" }},
		{"ws url", func(c *Config) { c.WebSocketURL = "not a url" }},
		{"timeout", func(c *Config) { c.RequestTimeout = 0 }},
		{"file size", func(c *Config) { c.MaxFileSize = -1 }},
		{"concurrency", func(c *Config) { c.UploadConcurrency = 0 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"s3 secret", func(c *Config) { c.S3AccessKey = "AKIA" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := defaults()
			tc.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}
