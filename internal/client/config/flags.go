package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/lazydrop/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags. Only
// the flags listed here are taken from os.Args, so REPL arguments pass
// through untouched.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-w", "-d", "-s", "-t", "-l", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "REST API base URL")
	fs.StringVar(&cfg.WebSocketURL, "w", cfg.WebSocketURL, "real-time channel URL")
	fs.StringVar(&cfg.DownloadDir, "d", cfg.DownloadDir, "download directory")
	fs.StringVar(&cfg.StateDB, "s", cfg.StateDB, "local state database")
	fs.StringVar(&cfg.AuthToken, "t", cfg.AuthToken, "bearer token")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.S3Bucket, "b", cfg.S3Bucket, "S3 bucket for downloads")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
