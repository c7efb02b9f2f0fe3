// Package config loads runtime configuration for the LazyDrop CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. A .env file in the working directory, then LAZYDROP_* variables.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string   REST API base URL
//	-w string   real-time (STOMP over WebSocket) URL
//	-d string   download directory
//	-s string   local state database path
//	-t string   bearer token
//	-l string   log level: debug, info, warn or error
//	-b string   S3 bucket; downloads are stored there when set
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "15s" or
// integer nanoseconds:
//
//	{
//	  "api_base_url": "https://lazydrop.example/api",
//	  "websocket_url": "wss://lazydrop.example/ws",
//	  "request_timeout": "15s",
//	  "max_file_size": 104857600
//	}
package config
