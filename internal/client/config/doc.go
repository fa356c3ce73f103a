// Package config loads runtime configuration for the livepoll CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment: a .env file in the working directory is loaded first
//     (already-set variables win), then LIVEPOLL_* variables are applied.
//  3. Optional JSON file selected with -c or -config.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string   poll API base URL
//	-w string   realtime websocket URL
//	-s string   share base URL
//	-d string   SQLite database path
//	-t int      request timeout (seconds)
//	-l string   log level
//
// # JSON schema
//
// Durations may be strings like "1.5s" or integer nanoseconds:
//
//	{
//	  "api_base_url": "http://localhost:5001/api",
//	  "realtime_url": "ws://localhost:5001/realtime",
//	  "request_timeout": "10s",
//	  "retry_multiplier": 1.5,
//	  "reconnect_attempts": 5
//	}
package config
