package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Environment variable names understood by parseEnv.
const (
	EnvAPIURL       = "LIVEPOLL_API_URL"
	EnvRealtimeURL  = "LIVEPOLL_REALTIME_URL"
	EnvShareBaseURL = "LIVEPOLL_SHARE_URL"
	EnvDatabasePath = "LIVEPOLL_DB"
	EnvTimeout      = "LIVEPOLL_REQUEST_TIMEOUT"
	EnvLogFile      = "LIVEPOLL_LOG_FILE"
	EnvLogLevel     = "LIVEPOLL_LOG_LEVEL"
	EnvLogFormat    = "LIVEPOLL_LOG_FORMAT"
)

// parseEnv loads dotenvPath (if it exists; existing variables win) and
// overlays any LIVEPOLL_* variables onto cfg. Malformed durations are
// ignored so a stray variable cannot prevent the client from starting.
func parseEnv(cfg *Config, dotenvPath string) {
	if dotenvPath != "" {
		_ = godotenv.Load(dotenvPath)
	}

	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString(&cfg.APIBaseURL, EnvAPIURL)
	setString(&cfg.RealtimeURL, EnvRealtimeURL)
	setString(&cfg.ShareBaseURL, EnvShareBaseURL)
	setString(&cfg.DatabasePath, EnvDatabasePath)
	setString(&cfg.LogFile, EnvLogFile)
	setString(&cfg.LogLevel, EnvLogLevel)
	setString(&cfg.LogFormat, EnvLogFormat)

	if v, ok := os.LookupEnv(EnvTimeout); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.RequestTimeout = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			cfg.RequestTimeout = time.Duration(secs) * time.Second
		}
	}
}
