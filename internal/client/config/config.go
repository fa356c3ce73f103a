package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the livepoll CLI.
//
// Fields:
//   - APIBaseURL: base URL of the poll HTTP API (paths like /polls are appended).
//   - RealtimeURL: websocket URL of the push channel.
//   - ShareBaseURL: origin used to build shareable ?poll= links.
//   - DatabasePath: SQLite file holding session identity and the vote ledger.
//   - RequestTimeout: per-attempt HTTP timeout.
//   - MaxAttempts: total attempts for a transient-failing request.
//   - RetryInitialInterval / RetryMultiplier: exponential backoff between attempts.
//   - ReconnectAttempts / ReconnectDelay: realtime reconnection budget.
//   - ReconnectGrace: pause before reconnecting after a logout.
//   - LogFile / LogLevel: rotating file log sink.
//   - LogFormat: "json" (zerolog) or "text" (slog) lines in LogFile.
type Config struct {
	APIBaseURL           string
	RealtimeURL          string
	ShareBaseURL         string
	DatabasePath         string
	RequestTimeout       time.Duration
	MaxAttempts          int
	RetryInitialInterval time.Duration
	RetryMultiplier      float64
	ReconnectAttempts    int
	ReconnectDelay       time.Duration
	ReconnectGrace       time.Duration
	LogFile              string
	LogLevel             string
	LogFormat            string
}

// LoadDefaults populates c with defaults suitable for a local backend.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://localhost:5001/api"
	c.RealtimeURL = "ws://localhost:5001/realtime"
	c.ShareBaseURL = "http://localhost:3000/"
	c.DatabasePath = "livepoll.db"
	c.RequestTimeout = 10 * time.Second
	c.MaxAttempts = 3
	c.RetryInitialInterval = 1 * time.Second
	c.RetryMultiplier = 1.5
	c.ReconnectAttempts = 5
	c.ReconnectDelay = 1 * time.Second
	c.ReconnectGrace = 500 * time.Millisecond
	c.LogFile = "livepoll.log"
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// LoadConfig builds a Config from defaults, then the environment (.env is
// loaded first when present), then an optional JSON file, then flags. Later
// sources take precedence.
func LoadConfig() *Config {
	args := os.Args[1:]

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg, ".env")
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
