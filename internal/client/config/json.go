package config

import (
	"os"

	"github.com/dmitrijs2005/livepoll/internal/flagx"
	"github.com/dmitrijs2005/livepoll/internal/timex"
	"github.com/goccy/go-json"
)

// JsonConfig is the on-disk shape of the config file. Durations go through
// timex.Duration so "1.5s" and integer nanoseconds both work. Absent fields
// leave the current value untouched.
type JsonConfig struct {
	APIBaseURL           *string         `json:"api_base_url"`
	RealtimeURL          *string         `json:"realtime_url"`
	ShareBaseURL         *string         `json:"share_base_url"`
	DatabasePath         *string         `json:"database_path"`
	RequestTimeout       *timex.Duration `json:"request_timeout"`
	MaxAttempts          *int            `json:"max_attempts"`
	RetryInitialInterval *timex.Duration `json:"retry_initial_interval"`
	RetryMultiplier      *float64        `json:"retry_multiplier"`
	ReconnectAttempts    *int            `json:"reconnect_attempts"`
	ReconnectDelay       *timex.Duration `json:"reconnect_delay"`
	ReconnectGrace       *timex.Duration `json:"reconnect_grace"`
	LogFile              *string         `json:"log_file"`
	LogLevel             *string         `json:"log_level"`
	LogFormat            *string         `json:"log_format"`
}

// parseJson overlays cfg with the JSON file named by -c / -config in args.
// It panics on read or decode errors, like the flag layer does.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
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

func (jc *JsonConfig) apply(cfg *Config) {
	if jc.APIBaseURL != nil {
		cfg.APIBaseURL = *jc.APIBaseURL
	}
	if jc.RealtimeURL != nil {
		cfg.RealtimeURL = *jc.RealtimeURL
	}
	if jc.ShareBaseURL != nil {
		cfg.ShareBaseURL = *jc.ShareBaseURL
	}
	if jc.DatabasePath != nil {
		cfg.DatabasePath = *jc.DatabasePath
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.MaxAttempts != nil {
		cfg.MaxAttempts = *jc.MaxAttempts
	}
	if jc.RetryInitialInterval != nil {
		cfg.RetryInitialInterval = jc.RetryInitialInterval.Duration
	}
	if jc.RetryMultiplier != nil {
		cfg.RetryMultiplier = *jc.RetryMultiplier
	}
	if jc.ReconnectAttempts != nil {
		cfg.ReconnectAttempts = *jc.ReconnectAttempts
	}
	if jc.ReconnectDelay != nil {
		cfg.ReconnectDelay = jc.ReconnectDelay.Duration
	}
	if jc.ReconnectGrace != nil {
		cfg.ReconnectGrace = jc.ReconnectGrace.Duration
	}
	if jc.LogFile != nil {
		cfg.LogFile = *jc.LogFile
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
	if jc.LogFormat != nil {
		cfg.LogFormat = *jc.LogFormat
	}
}
