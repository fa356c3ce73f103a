package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/livepoll/internal/flagx"
)

// parseFlags overlays cfg with command-line flags:
//
//	-a string   API base URL
//	-w string   realtime websocket URL
//	-s string   share base URL
//	-d string   SQLite database path
//	-t int      request timeout (seconds)
//	-l string   log level
//
// Only these flags are looked at (flagx.FilterArgs), so -c and -link can be
// consumed elsewhere. It panics on malformed values.
func parseFlags(cfg *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-w", "-s", "-d", "-t", "-l"})

	fs := flag.NewFlagSet("livepoll", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "poll API base URL")
	fs.StringVar(&cfg.RealtimeURL, "w", cfg.RealtimeURL, "realtime websocket URL")
	fs.StringVar(&cfg.ShareBaseURL, "s", cfg.ShareBaseURL, "base URL for shareable links")
	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "local database path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	timeout := fs.Int("t", int(cfg.RequestTimeout.Seconds()), "request timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.RequestTimeout = time.Duration(*timeout) * time.Second
}
