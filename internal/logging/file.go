package logging

import (
	"fmt"
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log formats accepted by NewFileLogger.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// FileOptions configures the rotating log file used by NewFileLogger.
type FileOptions struct {
	Path       string
	Level      string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFileLogger returns a Logger writing to a lumberjack rotated file:
// zerolog JSON lines by default, slog text lines for FormatText. The
// returned io.Closer closes the file.
func NewFileLogger(opts FileOptions) (Logger, io.Closer, error) {
	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}

	switch opts.Format {
	case "", FormatJSON:
		l, err := NewJSONLogger(file, opts.Level)
		if err != nil {
			return nil, nil, err
		}
		return l, file, nil
	case FormatText:
		l, err := NewTextLogger(file, opts.Level)
		if err != nil {
			return nil, nil, err
		}
		return l, file, nil
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}
