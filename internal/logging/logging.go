// Package logging configures structured JSON logging for the lending
// service: a slog.JSONHandler with ReplaceAttr renaming the standard keys,
// optionally writing through gopkg.in/natefinch/lumberjack.v2 when a log
// file path is configured.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup builds the service-wide structured logger. level is one of
// debug/info/warn/error (case-insensitive); an unrecognised value falls
// back to info. When file is non-empty, logs are written through a rotating
// lumberjack writer instead of stdout.
func Setup(service, level, file string) *slog.Logger {
	var out io.Writer = os.Stdout
	if strings.TrimSpace(file) != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: parseLevel(level),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	logger := slog.New(handler).With(slog.String("service", service))
	slog.SetDefault(logger)
	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
