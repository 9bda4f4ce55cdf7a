package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"zhulink-cascade/internal/config"
)

// SetupLogger 根据配置创建 slog 并设为默认 logger
func SetupLogger(conf config.LogConfig) *slog.Logger {
	logger := NewLogger(os.Stdout, conf)
	slog.SetDefault(logger)
	return logger
}

func NewLogger(w io.Writer, conf config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(conf.Level)}
	if strings.EqualFold(conf.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
