// Package rpclog is the framework's structured logger. pkg/server (its
// accept loop, lifecycle log layer and gRPC adapter) and pkg/service's
// catch-panic layer log through Log instead of fmt.Printf so operators
// get one consistent JSON (or text) stream; pkg/client, pkg/pool and the
// transports do not log.
package rpclog

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the package-level logger. It is safe for concurrent use and is
// replaced wholesale by Init/InitWithConfig, never mutated in place.
var Log = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// Config controls the logger's level, format and destination.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     string // stdout, stderr, file
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// Init is the common case: JSON to stdout at the given level.
func Init(level string) {
	InitWithConfig(Config{Level: level, Format: "json", Output: "stdout"})
}

// InitWithConfig rebuilds Log from scratch.
func InitWithConfig(cfg Config) {
	var lvl slog.Level
	switch cfg.Level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var writer io.Writer
	switch cfg.Output {
	case "stderr":
		writer = os.Stderr
	case "file":
		if cfg.FilePath == "" {
			cfg.FilePath = "logs/conduit.log"
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			writer = os.Stdout
		} else {
			writer = &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			}
		}
	default:
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: lvl, AddSource: lvl == slog.LevelDebug}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(writer, opts)
	} else {
		handler = slog.NewJSONHandler(writer, opts)
	}

	Log = slog.New(handler)
}

// WithCall returns a logger pre-populated with the fields every call-scoped
// log line carries: method name, seq_id and peer address.
func WithCall(method string, seqID int32, peer string) *slog.Logger {
	return Log.With("method", method, "seq_id", seqID, "peer", peer)
}

// RemoteCloseEnabled reports whether VOLO_ENABLE_REMOTE_CLOSED_ERROR_LOG
// (spec §6) is set, gating the otherwise-noisy "remote closed" transport
// log line.
func RemoteCloseEnabled() bool {
	return os.Getenv("VOLO_ENABLE_REMOTE_CLOSED_ERROR_LOG") != ""
}
