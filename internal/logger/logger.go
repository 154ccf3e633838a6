package logger

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Logger defaults to slog's default so packages can log before Init runs (tests).
var Logger = slog.Default()

// Init installs a text handler on stdout. debug forces debug level; so does DEBUG=true.
func Init(debug bool) {
	level := slog.LevelInfo
	if debug || os.Getenv("DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	Logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	slog.SetDefault(Logger)
}

// ForRun returns a logger tagged with a fresh run id, plus the id itself.
func ForRun() (*slog.Logger, string) {
	id := uuid.NewString()
	return Logger.With("run_id", id), id
}

func With(args ...any) *slog.Logger {
	return Logger.With(args...)
}

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}
