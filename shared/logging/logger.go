package logging

import (
	"io"
	"log/slog"
	"os"
)

// LevelKey is the environment variable read once at start up to set Level.
const LevelKey = "LOG_LEVEL"

// Level is the current log level of Default. To change the level at runtime, for example to DEBUG, call Level.Set(slog.LevelDebug)
// Defaults to slog.LevelInfo
var Level = new(slog.LevelVar)

// Default is a *slog.Logger configured with a JSON handler writing to stdout at Level.
// Components never reach for Default themselves; it is handed to them by the Lambda entry point.
var Default *slog.Logger

func init() {
	configureLogging()
}

// configureLogging separated out from init() for testing with environment variables
func configureLogging() {
	Level.Set(levelFromEnv())
	Default = New(os.Stdout, Level)
	slog.SetDefault(Default)
	Default.Info("default log level set", slog.String("logging.Level", Level.String()))
}

// New returns a JSON *slog.Logger writing to w. Tests use it with a bytes.Buffer to capture
// the records a component emits.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func levelFromEnv() slog.Level {
	envLogLevel, levelIsSet := os.LookupEnv(LevelKey)
	if !levelIsSet {
		return slog.LevelInfo
	}
	if len(envLogLevel) == 0 {
		slog.Warn("LOG_LEVEL is set, but is empty")
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(envLogLevel)); err != nil {
		slog.Error("error unmarshalling LOG_LEVEL value",
			slog.String("LOG_LEVEL", envLogLevel),
			slog.Any("error", err))
		return slog.LevelInfo
	}
	return level
}
