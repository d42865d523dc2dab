package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/orrn/printfarm/internal/config"
)

var Log = logrus.New()

// Init configures the shared logger from the logging section of the config.
func Init(cfg config.LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	Log.SetLevel(level)
	Log.SetOutput(os.Stdout)

	switch cfg.Format {
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "plain":
		Log.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})
	default:
		return fmt.Errorf("invalid log format: %s", cfg.Format)
	}

	return nil
}

func Component(name string) *logrus.Entry {
	return Log.WithField("component", name)
}

// Discard silences the shared logger. Tests use it to keep output readable.
func Discard() {
	Log.SetOutput(io.Discard)
}
