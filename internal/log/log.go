package log

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/observe-l/tvcsa/internal/config"
)

// NewLogger returns the root logger entry for the binary.
func NewLogger(cfg config.LogConfig, version string) (*logrus.Entry, error) {
	log := logrus.New()
	log.SetLevel(getLogLevel(cfg.Level))
	if cfg.JSON {
		log.Formatter = &logrus.JSONFormatter{}
	} else {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return nil, fmt.Errorf("unable to log to file: %w", err)
		}
		log.SetOutput(file)
	} else {
		log.SetOutput(os.Stderr)
	}
	return log.WithFields(logrus.Fields{
		"version": version,
	}), nil
}

// getLogLevel prefers LOG_LEVEL over the configured level and falls back to
// info.
func getLogLevel(configured string) logrus.Level {
	for _, s := range []string{os.Getenv("LOG_LEVEL"), configured} {
		if level, err := logrus.ParseLevel(s); err == nil {
			return level
		}
	}
	return logrus.InfoLevel
}
