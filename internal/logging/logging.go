// Package logging builds the process logger.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to w at the given level ("debug", "info", ...)
// in "text" or "json" format. Unknown levels fall back to info.
func New(level, format string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.Out = w

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.Level = lvl

	switch strings.ToLower(format) {
	case "json":
		logger.Formatter = &logrus.JSONFormatter{}
	default:
		logger.Formatter = &logrus.TextFormatter{
			DisableLevelTruncation: true,
			PadLevelText:           true,
			TimestampFormat:        "2006/01/02 15:04:05",
			FullTimestamp:          true,
		}
	}
	return logger
}

// Discard is a logger for tests and quiet commands.
func Discard() *logrus.Logger {
	return New("panic", "text", io.Discard)
}
