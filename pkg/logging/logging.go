// Package logging builds the logrus logger shared by the tintel commands.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// DefaultLevel is used when no level is configured
const DefaultLevel = "info"

// New creates a logger writing text output to out (stderr when nil)
func New(level string, out io.Writer) (*logrus.Logger, error) {
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	if out == nil {
		out = os.Stderr
	}

	logger := logrus.New()
	logger.Out = out
	logger.Level = lvl
	logger.Formatter = &logrus.TextFormatter{
		DisableTimestamp: true,
	}
	return logger, nil
}

// Component returns an entry tagged with the component name
func Component(logger *logrus.Logger, name string) *logrus.Entry {
	return logger.WithField("component", name)
}

// Discard returns an entry that drops everything; used when callers pass no logger
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.Out = io.Discard
	return logrus.NewEntry(logger)
}
