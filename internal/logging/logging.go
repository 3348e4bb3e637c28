package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger writing to stdout. An unparsable level falls
// back to info and is reported through the logger itself.
func New(level string) *logrus.Logger {
	return NewWithOutput(level, os.Stdout)
}

func NewWithOutput(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.JSONFormatter{})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
		logger.SetLevel(lvl)
		logger.Warnf("Invalid LOG_LEVEL '%s', using default: %s", level, lvl.String())
		return logger
	}
	logger.SetLevel(lvl)
	return logger
}
