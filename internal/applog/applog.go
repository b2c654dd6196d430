// Package applog is a thin structured-logging helper over
// github.com/sirupsen/logrus: New builds a root *logrus.Logger and For
// derives a *logrus.Entry that carries a "component" field. No other
// package in this repo calls either; transport/wstransport takes a
// *logrus.Logger directly.
package applog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the root logger: text formatter, stdout, level from
// environment rather than hardcoded.
func New() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := logrus.InfoLevel
	if raw := os.Getenv("E2EE_LOG_LEVEL"); raw != "" {
		if parsed, err := logrus.ParseLevel(raw); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)
	return logger
}

// For returns a *logrus.Entry tagged with component.
func For(logger *logrus.Logger, component string) *logrus.Entry {
	return logger.WithField("component", component)
}
