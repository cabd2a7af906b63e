// Package logx builds the process logger.
//
// Every component logs through a *logrus.Entry derived from the logger
// returned here, with a "component" field and whatever ids it owns
// (worker, fd, conn).
package logx

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to out with the given level and format ("text" or "json").
func New(level, format string, out io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(lvl)

	switch format {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	return l, nil
}

// Component is a shortcut for l.WithField("component", name)
func Component(l *logrus.Logger, name string) *logrus.Entry {
	return l.WithField("component", name)
}
