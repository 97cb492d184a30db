package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Setup configures the standard logrus logger and returns it.
// format is "json" (default) or "text".
func Setup(level, format string) *logrus.Logger {
	l := logrus.StandardLogger()
	l.SetOutput(os.Stdout)

	if format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		l.WithField("level", level).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// OrDefault returns l, or the standard logger when l is nil.
func OrDefault(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return logrus.StandardLogger()
	}
	return l
}
