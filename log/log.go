package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var std = newLogger(os.Stdout)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// SetDebug turns debug output on or off for the whole process.
func SetDebug(on bool) {
	if on {
		std.SetLevel(logrus.DebugLevel)
	} else {
		std.SetLevel(logrus.InfoLevel)
	}
}

func DebugOn() bool {
	return std.IsLevelEnabled(logrus.DebugLevel)
}

// SetOutput redirects all log output, mostly for tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// WithField returns an entry carrying key=val on every line it logs.
func WithField(key string, val interface{}) *logrus.Entry {
	return std.WithField(key, val)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return std.WithFields(fields)
}

func Errorf(format string, args ...interface{}) {
	std.Errorf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

func Debugf(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

func Printf(format string, args ...interface{}) {
	std.Printf(format, args...)
}

func Info(args ...interface{}) {
	std.Info(args...)
}

func Error(args ...interface{}) {
	std.Error(args...)
}

func Debug(args ...interface{}) {
	std.Debug(args...)
}
