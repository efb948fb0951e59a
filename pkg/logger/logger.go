package logger

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Log levels
const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
}

// SetLevel sets the minimum log level
func SetLevel(level int) {
	switch level {
	case LevelDebug:
		log.SetLevel(logrus.DebugLevel)
	case LevelInfo:
		log.SetLevel(logrus.InfoLevel)
	case LevelWarn:
		log.SetLevel(logrus.WarnLevel)
	case LevelError:
		log.SetLevel(logrus.ErrorLevel)
	}
}

// WithField returns an entry tagged with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return log.WithField(key, value)
}

// Debug logs a debug message
func Debug(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

// Info logs an informational message
func Info(format string, args ...interface{}) {
	log.Infof(format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Success logs a success message (info level, tagged)
func Success(format string, args ...interface{}) {
	log.WithField("status", "ok").Infof(format, args...)
}

// Fatal logs a fatal error and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

// Section prints a section header
func Section(title string) {
	border := "==========================================================="
	fmt.Printf("\n%s\n %s\n%s\n\n", border, title, border)
}

// Banner prints the application banner
func Banner(title, version string) {
	fmt.Printf("\n  %s\n  version %s\n\n", title, version)
}
