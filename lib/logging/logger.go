// Package logging provides the log format and level setup shared by all sKV
// packages. Packages obtain their logger with logger.GetLogger(name) from
// dragonboat and this package installs the factory behind it.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

// Names of the loggers used throughout the module
var Names = []string{"storage", "backend", "sqlite", "session", "cli"}

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// skvLogger implements the ILogger interface with custom formatting
type skvLogger struct {
	mu     sync.Mutex
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *skvLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *skvLogger) enabled(level logger.LogLevel) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level >= level
}

func (l *skvLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.log("DEBUG", format, args...)
	}
}

func (l *skvLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.log("INFO", format, args...)
	}
}

func (l *skvLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.log("WARN", format, args...)
	}
}

func (l *skvLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.log("ERROR", format, args...)
	}
}

func (l *skvLogger) Panicf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *skvLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-10s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

var (
	output     io.Writer = os.Stdout
	outputMu   sync.Mutex
	installOne sync.Once
)

// SetOutput changes where loggers created afterward write to, nil resets
// it to stdout. It must be called before InitLoggers.
func SetOutput(w io.Writer) {
	outputMu.Lock()
	defer outputMu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	output = w
}

// CreateLogger implements the dragonboat logger factory
func CreateLogger(pkgName string) logger.ILogger {
	outputMu.Lock()
	w := output
	outputMu.Unlock()

	return &skvLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: log.New(w, "", log.Ldate|log.Ltime),
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the custom logger factory (once per process) and sets
// the level of all sKV loggers.
func InitLoggers(level string) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}

	installOne.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})

	for _, name := range Names {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
