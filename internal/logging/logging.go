package logging

import (
	"fmt"
	"log"
	"strings"
	"sync/atomic"
)

// Level is a log severity
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var currentLevel atomic.Int32

func init() {
	currentLevel.Store(int32(LevelInfo))
}

// ParseLevel maps the config spelling to a Level, defaulting to info
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel sets the process-wide minimum level
func SetLevel(l Level) {
	currentLevel.Store(int32(l))
}

// Logger writes "[Component] LEVEL message" lines through the standard logger
type Logger struct {
	component string
	out       *log.Logger
}

// New returns a logger for the named component
func New(component string) *Logger {
	return &Logger{component: component}
}

// WithOutput makes the logger write to l instead of the standard logger
func (lg *Logger) WithOutput(l *log.Logger) *Logger {
	return &Logger{component: lg.component, out: l}
}

func (lg *Logger) logf(level Level, tag, format string, args ...any) {
	if level < Level(currentLevel.Load()) {
		return
	}
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] %s %s", lg.component, tag, msg)
	if lg.out != nil {
		lg.out.Output(3, line)
		return
	}
	log.Output(3, line)
}

func (lg *Logger) Debugf(format string, args ...any) { lg.logf(LevelDebug, "DEBUG", format, args...) }
func (lg *Logger) Infof(format string, args ...any)  { lg.logf(LevelInfo, "INFO", format, args...) }
func (lg *Logger) Warnf(format string, args ...any)  { lg.logf(LevelWarn, "WARN", format, args...) }
func (lg *Logger) Errorf(format string, args ...any) { lg.logf(LevelError, "ERROR", format, args...) }
