package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu      sync.RWMutex
	base    *slog.Logger
	logFile *os.File
)

// Init sets the package logger. JSON output is meant for log shippers,
// text output for terminals.
func Init(w io.Writer, level slog.Level, json bool) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	l := slog.New(handler)

	mu.Lock()
	base = l
	mu.Unlock()
	slog.SetDefault(l)
}

// InitLogger initializes the logger with a file output and console output
func InitLogger(filename string, level slog.Level, json bool) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	Close()
	mu.Lock()
	logFile = f
	mu.Unlock()

	Init(io.MultiWriter(os.Stdout, f), level, json)
	return nil
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// ParseLevel converts "debug", "info", "warn" or "error" to a slog.Level.
// Unknown strings default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L returns the current logger, falling back to text on stdout.
func L() *slog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l == nil {
		Init(os.Stdout, slog.LevelInfo, false)
		mu.RLock()
		l = base
		mu.RUnlock()
	}
	return l
}

// With returns a logger carrying the given attributes, e.g. the endpoint name.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}

func Debugf(format string, v ...interface{}) {
	L().Debug(sprintf(format, v...))
}

func Infof(format string, v ...interface{}) {
	L().Info(sprintf(format, v...))
}

func Warnf(format string, v ...interface{}) {
	L().Warn(sprintf(format, v...))
}

func Errorf(format string, v ...interface{}) {
	L().Error(sprintf(format, v...))
}

func sprintf(format string, v ...interface{}) string {
	if len(v) == 0 {
		return format
	}
	return fmt.Sprintf(format, v...)
}
