package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures the process-wide logger.
type Options struct {
	Level string // debug, info, warn, error
	File  string // empty = stderr
	JSON  bool
}

var (
	mu     sync.RWMutex
	base   *zap.Logger
	sugar  *zap.SugaredLogger
	closer io.Closer // log file owned by base, nil for stderr
)

func init() {
	// Console logger at info until Setup is called.
	l, _, err := build(Options{Level: "info"})
	if err != nil {
		l = zap.NewNop()
	}
	replace(l, nil)
}

// Setup replaces the global logger. Safe to call more than once.
func Setup(opts Options) error {
	l, c, err := build(opts)
	if err != nil {
		return err
	}
	old, oldCloser := replace(l, c)
	_ = old.Sync()
	if oldCloser != nil {
		_ = oldCloser.Close()
	}
	return nil
}

func build(opts Options) (*zap.Logger, io.Closer, error) {
	level := zap.NewAtomicLevel()
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(opts.Level))); err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	var (
		sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
		c    io.Closer
	)
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		sink = zapcore.Lock(f)
		c = f
	}

	core := zapcore.NewCore(enc, sink, level)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)), c, nil
}

// replace installs l and returns the previous logger with its closer.
func replace(l *zap.Logger, c io.Closer) (*zap.Logger, io.Closer) {
	mu.Lock()
	defer mu.Unlock()
	old, oldCloser := base, closer
	base, sugar, closer = l, l.Sugar(), c
	return old, oldCloser
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func sugared() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Logr returns the global logger as a logr.Logger for components that take an
// injected logger.
func Logr() logr.Logger {
	// zapr reports its own call site; drop the extra skip added for the
	// package-level helpers.
	return zapr.NewLogger(current().WithOptions(zap.AddCallerSkip(-1)))
}

// Sync flushes buffered log entries.
func Sync() {
	_ = current().Sync()
}

func Debugf(format string, args ...interface{}) { sugared().Debugf(format, args...) }

func Infof(format string, args ...interface{}) { sugared().Infof(format, args...) }

func Warnf(format string, args ...interface{}) { sugared().Warnf(format, args...) }

func Errorf(format string, args ...interface{}) { sugared().Errorf(format, args...) }

// Fatalf logs and exits the process.
func Fatalf(format string, args ...interface{}) { sugared().Fatalf(format, args...) }
