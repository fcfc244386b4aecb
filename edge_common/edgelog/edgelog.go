// Package edgelog sets up the process-wide zap logger. Encoding follows
// the teacher's dev/prod split: a colorized console encoder when stderr is
// a terminal, a JSON/ISO8601 encoder otherwise, both gated by a single
// zap.AtomicLevel that Setup sets from the -log-level flag.
package edgelog

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLevel = zap.NewAtomicLevel()
	levelFlag   = flag.String("log-level", "info", "log level [debug,info,warn,error]")

	global       *zap.Logger
	globalSugar  *zap.SugaredLogger
)

// Setup builds (or rebuilds) the process logger. Call after flag.Parse()
// so -log-level has taken effect.
func Setup(isTerm bool) (*zap.Logger, *zap.SugaredLogger) {
	lvl, err := zapcore.ParseLevel(*levelFlag)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	globalLevel.SetLevel(lvl)

	var cfg zap.Config
	if isTerm {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = globalLevel

	log, err := cfg.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		panic(fmt.Sprintf("can't build logger: %v", err))
	}

	global = log
	globalSugar = log.Sugar()
	return global, globalSugar
}

// Get returns the current process logger pair, building a default one on
// first use if Setup was never called (e.g. in tests).
func Get() (*zap.Logger, *zap.SugaredLogger) {
	if global == nil {
		return Setup(false)
	}
	return global, globalSugar
}

// ThrottledLogger rate-limits a repeated warning (e.g. per-layer variance
// flags firing every report) with exponential backoff between emissions.
type ThrottledLogger struct {
	slog      *zap.SugaredLogger
	next      time.Time
	baseDelay time.Duration
	maxDelay  time.Duration
	curDelay  time.Duration
}

// NewThrottledLogger returns a logger that emits at most once per
// baseDelay initially, backing off geometrically up to maxDelay.
func NewThrottledLogger(slog *zap.SugaredLogger, baseDelay, maxDelay time.Duration) *ThrottledLogger {
	return &ThrottledLogger{
		slog:      slog,
		next:      time.Now(),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		curDelay:  baseDelay,
	}
}

// Clear resets the backoff to its base delay.
func (t *ThrottledLogger) Clear() {
	t.next = time.Now()
	t.curDelay = t.baseDelay
}

func (t *ThrottledLogger) ready() bool {
	now := time.Now()
	if now.Before(t.next) {
		return false
	}
	t.next = now.Add(t.curDelay)
	t.curDelay *= 2
	if t.curDelay > t.maxDelay {
		t.curDelay = t.maxDelay
	}
	return true
}

// Warnf emits at WARN level if the throttle permits it this tick.
func (t *ThrottledLogger) Warnf(template string, args ...interface{}) {
	if t.ready() {
		t.slog.Warnf(template, args...)
	}
}

// IsTerminal reports whether fd looks like an interactive terminal. Kept
// as a thin seam so tests can force either branch without touching os.Stderr.
func IsTerminal(fd *os.File) bool {
	info, err := fd.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
