// Package rlog wraps go.uber.org/zap behind the module-scoped, key-value
// call shape the teacher's own log package exposes
// (log.NewModuleLogger(name), logger.Error("msg", "k1", v1, ...)), so
// call sites read the same way regardless of which logging library backs
// them.
package rlog

import (
	"go.uber.org/zap"
)

// Logger is a module-scoped, leveled, structured logger.
type Logger struct {
	s *zap.SugaredLogger
}

var base = buildBase("info")

func buildBase(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = parseLevel(level)
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build()
	if err != nil {
		// Build only fails on a malformed config; ours is static.
		panic(err)
	}
	return l
}

func parseLevel(level string) zap.AtomicLevel {
	var lvl zap.AtomicLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return lvl
}

// SetLevel reconfigures the process-wide minimum log level. Called once at
// startup from the parsed Config.
func SetLevel(level string) {
	base = buildBase(level)
}

// New returns a logger scoped to component, e.g. "verifier", "chain",
// "sampler".
func New(component string) *Logger {
	return &Logger{s: base.Sugar().With("component", component)}
}

// With returns a child logger carrying the given additional key/value
// pairs on every subsequent call.
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

// Trace maps onto Debug: zap has no dedicated trace level and the
// teacher's own Trace calls are routed to the most verbose level its
// backend offers.
func (l *Logger) Trace(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *Logger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
