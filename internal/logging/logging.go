// Package logging provides the logger handed to every component of the engine.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/juju/lumberjack/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger used across the application.
// Arguments after msg are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options selects level, encoding and an optional rotating log file.
type Options struct {
	Level      string // "debug", "info", "warn", "error"
	Format     string // "json", "text"
	File       string // empty = stderr only
	MaxSizeMB  int
	MaxBackups int
}

// ZapLogger implements Logger on top of a zap SugaredLogger.
type ZapLogger struct {
	s     *zap.SugaredLogger
	close func() error
}

// New builds a logger writing to stderr and, when opts.File is set, to a
// rotating file as well.
func New(opts Options) (*ZapLogger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(defaultString(opts.Level, "info")))
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	sinks := []zapcore.WriteSyncer{zapcore.Lock(os.Stderr)}
	closer := func() error { return nil }

	if opts.File != "" {
		rot := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    defaultInt(opts.MaxSizeMB, 10),
			MaxBackups: defaultInt(opts.MaxBackups, 5),
		}
		sinks = append(sinks, zapcore.AddSync(rot))
		closer = rot.Close
	}

	core := zapcore.NewCore(enc, zapcore.NewMultiWriteSyncer(sinks...), level)
	return &ZapLogger{s: zap.New(core).Sugar(), close: closer}, nil
}

// NewWriter builds a logger that writes console-encoded lines to w.
// Mostly useful in tests that want to assert on log output.
func NewWriter(w io.Writer, level zapcore.Level) *ZapLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return &ZapLogger{s: zap.New(core).Sugar(), close: func() error { return nil }}
}

func (l *ZapLogger) Debug(msg string, args ...any) { l.s.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.s.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.s.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.s.Errorw(msg, args...) }

// With returns a child logger that always carries the given fields.
func (l *ZapLogger) With(args ...any) *ZapLogger {
	return &ZapLogger{s: l.s.With(args...), close: l.close}
}

// Close flushes buffered entries and closes the log file, if any.
func (l *ZapLogger) Close() error {
	_ = l.s.Sync()
	return l.close()
}

// Nop returns a logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// With returns a Logger that adds args to every entry written through l.
func With(l Logger, args ...any) Logger {
	if z, ok := l.(*ZapLogger); ok {
		return z.With(args...)
	}
	return fieldLogger{l: l, fields: args}
}

type fieldLogger struct {
	l      Logger
	fields []any
}

func (f fieldLogger) kv(args []any) []any {
	return append(append([]any(nil), f.fields...), args...)
}

func (f fieldLogger) Debug(msg string, args ...any) { f.l.Debug(msg, f.kv(args)...) }
func (f fieldLogger) Info(msg string, args ...any)  { f.l.Info(msg, f.kv(args)...) }
func (f fieldLogger) Warn(msg string, args ...any)  { f.l.Warn(msg, f.kv(args)...) }
func (f fieldLogger) Error(msg string, args ...any) { f.l.Error(msg, f.kv(args)...) }
