// Package logging adapts go.uber.org/zap to the common.LoggerInterface
// contract: Printf-style Trace/Debug/Info/Warn/Error methods plus an
// optional Hexdump extension, all built through functional options.
package logging

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coreprotocols/gomodbus/common"
)

// TraceLevel sits below zap's built-in Debug level; the modbus codec
// uses it for the highest-volume wire-level output (Hexdump).
const TraceLevel = zapcore.Level(-2)

// Logger implements common.LoggerInterface and common.LoggerInterfaceHexdump
// on top of a *zap.Logger.
type Logger struct {
	zl    *zap.Logger
	level *zap.AtomicLevel
}

// Option configures a Logger under construction.
type Option func(*config)

type config struct {
	level  common.LogLevel
	writer zapcore.WriteSyncer
	fields map[string]interface{}
}

// WithLevel sets the log level.
func WithLevel(level common.LogLevel) Option {
	return func(c *config) { c.level = level }
}

// WithWriter sets the sink log entries are written to.
func WithWriter(writer zapcore.WriteSyncer) Option {
	return func(c *config) { c.writer = writer }
}

// WithFields attaches structured fields to every entry the logger emits.
func WithFields(fields map[string]interface{}) Option {
	return func(c *config) {
		if c.fields == nil {
			c.fields = make(map[string]interface{}, len(fields))
		}
		for k, v := range fields {
			c.fields[k] = v
		}
	}
}

func levelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if level <= TraceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(level, enc)
}

func toZapLevel(level common.LogLevel) zapcore.Level {
	switch level {
	case common.LevelTrace:
		return TraceLevel
	case common.LevelDebug:
		return zapcore.DebugLevel
	case common.LevelInfo:
		return zapcore.InfoLevel
	case common.LevelWarn:
		return zapcore.WarnLevel
	case common.LevelError:
		return zapcore.ErrorLevel
	default: // common.LevelNone
		return zapcore.Level(zapcore.FatalLevel + 1)
	}
}

func toCommonLevel(level zapcore.Level) common.LogLevel {
	switch {
	case level <= TraceLevel:
		return common.LevelTrace
	case level <= zapcore.DebugLevel:
		return common.LevelDebug
	case level <= zapcore.InfoLevel:
		return common.LevelInfo
	case level <= zapcore.WarnLevel:
		return common.LevelWarn
	case level <= zapcore.ErrorLevel:
		return common.LevelError
	default:
		return common.LevelNone
	}
}

func toZapFields(fields map[string]interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// NewLogger builds a Logger writing to stdout at info level until
// overridden by options.
func NewLogger(options ...Option) *Logger {
	c := &config{level: common.LevelInfo, writer: zapcore.AddSync(os.Stdout)}
	for _, opt := range options {
		opt(c)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = levelEncoder
	encoder := zapcore.NewConsoleEncoder(encCfg)

	atomicLevel := zap.NewAtomicLevelAt(toZapLevel(c.level))
	core := zapcore.NewCore(encoder, c.writer, atomicLevel)
	zl := zap.New(core).With(toZapFields(c.fields)...)

	return &Logger{zl: zl, level: &atomicLevel}
}

// Trace logs at the lowest, highest-volume level (below zap's Debug).
func (l *Logger) Trace(ctx context.Context, format string, args ...interface{}) {
	if ce := l.zl.Check(TraceLevel, fmt.Sprintf(format, args...)); ce != nil {
		ce.Write()
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.zl.Sugar().Debugf(format, args...)
}

// Info logs an info message.
func (l *Logger) Info(ctx context.Context, format string, args ...interface{}) {
	l.zl.Sugar().Infof(format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.zl.Sugar().Warnf(format, args...)
}

// Error logs an error message.
func (l *Logger) Error(ctx context.Context, format string, args ...interface{}) {
	l.zl.Sugar().Errorf(format, args...)
}

// Hexdump logs a formatted byte dump of data at TRACE level.
// Format: offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f
func (l *Logger) Hexdump(ctx context.Context, data []byte) {
	ce := l.zl.Check(TraceLevel, "HEXDUMP")
	if ce == nil {
		return
	}

	dump := "offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f\n"
	for i := 0; i < len(data); i += 16 {
		dump += fmt.Sprintf("%08x", i)
		for j := 0; j < 16; j++ {
			if j == 8 {
				dump += " |"
			}
			dump += " "
			if i+j < len(data) {
				dump += fmt.Sprintf("%02x", data[i+j])
			} else {
				dump += "  "
			}
		}
		dump += "\n"
	}

	ce.Write(zap.String("dump", dump))
}

// WithFields returns a new logger sharing this one's level and writer,
// with fields merged on top of any it already carries.
func (l *Logger) WithFields(fields map[string]interface{}) common.LoggerInterface {
	return &Logger{zl: l.zl.With(toZapFields(fields)...), level: l.level}
}

// GetLevel returns the current log level.
func (l *Logger) GetLevel() common.LogLevel {
	return toCommonLevel(l.level.Level())
}

// SetLevel sets the log level. Loggers returned from WithFields share the
// same atomic level, so the change applies to all of them at once.
func (l *Logger) SetLevel(level common.LogLevel) {
	l.level.SetLevel(toZapLevel(level))
}

var _ common.LoggerInterface = (*Logger)(nil)
var _ common.LoggerInterfaceHexdump = (*Logger)(nil)
