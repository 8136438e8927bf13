package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/coreprotocols/gomodbus/common"
)

func captureLogger(level common.LogLevel) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(level), WithWriter(zapcore.AddSync(&buf)))
	return l, &buf
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := captureLogger(common.LevelWarn)
	ctx := context.Background()

	l.Debug(ctx, "debug message")
	l.Info(ctx, "info message")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below the configured level, got %q", buf.String())
	}

	l.Warn(ctx, "warn message")
	if !strings.Contains(buf.String(), "warn message") {
		t.Errorf("output = %q, want it to contain %q", buf.String(), "warn message")
	}
}

func TestLogger_SetLevelAppliesImmediately(t *testing.T) {
	l, buf := captureLogger(common.LevelError)
	ctx := context.Background()

	l.Info(ctx, "should be suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected no output at error level, got %q", buf.String())
	}

	l.SetLevel(common.LevelInfo)
	l.Info(ctx, "should now appear")
	if !strings.Contains(buf.String(), "should now appear") {
		t.Errorf("output = %q, want it to contain the message logged after SetLevel", buf.String())
	}
}

func TestLogger_WithFieldsSharesLevelAndAddsFields(t *testing.T) {
	l, buf := captureLogger(common.LevelInfo)
	child := l.WithFields(map[string]interface{}{"unit": 17})

	child.Info(context.Background(), "hello")
	if !strings.Contains(buf.String(), "unit") || !strings.Contains(buf.String(), "17") {
		t.Errorf("output = %q, want it to contain the field unit=17", buf.String())
	}

	l.SetLevel(common.LevelError)
	buf.Reset()
	child.Info(context.Background(), "should be suppressed")
	if buf.Len() != 0 {
		t.Errorf("WithFields logger should share its parent's level; got output %q after raising it", buf.String())
	}
}

func TestLogger_TraceBelowDebug(t *testing.T) {
	l, buf := captureLogger(common.LevelDebug)
	l.Trace(context.Background(), "trace message")
	if buf.Len() != 0 {
		t.Fatalf("TRACE should be filtered out at debug level, got %q", buf.String())
	}

	l.SetLevel(common.LevelTrace)
	l.Trace(context.Background(), "trace message")
	if !strings.Contains(buf.String(), "trace message") {
		t.Errorf("output = %q, want it to contain the trace message", buf.String())
	}
	if !strings.Contains(buf.String(), "TRACE") {
		t.Errorf("output = %q, want the custom TRACE level name", buf.String())
	}
}

func TestLogger_HexdumpRespectsLevel(t *testing.T) {
	l, buf := captureLogger(common.LevelDebug)
	l.Hexdump(context.Background(), []byte{0x01, 0x02, 0x03})
	if buf.Len() != 0 {
		t.Fatalf("Hexdump should be suppressed above trace level, got %q", buf.String())
	}

	l.SetLevel(common.LevelTrace)
	l.Hexdump(context.Background(), []byte{0x01, 0x02, 0x03})
	if !strings.Contains(buf.String(), "01 02 03") {
		t.Errorf("output = %q, want it to contain the hex bytes", buf.String())
	}
}

func TestLogger_GetLevelRoundTrips(t *testing.T) {
	l, _ := captureLogger(common.LevelWarn)
	if got := l.GetLevel(); got != common.LevelWarn {
		t.Errorf("GetLevel() = %v, want %v", got, common.LevelWarn)
	}
	l.SetLevel(common.LevelError)
	if got := l.GetLevel(); got != common.LevelError {
		t.Errorf("GetLevel() after SetLevel = %v, want %v", got, common.LevelError)
	}
}
