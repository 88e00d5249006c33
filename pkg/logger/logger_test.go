package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newBufferLogger(level LogLevel) (*bytes.Buffer, Logger) {
	buf := &bytes.Buffer{}
	return buf, NewStandardLogger(log.New(buf, "", 0), level, "[test]")
}

func TestStandardLogger_LevelFiltering(t *testing.T) {
	buf, l := newBufferLogger(Warn)

	l.Debug("debug message")
	l.Info("info message")
	assert.Empty(t, buf.String())

	l.Warn("warn message")
	l.Error("error message")
	out := buf.String()
	assert.Contains(t, out, "[WARN] warn message")
	assert.Contains(t, out, "[ERROR] error message")
}

func TestStandardLogger_KeyValueFormatting(t *testing.T) {
	buf, l := newBufferLogger(Info)

	l.Info("send complete", "provider", "feishu", "messageID", "msg-1")
	out := buf.String()
	assert.Contains(t, out, "provider=feishu")
	assert.Contains(t, out, "messageID=msg-1")
}

func TestStandardLogger_OddArgs(t *testing.T) {
	buf, l := newBufferLogger(Info)

	l.Info("partial", "danglingKey")
	assert.Contains(t, buf.String(), "danglingKey=(no value)")
}

func TestStandardLogger_LogMode(t *testing.T) {
	buf, l := newBufferLogger(Silent)

	l.Error("suppressed")
	assert.Empty(t, buf.String())

	verbose := l.LogMode(Debug)
	verbose.Debug("visible")
	assert.Contains(t, buf.String(), "visible")

	// LogMode returns a new instance; the original is untouched.
	l.Error("still suppressed")
	assert.NotContains(t, buf.String(), "still suppressed")
}

func TestDiscard(t *testing.T) {
	// Must not panic and must return itself from LogMode.
	Discard.Debug("x")
	Discard.Info("x")
	Discard.Warn("x")
	Discard.Error("x")
	assert.Equal(t, Discard, Discard.LogMode(Debug))
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core), Info)

	l.Info("send complete", "provider", "feishu")
	l.Debug("hidden at info level")

	entries := logs.All()
	assert.Len(t, entries, 1)
	assert.Equal(t, "send complete", entries[0].Message)
	assert.Equal(t, "feishu", entries[0].ContextMap()["provider"])
}

func TestZapAdapter_LogMode(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapAdapter(zap.New(core), Info)

	l.LogMode(Debug).Debug("now visible")
	assert.Len(t, logs.All(), 1)
}
