package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTextSinkEnabled(t *testing.T) {
	s := NewTextSink(&bytes.Buffer{}, LevelDebug)
	assert.True(t, s.Enabled(LevelInfo))
	assert.True(t, s.Enabled(LevelDebug))
	assert.False(t, s.Enabled(LevelTrace))
}

func TestTextSinkInfoLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewTextSink(buf, LevelDebug)
	s.Info(LevelInfo, "hello world", "key", "value")
	out := buf.String()

	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "key: value")
	assert.Contains(t, out, "[INFO]")
}

func TestTextSinkSuppressesAboveVerbosity(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewTextSink(buf, LevelInfo)
	s.Info(LevelDebug, "should not appear")
	assert.Zero(t, buf.Len())
}

func TestTextSinkErrorLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewTextSink(buf, LevelInfo)
	s.Error(errors.New("boom"), "op failed", "op", "alloc")
	out := buf.String()

	assert.Contains(t, out, "[ERROR]")
	assert.Contains(t, out, "op failed")
	assert.Contains(t, out, "op: alloc")
	assert.Contains(t, out, "error: boom")
}

func TestTextSinkWithNameChaining(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewTextSink(buf, LevelDebug)
	chained := s.WithName("space").WithName("bitmap").(*TextSink)
	chained.Info(LevelInfo, "allocated")
	assert.True(t, strings.Contains(buf.String(), "[space.bitmap]"))
}

func TestNewTextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewTextLogger(buf, LevelTrace)
	log.Trace("deep trace", "lbn", 256)
	assert.Contains(t, buf.String(), "deep trace")
}

func TestDefaultLoggerDiscards(t *testing.T) {
	log := Default()
	// Should not panic even with no sink configured.
	log.Info("noop")
	log.Debug("noop")
	log.Error(errors.New("x"), "noop")
}
