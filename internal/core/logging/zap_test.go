package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerPanicsOnNil(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when zap logger nil")
		}
	}()
	NewZapServiceLogger(nil)
}

func TestZapServiceLoggerWritesLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapServiceLogger(zap.New(core))

	logger.Debug("dbg", LogFields{"component": "codec"})
	logger.Info("started", nil)
	logger.Warn("odd payload", LogFields{"stream": "app:orders"})
	boom := errors.New("boom")
	logger.Error("append failed", boom, nil)

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 log entries, got %d", len(entries))
	}

	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %s", entries[0].Level)
	}
	if got := entries[0].ContextMap()["component"]; got != "codec" {
		t.Fatalf("missing component field, got %v", got)
	}

	if entries[1].Level != zapcore.InfoLevel || entries[1].Message != "started" {
		t.Fatalf("unexpected second entry: %#v", entries[1].Entry)
	}

	if got := entries[2].ContextMap()["stream"]; got != "app:orders" {
		t.Fatalf("missing stream field, got %v", got)
	}

	if entries[3].Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level, got %s", entries[3].Level)
	}
	if got := entries[3].ContextMap()["error"]; got != "boom" {
		t.Fatalf("expected error field boom, got %v", got)
	}
}

func TestZapServiceLoggerWithPropagatesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapServiceLogger(zap.New(core)).With(LogFields{"service": "billing"})

	logger.Info("subscribed", nil)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["service"]; got != "billing" {
		t.Fatalf("expected bound field in output, got %v", got)
	}
}
