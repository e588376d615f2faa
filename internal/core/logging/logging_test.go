package logging

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestEntryServiceLoggerDelegates(t *testing.T) {
	entry := newFakeEntry()
	logger := NewEntryServiceLogger(entry)

	logger.Info("boot", LogFields{"system": "test"})

	child := logger.With(LogFields{"base": "value"})
	child.Debug("child", LogFields{"child": "value"})

	boom := errors.New("boom")
	child.Error("child failed", boom, LogFields{"child": "value"})

	child.Warn("careful", nil)

	logs := entry.recorder.logs
	if len(logs) != 4 {
		t.Fatalf("expected 4 log entries, got %d", len(logs))
	}

	if logs[0].level != "info" || logs[0].msg != "boot" {
		t.Fatalf("unexpected first log: %#v", logs[0])
	}
	if got := logs[0].fields["system"]; got != "test" {
		t.Fatalf("missing system field, got %v", got)
	}

	if logs[1].level != "debug" {
		t.Fatalf("expected debug level on second log, got %s", logs[1].level)
	}
	if logs[1].fields["base"] != "value" || logs[1].fields["child"] != "value" {
		t.Fatalf("expected merged fields on second log, got %#v", logs[1].fields)
	}

	if logs[2].level != "error" || logs[2].err != boom {
		t.Fatalf("expected error with boom, got %#v", logs[2])
	}

	if logs[3].level != "warn" {
		t.Fatalf("expected warn level on final log, got %s", logs[3].level)
	}
}

func TestEntryServiceLoggerPanicsOnNil(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when entry logger nil")
		}
	}()
	NewEntryServiceLogger[EntryLogger](nil)
}

func TestEntryServiceLoggerWithNilFields(t *testing.T) {
	entry := newFakeEntry()
	logger := NewEntryServiceLogger(entry)
	child := logger.With(nil)
	child.Info("test", nil)

	if len(entry.recorder.logs) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entry.recorder.logs))
	}
}

func TestSlogLoggerPanicsOnNil(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic when slog logger nil")
		}
	}()
	NewSlogServiceLogger(nil)
}

func TestSlogServiceLoggerWritesLevelsAndFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := NewSlogServiceLogger(base)

	logger.Debug("dbg", LogFields{"component": "codec"})
	logger.Info("started", nil)
	logger.Warn("odd payload", LogFields{"stream": "app:orders"})
	logger.Error("append failed", errors.New("boom"), nil)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "component=codec",
		"level=INFO", "msg=started",
		"level=WARN", "stream=app:orders",
		"level=ERROR", "error=boom",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestSlogServiceLoggerWithPropagatesFields(t *testing.T) {
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, nil))
	logger := NewSlogServiceLogger(base).With(LogFields{"service": "billing"})

	logger.Info("subscribed", nil)

	if !strings.Contains(buf.String(), "service=billing") {
		t.Fatalf("expected bound field in output, got:\n%s", buf.String())
	}
}

func TestNopLoggerDiscards(t *testing.T) {
	logger := NewNopLogger()
	logger.Debug("a", nil)
	logger.Info("b", LogFields{"k": "v"})
	logger.Warn("c", nil)
	logger.Error("d", errors.New("boom"), nil)
	if child := logger.With(LogFields{"k": "v"}); child == nil {
		t.Fatal("expected non-nil child logger")
	}
}

func TestApplyEntryFieldsIgnoresNil(t *testing.T) {
	entry := newFakeEntry()
	enriched := applyEntryFields(entry, nil)
	if enriched != entry {
		t.Fatal("expected nil fields to return same instance")
	}
	withFields := applyEntryFields(entry, LogFields{"k": "v"})
	if withFields == entry {
		t.Fatal("expected new entry when fields provided")
	}
}

type loggedEntry struct {
	level  string
	msg    string
	fields LogFields
	err    error
}

type fakeEntry struct {
	recorder *entryRecorder
	fields   LogFields
	err      error
}

type entryRecorder struct {
	logs []loggedEntry
}

func newFakeEntry() *fakeEntry {
	return &fakeEntry{recorder: &entryRecorder{}}
}

func (f *fakeEntry) clone() *fakeEntry {
	clonedFields := cloneFields(f.fields)
	return &fakeEntry{recorder: f.recorder, fields: clonedFields, err: f.err}
}

func (f *fakeEntry) Error(args ...any) {
	f.append("error", args...)
}

func (f *fakeEntry) Warn(args ...any) {
	f.append("warn", args...)
}

func (f *fakeEntry) Info(args ...any) {
	f.append("info", args...)
}

func (f *fakeEntry) Debug(args ...any) {
	f.append("debug", args...)
}

func (f *fakeEntry) WithError(err error) *fakeEntry {
	clone := f.clone()
	clone.err = err
	return clone
}

func (f *fakeEntry) WithField(key string, value any) *fakeEntry {
	clone := f.clone()
	if clone.fields == nil {
		clone.fields = make(LogFields)
	}
	clone.fields[key] = value
	return clone
}

func (f *fakeEntry) append(level string, args ...any) {
	msg := fmt.Sprint(args...)
	entry := loggedEntry{
		level:  level,
		msg:    msg,
		fields: cloneFields(f.fields),
		err:    f.err,
	}
	f.recorder.logs = append(f.recorder.logs, entry)
}

func cloneFields(fields LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	out := make(LogFields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
