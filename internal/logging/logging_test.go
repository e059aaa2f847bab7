package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tracefood/internal/core"
)

var (
	_ core.Logger     = (*Logger)(nil)
	_ badgerdb.Logger = (*BadgerLogger)(nil)
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug"}, &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Info("lot minted", "lot_id", "lot-1", "farmer_id", "A")
	_ = l.Sync()

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["msg"] != "lot minted" || line["lot_id"] != "lot-1" || line["level"] != "info" {
		t.Fatalf("unexpected line %v", line)
	}
	if _, ok := line["caller"]; !ok {
		t.Fatalf("expected caller field")
	}
	if c, _ := line["caller"].(string); strings.Contains(c, "logging.go") {
		t.Fatalf("caller must point at the call site, got %s", c)
	}
}

func TestLevelFilteringAndConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "console"}, &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown", "k", 1)
	l.Error("also shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "WARN") || !strings.Contains(out, "also shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Level: "loud"}, nil); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := New(Config{Format: "xml"}, nil); err == nil {
		t.Fatalf("expected format error")
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tracefood.log")
	var console bytes.Buffer
	l, err := New(Config{File: path, MaxSizeMB: 1, MaxBackups: 1}, &console)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	l.Info("to both sinks")
	_ = l.Sync()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "to both sinks") || !strings.Contains(console.String(), "to both sinks") {
		t.Fatalf("entry missing from a sink: file=%q console=%q", b, console.String())
	}
}

func TestBadgerAdapterAndNamed(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(obsCore)).Named("store")
	b := l.Badger()
	b.Errorf("compaction failed: %v\n", "disk full")
	b.Warningf("slow write")
	b.Infof("replaying")
	b.Debugf("detail %d", 3)

	entries := logs.All()
	if len(entries) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.ErrorLevel || entries[0].Message != "compaction failed: disk full" || entries[0].LoggerName != "store.badger" {
		t.Fatalf("unexpected error entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel || entries[2].Level != zapcore.DebugLevel {
		t.Fatalf("unexpected level mapping %v %v", entries[1].Level, entries[2].Level)
	}
}

func TestNopAndWrapNil(t *testing.T) {
	NewNop().Info("discarded")
	Wrap(nil).Error("discarded")
	if NewNop().Zap() == nil {
		t.Fatalf("expected underlying logger")
	}
}
