package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/stitcher/types"
)

func TestLogger_JobContextFields(t *testing.T) {
	var buf bytes.Buffer
	meta := &types.JobMeta{JobID: "job-1", File: "rose.pes", Format: "brother"}
	logger := NewLoggerWithWriter(meta, &buf, zapcore.DebugLevel)

	logger.Info("thread change", map[string]any{"thread": "Red"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	for key, want := range map[string]string{
		"job_id":  "job-1",
		"file":    "rose.pes",
		"format":  "brother",
		"level":   "info",
		"message": "thread change",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["thread"] != "Red" {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(nil, &buf, zapcore.WarnLevel)

	logger.Info("hidden", nil)
	logger.Warn("shown", nil)

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info entry should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn entry missing")
	}
}

func TestLogger_Sugar(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter(nil, &buf, zapcore.DebugLevel).Sugar().Infof("stitch %d of %d", 3, 10)

	if !strings.Contains(buf.String(), "stitch 3 of 10") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNop(t *testing.T) {
	Nop().Error("discarded", map[string]any{"k": 1})
}
