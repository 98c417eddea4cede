package logger

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestWithEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	log := Logger()
	entry := log.WithEnv("FOO")
	if v, ok := entry.Entry.Data["FOO"]; !ok || v != "bar" {
		t.Fatalf("env field not set: %v", entry.Entry.Data)
	}
}

func TestLogMetricFields(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	fields := Fields{"symbol": "TCS"}
	log.LogMetric("engine", "rows_written", 12, "", fields)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["metric"] != "rows_written" || line["metric_type"] != "counter" || line["symbol"] != "TCS" {
		t.Fatalf("unexpected metric line: %v", line)
	}
	if _, ok := fields["metric"]; ok {
		t.Fatalf("caller fields were mutated: %v", fields)
	}
}

func TestLogPerformanceEntry(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	LogPerformanceEntry(log.WithFields(Fields{"table": "Option_TCS"}), "writer", "replace", 1500*time.Microsecond, nil)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["operation"] != "replace" || line["component"] != "writer" || line["duration_ms"] != 1.5 {
		t.Fatalf("unexpected performance line: %v", line)
	}
	if line["table"] != "Option_TCS" {
		t.Fatalf("entry fields lost: %v", line)
	}
}

func TestLogDataFlowEntry(t *testing.T) {
	var buf bytes.Buffer
	log := Logger()
	log.SetOutput(&buf)

	LogDataFlowEntry(log.WithComponent("engine"), "niftytrader", "Option_TCS", 42, "analytics")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["source"] != "niftytrader" || line["destination"] != "Option_TCS" || line["record_count"] != 42.0 {
		t.Fatalf("unexpected data flow line: %v", line)
	}
}
