package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeLogFixture writes raw lines to {dir}/fabric.log for aggregation tests.
func writeLogFixture(t *testing.T, dir string, lines ...string) {
	t.Helper()
	path := filepath.Join(dir, LogFileName)
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write log fixture: %v", err)
	}
}

func TestAggregateLogs(t *testing.T) {
	dir := t.TempDir()
	writeLogFixture(t, dir,
		`{"time":"2026-08-01T10:00:02Z","level":"INFO","msg":"second","team":"alpha"}`,
		`{"time":"2026-08-01T10:00:01Z","level":"DEBUG","msg":"first","agent":"dev"}`,
		`{"time":"2026-08-01T10:00:03Z","level":"ERROR","msg":"third","component":"store","task_id":"3"}`,
	)

	entries, err := AggregateLogs(dir)
	if err != nil {
		t.Fatalf("AggregateLogs failed: %v", err)
	}

	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}

	// Sorted by timestamp ascending.
	if entries[0].Message != "first" || entries[1].Message != "second" || entries[2].Message != "third" {
		t.Errorf("entries not sorted by timestamp: %v, %v, %v",
			entries[0].Message, entries[1].Message, entries[2].Message)
	}

	if entries[0].Agent != "dev" {
		t.Errorf("Agent = %q, want %q", entries[0].Agent, "dev")
	}
	if entries[1].Team != "alpha" {
		t.Errorf("Team = %q, want %q", entries[1].Team, "alpha")
	}
	if entries[2].Component != "store" {
		t.Errorf("Component = %q, want %q", entries[2].Component, "store")
	}
	if entries[2].Attrs["task_id"] != "3" {
		t.Errorf("Attrs[task_id] = %v, want %q", entries[2].Attrs["task_id"], "3")
	}
}

func TestAggregateLogs_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	writeLogFixture(t, dir,
		`{"time":"2026-08-01T10:00:01Z","level":"INFO","msg":"good"}`,
		`{"time":"2026-08-01T10:00:0`,
		``,
		`{"time":"2026-08-01T10:00:02Z","level":"INFO","msg":"also good"}`,
	)

	entries, err := AggregateLogs(dir)
	if err != nil {
		t.Fatalf("AggregateLogs failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2 (malformed lines skipped)", len(entries))
	}
}

func TestAggregateLogs_MissingFile(t *testing.T) {
	dir := t.TempDir()

	if _, err := AggregateLogs(dir); err == nil {
		t.Error("AggregateLogs succeeded with no log file, want error")
	}
}

func TestFilterLogs(t *testing.T) {
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	entries := []LogEntry{
		{Timestamp: base, Level: "DEBUG", Message: "lock acquired", Team: "alpha", Agent: "dev"},
		{Timestamp: base.Add(time.Minute), Level: "INFO", Message: "task created", Team: "alpha", Agent: "lead"},
		{Timestamp: base.Add(2 * time.Minute), Level: "WARN", Message: "repaired role", Team: "beta", Component: "store"},
		{Timestamp: base.Add(3 * time.Minute), Level: "ERROR", Message: "write failed", Team: "beta", Component: "store"},
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"empty filter returns all", LogFilter{}, 4},
		{"level WARN", LogFilter{Level: "WARN"}, 2},
		{"level lowercase", LogFilter{Level: "warn"}, 2},
		{"team", LogFilter{Team: "alpha"}, 2},
		{"agent", LogFilter{Agent: "lead"}, 1},
		{"component", LogFilter{Component: "store"}, 2},
		{"message contains", LogFilter{MessageContains: "task"}, 1},
		{"start time", LogFilter{StartTime: base.Add(90 * time.Second)}, 2},
		{"end time", LogFilter{EndTime: base.Add(90 * time.Second)}, 2},
		{"combined", LogFilter{Team: "beta", Level: "ERROR"}, 1},
		{"no match", LogFilter{Team: "gamma"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterLogs(entries, tt.filter)
			if len(got) != tt.want {
				t.Errorf("FilterLogs() returned %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestExportLogEntries_JSON(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.json")

	entries := []LogEntry{
		{Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), Level: "INFO", Message: "hello", Team: "alpha"},
	}

	if err := ExportLogEntries(entries, outPath, "json"); err != nil {
		t.Fatalf("ExportLogEntries failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}

	var decoded []LogEntry
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Message != "hello" {
		t.Errorf("decoded = %+v, want one entry with message %q", decoded, "hello")
	}
}

func TestExportLogEntries_Text(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.txt")

	entries := []LogEntry{
		{
			Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
			Level:     "WARN",
			Message:   "repaired role",
			Team:      "alpha",
			Agent:     "dev",
			Attrs:     map[string]any{"from": "boss"},
		},
	}

	if err := ExportLogEntries(entries, outPath, "text"); err != nil {
		t.Fatalf("ExportLogEntries failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}

	text := string(data)
	for _, want := range []string{"WARN", "repaired role", "team=alpha", "agent=dev", `"from":"boss"`} {
		if !strings.Contains(text, want) {
			t.Errorf("text export missing %q:\n%s", want, text)
		}
	}
}

func TestExportLogEntries_CSV(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "out.csv")

	entries := []LogEntry{
		{Timestamp: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), Level: "INFO", Message: "hello", Component: "ledger"},
	}

	if err := ExportLogEntries(entries, outPath, "csv"); err != nil {
		t.Fatalf("ExportLogEntries failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("failed to read export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d CSV lines, want 2 (header + record)", len(lines))
	}
	if !strings.HasPrefix(lines[0], "timestamp,level,message") {
		t.Errorf("unexpected CSV header: %s", lines[0])
	}
	if !strings.Contains(lines[1], "ledger") {
		t.Errorf("CSV record missing component: %s", lines[1])
	}
}

func TestExportLogEntries_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()

	err := ExportLogEntries(nil, filepath.Join(dir, "out.xml"), "xml")
	if err == nil {
		t.Error("ExportLogEntries succeeded with unsupported format, want error")
	}
}

func TestExportLogs_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeLogFixture(t, dir,
		`{"time":"2026-08-01T10:00:01Z","level":"INFO","msg":"one"}`,
		`{"time":"2026-08-01T10:00:02Z","level":"INFO","msg":"two"}`,
	)

	outPath := filepath.Join(dir, "export.json")
	if err := ExportLogs(dir, outPath, "json"); err != nil {
		t.Fatalf("ExportLogs failed: %v", err)
	}

	var decoded []LogEntry
	data, _ := os.ReadFile(outPath)
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Errorf("exported %d entries, want 2", len(decoded))
	}
}
