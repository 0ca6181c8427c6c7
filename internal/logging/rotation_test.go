package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriter_NoRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 0})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	data := strings.Repeat("x", 4096)
	for i := 0; i < 10; i++ {
		if _, err := rw.Write([]byte(data)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("rotation occurred with MaxSizeMB=0")
	}
	if rw.CurrentSize() != int64(10*4096) {
		t.Errorf("CurrentSize() = %d, want %d", rw.CurrentSize(), 10*4096)
	}
}

func TestRotatingWriter_RotatesAtLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	// Write past 1MB to force a rotation.
	chunk := []byte(strings.Repeat("y", 64*1024))
	for i := 0; i < 20; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if _, err := rw.Write(chunk); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected backup file after rotation: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected fresh log file after rotation: %v", err)
	}
}

func TestRotatingWriter_MaxBackups(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 2})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	// Force several rotations.
	chunk := []byte(strings.Repeat("z", 256*1024))
	for i := 0; i < 20; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("backup .3 exists, want at most 2 backups")
	}
}

func TestRotatingWriter_Compression(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.log")

	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1, Compress: true})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	marker := "first-generation-entry\n"
	if _, err := rw.Write([]byte(marker)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	chunk := []byte(strings.Repeat("w", 256*1024))
	for i := 0; i < 5; i++ {
		if _, err := rw.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	// Compression runs asynchronously; poll briefly.
	gzPath := path + ".1.gz"
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(gzPath); err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	f, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("compressed backup not created: %v", err)
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	defer gzr.Close()

	data, err := io.ReadAll(gzr)
	if err != nil {
		t.Fatalf("failed to read compressed backup: %v", err)
	}
	if !strings.Contains(string(data), "first-generation-entry") {
		t.Error("compressed backup does not contain original entries")
	}

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup still present after compression")
	}
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.log")

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}

	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write after Close succeeded, want error")
	}
}

func TestRotatingWriter_CreatesParentDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deep", "fabric.log")

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("log file not created in nested directory: %v", err)
	}
}

func TestLoggerWithRotation(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLoggerWithRotation(dir, LevelDebug, RotationConfig{MaxSizeMB: 1, MaxBackups: 1})
	if err != nil {
		t.Fatalf("NewLoggerWithRotation failed: %v", err)
	}

	for i := 0; i < 100; i++ {
		logger.Info("entry", "n", i, "padding", strings.Repeat("p", 100))
	}

	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, LogFileName)); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 {
		t.Errorf("MaxSizeMB = %d, want 10", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups != 3 {
		t.Errorf("MaxBackups = %d, want 3", cfg.MaxBackups)
	}
	if cfg.Compress {
		t.Error("Compress = true, want false")
	}
}

func TestRotatingWriter_FilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fabric.log")

	rw, err := NewRotatingWriter(path, DefaultRotationConfig())
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	defer rw.Close()

	if got := rw.FilePath(); got != path {
		t.Errorf("FilePath() = %q, want %q", got, path)
	}
}

func ExampleNewRotatingWriter() {
	dir, _ := os.MkdirTemp("", "rotation")
	defer os.RemoveAll(dir)

	rw, _ := NewRotatingWriter(filepath.Join(dir, "fabric.log"), RotationConfig{
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	defer rw.Close()

	fmt.Fprintln(rw, "hello")
	// Output:
}
