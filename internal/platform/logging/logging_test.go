package logging

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestNewCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "debug", Dir: dir, Filename: "server.log"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer logger.Close()

	logger.InfoTag("BOOT", "logger ready")
	logger.Info("formatted %d", 42)

	if _, err := os.Stat(filepath.Join(dir, "server.log")); err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
}

func TestFormatLog(t *testing.T) {
	cases := []struct {
		tag, msg, want string
	}{
		{"TCP", "listener ready", "[TCP] listener ready"},
		{"", "plain message", "plain message"},
		{"HTTP", "[HTTP] already tagged", "[HTTP] already tagged"},
	}
	for _, tc := range cases {
		if got := FormatLog(tc.tag, tc.msg); got != tc.want {
			t.Fatalf("FormatLog(%q, %q) = %q, want %q", tc.tag, tc.msg, got, tc.want)
		}
	}
}

func TestExtractTag(t *testing.T) {
	if tag, ok := extractTag("[SESSION] settled"); !ok || tag != "SESSION" {
		t.Fatalf("unexpected tag parse: %q %v", tag, ok)
	}
	if _, ok := extractTag("no tag here"); ok {
		t.Fatal("expected no tag")
	}
}

func TestConcurrentLoggingAndRotationCheck(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Config{Level: "info", Dir: dir, Filename: "server.log"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				logger.InfoTag("TCP", "concurrent write", "worker", n, "seq", j)
			}
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			logger.checkAndRotate()
		}
	}()
	wg.Wait()
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	logger.Info("should not panic")
	logger.ErrorTag("TCP", "should not panic either")
}
