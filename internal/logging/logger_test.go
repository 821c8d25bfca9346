package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"boorubot/internal/logging"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.log")

	logger, err := logging.New(logging.Options{
		Level:       "info",
		Format:      "console",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "test")
	logger.Info("hello", logging.String("key", "value"))
	logger.Debug("hidden at info level")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "hello") || !strings.Contains(out, "[test]") || !strings.Contains(out, "key=value") {
		t.Fatalf("unexpected log output: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be suppressed at info level: %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestJSONFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Info("structured", logging.Int("n", 3))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"structured"`) || !strings.Contains(out, `"n":3`) {
		t.Fatalf("unexpected json output: %q", out)
	}
}
