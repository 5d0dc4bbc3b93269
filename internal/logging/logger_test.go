package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWritesJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(dir, false)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("run started", zap.String("job", "pack"))
	logger.Debug("hidden")
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"msg":"run started"`) || !strings.Contains(text, `"job":"pack"`) {
		t.Fatalf("log missing entry: %s", text)
	}
	if strings.Contains(text, "hidden") {
		t.Fatalf("debug entry written at info level: %s", text)
	}
}
