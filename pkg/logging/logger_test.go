package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupClosesReplacedLogFile(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { _ = Setup(Options{Level: "info"}) })

	if err := Setup(Options{Level: "info", File: filepath.Join(dir, "first.log")}); err != nil {
		t.Fatal(err)
	}
	mu.RLock()
	first, ok := closer.(*os.File)
	mu.RUnlock()
	if !ok {
		t.Fatalf("Expected the log file to be kept as closer, got %T", closer)
	}

	second := filepath.Join(dir, "second.log")
	if err := Setup(Options{Level: "info", File: second}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Expected first log file to be closed, got %v", err)
	}

	Infof("hello %s", "second")
	Sync()
	data, err := os.ReadFile(second)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "hello second") {
		t.Errorf("Expected entry in second log file, got %q", data)
	}
}

func TestSetupRejectsBadLevel(t *testing.T) {
	if err := Setup(Options{Level: "loud"}); err == nil {
		t.Error("Expected error for unknown level")
	}
}
