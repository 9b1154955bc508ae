package realtime

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"wib-shield/internal/engine"
	"wib-shield/pkg/types"
)

const (
	arrivalTimeout = 5 * time.Second
	quietPeriod    = 1500 * time.Millisecond
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.NewEngine(&types.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// dropFile writes content elsewhere and renames it into dir, so the watcher
// sees a single create event for a complete file.
func dropFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	staging := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(staging, content, 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, name)
	if err := os.Rename(staging, target); err != nil {
		t.Fatal(err)
	}
	return target
}

func expectNone(t *testing.T, sink <-chan types.Detection, wait time.Duration) {
	t.Helper()
	select {
	case d := <-sink:
		t.Errorf("Expected no detection, got %+v", d)
	case <-time.After(wait):
	}
}

func TestNewMatchingFileProducesOneDetection(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watched")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	sink := make(chan types.Detection, 16)
	w, err := Start(newEngine(t), types.RealtimeOptions{Paths: []string{root}, PollInterval: 100 * time.Millisecond}, sink)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	target := dropFile(t, root, "dropper.bin", []byte("xx njrat xx"))

	select {
	case d := <-sink:
		if d.Path != target {
			t.Errorf("Expected detection for %s, got %s", target, d.Path)
		}
		if !d.IsSignature() {
			t.Errorf("Expected signature detection, got %T", d.Kind)
		}
	case <-time.After(arrivalTimeout):
		t.Fatal("Expected a detection, got none")
	}
	expectNone(t, sink, quietPeriod)

	if err := os.Remove(target); err != nil {
		t.Fatal(err)
	}
	expectNone(t, sink, quietPeriod)
}

func TestWrittenInPlaceFileProducesOneDetection(t *testing.T) {
	root := t.TempDir()
	sink := make(chan types.Detection, 16)
	w, err := Start(newEngine(t), types.RealtimeOptions{Paths: []string{root}, PollInterval: 100 * time.Millisecond}, sink)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	target := filepath.Join(root, "dropper.bin")
	if err := os.WriteFile(target, []byte("xx njrat xx"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-sink:
		if d.Path != target {
			t.Errorf("Expected detection for %s, got %s", target, d.Path)
		}
	case <-time.After(arrivalTimeout):
		t.Fatal("Expected a detection, got none")
	}
	expectNone(t, sink, quietPeriod)
}

func TestNewSubdirectoryIsWatched(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watched")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	sink := make(chan types.Detection, 16)
	w, err := Start(newEngine(t), types.RealtimeOptions{Paths: []string{root}}, sink)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	// let the directory create event register the new watch
	time.Sleep(300 * time.Millisecond)
	dropFile(t, sub, "a.bin", []byte("njrat"))

	select {
	case d := <-sink:
		if filepath.Base(d.Path) != "a.bin" {
			t.Errorf("Expected detection for a.bin, got %s", d.Path)
		}
	case <-time.After(arrivalTimeout):
		t.Fatal("Expected a detection in the new subdirectory")
	}
}

func TestCleanFileProducesNothing(t *testing.T) {
	root := t.TempDir()
	sink := make(chan types.Detection, 4)
	w, err := Start(newEngine(t), types.RealtimeOptions{Paths: []string{root}}, sink)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "readme.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectNone(t, sink, quietPeriod)
}

func TestStartErrors(t *testing.T) {
	sink := make(chan types.Detection)
	if _, err := Start(newEngine(t), types.RealtimeOptions{}, sink); !errors.Is(err, ErrNoPaths) {
		t.Errorf("Expected ErrNoPaths, got %v", err)
	}
	missing := filepath.Join(t.TempDir(), "missing")
	if _, err := Start(newEngine(t), types.RealtimeOptions{Paths: []string{missing}}, sink); err == nil {
		t.Error("Expected error for a root that does not exist")
	}
}

type recordingScanner struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *recordingScanner) Scan(roots []string, _ types.ScanOptions) ([]types.Detection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), roots...))
	return nil, nil
}

func (r *recordingScanner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestStopHaltsProcessing(t *testing.T) {
	root := t.TempDir()
	rec := &recordingScanner{}
	w, err := Start(rec, types.RealtimeOptions{Paths: []string{root}, PollInterval: 50 * time.Millisecond}, make(chan types.Detection))
	if err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()

	if err := os.WriteFile(filepath.Join(root, "late.bin"), []byte("njrat"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if n := rec.count(); n != 0 {
		t.Errorf("Expected no scans after Stop, got %d", n)
	}
}

func TestRemoveIsIgnored(t *testing.T) {
	root := t.TempDir()
	victim := filepath.Join(root, "victim.bin")
	if err := os.WriteFile(victim, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	rec := &recordingScanner{}
	w, err := Start(rec, types.RealtimeOptions{Paths: []string{root}}, make(chan types.Detection))
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(victim); err != nil {
		t.Fatal(err)
	}
	time.Sleep(quietPeriod)
	if n := rec.count(); n != 0 {
		t.Errorf("Expected remove to trigger no scan, got %d", n)
	}
}
