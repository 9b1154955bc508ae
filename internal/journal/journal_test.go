package journal

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"wib-shield/pkg/types"
)

const digest = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "data", "journal.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRestore(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	qpath := filepath.Join("/vault", digest+".qf")
	d := types.Detection{
		Path:     "/home/u/Downloads/tool.exe",
		Kind:     types.SignatureKind{Name: "njrat", Family: "njRAT"},
		Severity: types.SeveritySignature,
	}

	if _, err := j.RecordIsolation(ctx, qpath, d); err != nil {
		t.Fatal(err)
	}
	e, err := j.Lookup(ctx, qpath)
	if err != nil {
		t.Fatal(err)
	}
	if e.Hash != digest {
		t.Errorf("Expected hash %s, got %s", digest, e.Hash)
	}
	if e.OriginalPath != d.Path {
		t.Errorf("Expected original path %s, got %s", d.Path, e.OriginalPath)
	}
	if !strings.Contains(e.Detection, "njRAT/njrat") {
		t.Errorf("Expected detection summary, got %q", e.Detection)
	}
	if e.Severity != types.SeveritySignature {
		t.Errorf("Expected severity 8, got %d", e.Severity)
	}
	if e.Restored() {
		t.Error("Expected entry not to be restored yet")
	}

	if err := j.RecordRestore(ctx, qpath, "/tmp/tool.exe"); err != nil {
		t.Fatal(err)
	}
	e, _ = j.Lookup(ctx, qpath)
	if !e.Restored() || e.RestoredTo != "/tmp/tool.exe" {
		t.Errorf("Expected restore recorded, got %+v", e)
	}
}

func TestLookupMissing(t *testing.T) {
	j := openTemp(t)
	if _, err := j.Lookup(context.Background(), "/vault/none.qf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := j.RecordRestore(context.Background(), "/vault/none.qf", "/x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on restore, got %v", err)
	}
}

func TestEntriesNewestFirstAndForget(t *testing.T) {
	ctx := context.Background()
	j := openTemp(t)
	heur := types.Detection{Path: "/a.ps1", Kind: types.HeuristicKind{Description: "x"}, Severity: types.SeverityHeuristic, ContentHash: "fallback"}
	if _, err := j.RecordIsolation(ctx, "/vault/first.qf", heur); err != nil {
		t.Fatal(err)
	}
	if _, err := j.RecordIsolation(ctx, "/vault/second.qf", heur); err != nil {
		t.Fatal(err)
	}
	entries, err := j.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].QuarantinePath != "/vault/second.qf" {
		t.Fatalf("Expected newest first, got %+v", entries)
	}
	if entries[0].Hash != "fallback" {
		t.Errorf("Expected detection hash as fallback, got %q", entries[0].Hash)
	}

	if err := j.Forget(ctx, "/vault/second.qf"); err != nil {
		t.Fatal(err)
	}
	entries, _ = j.Entries(ctx)
	if len(entries) != 1 {
		t.Errorf("Expected 1 entry after Forget, got %d", len(entries))
	}
}

func TestReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := j.RecordIsolation(ctx, "/vault/"+digest+".qf", types.Detection{Path: "/x", Kind: types.SignatureKind{Name: "n"}}); err != nil {
		t.Fatal(err)
	}
	j.Close()

	j, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	entries, err := j.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected persisted entry, got %d", len(entries))
	}
}
