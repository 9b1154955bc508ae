package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"wib-shield/internal/quarantine"
	"wib-shield/pkg/types"
)

func detectionFor(path string) types.Detection {
	return types.Detection{
		Path:     path,
		Kind:     types.SignatureKind{Name: "njrat", Family: "njRAT"},
		Severity: types.SeveritySignature,
	}
}

func TestIsolateReportsUnwritableVault(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "payload.exe")
	if err := os.WriteFile(src, []byte("njrat payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	v := &vault{store: quarantine.New(filepath.Join(blocker, "quarantine"))}

	if err := v.isolate(context.Background(), detectionFor(src)); err == nil {
		t.Error("Expected error when the vault cannot be created")
	}
	if _, err := os.Stat(src); err != nil {
		t.Errorf("Expected source to be left in place, got %v", err)
	}
}

func TestIsolateAllCountsFailures(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.exe")
	if err := os.WriteFile(good, []byte("njrat payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	v := &vault{store: quarantine.New(filepath.Join(dir, "quarantine"))}

	err := v.isolateAll(context.Background(), []types.Detection{
		detectionFor(good),
		detectionFor(filepath.Join(dir, "vanished.exe")),
	})
	if err == nil {
		t.Fatal("Expected error for the file that could not be quarantined")
	}
	entries, _ := v.store.List()
	if len(entries) != 1 {
		t.Errorf("Expected the readable file to be quarantined, got %v", entries)
	}
}

func TestInVault(t *testing.T) {
	dir := t.TempDir()
	v := &vault{store: quarantine.New(filepath.Join(dir, "quarantine"))}
	if !v.inVault(filepath.Join(dir, "quarantine", "abc.qf")) {
		t.Error("Expected vault entry to be recognized")
	}
	if v.inVault(filepath.Join(dir, "abc.qf")) {
		t.Error("Expected file outside the vault not to be recognized")
	}
}
