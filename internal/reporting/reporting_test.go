package reporting

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"wib-shield/pkg/types"
)

func sampleReport() *types.ScanReport {
	return &types.ScanReport{
		ID:           "scan-1",
		StartedAt:    time.Now(),
		Duration:     time.Second,
		Roots:        []string{"/srv"},
		FilesSeen:    3,
		FilesScanned: 2,
		FilesSkipped: 1,
		Detections: []types.Detection{
			{
				Path:     "/srv/z.ps1",
				Kind:     types.HeuristicKind{Description: "Suspicious", Indicators: []string{"invoke-expression"}},
				Severity: types.SeverityHeuristic,
			},
			{
				Path:        "/srv/a.exe",
				Kind:        types.SignatureKind{Name: "njrat", Family: "njRAT"},
				Severity:    types.SeveritySignature,
				ContentHash: "abc",
			},
		},
	}
}

func TestForFormat(t *testing.T) {
	if _, err := ForFormat("html"); err == nil {
		t.Error("Expected error for unsupported format")
	}
	r, err := ForFormat("JSON")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.(*JsonReporter); !ok {
		t.Errorf("Expected *JsonReporter, got %T", r)
	}
	if r, _ := ForFormat(""); r == nil {
		t.Error("Expected console reporter for empty format")
	}
}

func TestConsoleReporterSortsByPath(t *testing.T) {
	var buf bytes.Buffer
	if err := NewConsoleReporterTo(&buf).Generate(sampleReport(), ""); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	a := strings.Index(out, "/srv/a.exe")
	z := strings.Index(out, "/srv/z.ps1")
	if a < 0 || z < 0 || a > z {
		t.Errorf("Expected both paths sorted in output, got:\n%s", out)
	}
	if !strings.Contains(out, "njRAT/njrat") {
		t.Errorf("Expected signature summary in output, got:\n%s", out)
	}
}

func TestJsonReporterWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.json")
	if err := NewJsonReporter().Generate(sampleReport(), path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got jsonReport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(got.Results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got.Results))
	}
	for _, r := range got.Results {
		switch r.Kind {
		case "signature":
			if r.Family != "njRAT" || r.SHA256 != "abc" {
				t.Errorf("Unexpected signature result %+v", r)
			}
		case "heuristic":
			if r.SHA256 != "" || len(r.Indicators) != 1 {
				t.Errorf("Unexpected heuristic result %+v", r)
			}
		default:
			t.Errorf("Unexpected kind %q", r.Kind)
		}
	}
}
