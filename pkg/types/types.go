/*
 * @Description: shared types for the scan pipeline, quarantine and realtime watcher
 */
package types

import (
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultMaxFileSize is the size above which a file is skipped entirely.
	DefaultMaxFileSize int64 = 16 * 1024 * 1024

	SeveritySignature = 8
	SeverityHeuristic = 6
)

// Severity is the 0-10 score carried by a Detection.
type Severity int

// 返回严重级别的字符串表示
func (s Severity) String() string {
	switch {
	case s >= 9:
		return "Critical"
	case s >= 7:
		return "High"
	case s >= 5:
		return "Medium"
	case s >= 1:
		return "Low"
	default:
		return "None"
	}
}

// DetectionKind is either SignatureKind or HeuristicKind.
type DetectionKind interface {
	// Label is the short name used by reporters ("signature" / "heuristic").
	Label() string
	// Summary is a one-line human description of why the file was flagged.
	Summary() string
	isDetectionKind()
}

// SignatureKind marks a match against a named, family-tagged rule.
type SignatureKind struct {
	Name   string `json:"name" yaml:"name"`
	Family string `json:"family" yaml:"family"`
}

func (SignatureKind) Label() string { return "signature" }

func (k SignatureKind) Summary() string {
	if k.Family == "" {
		return k.Name
	}
	return k.Family + "/" + k.Name
}

func (SignatureKind) isDetectionKind() {}

// HeuristicKind marks a hit on the fixed behavioral indicator list.
type HeuristicKind struct {
	Description string   `json:"description" yaml:"description"`
	Indicators  []string `json:"indicators,omitempty" yaml:"indicators,omitempty"`
}

func (HeuristicKind) Label() string { return "heuristic" }

func (k HeuristicKind) Summary() string { return k.Description }

func (HeuristicKind) isDetectionKind() {}

// Detection is a single finding for one file. Treat it as immutable.
type Detection struct {
	Path        string        `json:"path"`
	Kind        DetectionKind `json:"kind"`
	Severity    Severity      `json:"severity"`
	ContentHash string        `json:"sha256,omitempty"` // hex SHA-256, empty when unset
	FileType    string        `json:"file_type,omitempty"`
	DetectedAt  time.Time     `json:"detected_at"`
}

// IsSignature reports whether the detection came from a signature rule.
func (d Detection) IsSignature() bool {
	_, ok := d.Kind.(SignatureKind)
	return ok
}

// IsHeuristic reports whether the detection came from the heuristic evaluator.
func (d Detection) IsHeuristic() bool {
	_, ok := d.Kind.(HeuristicKind)
	return ok
}

// Rule is one signature entry of a rule set. Order in the set is precedence.
type Rule struct {
	Name    string `json:"name" yaml:"name"`
	Family  string `json:"family" yaml:"family"`
	Pattern string `json:"pattern" yaml:"pattern"`
}

// ScanOptions controls which files are scanned and how.
type ScanOptions struct {
	// IncludeExtensions holds lowercase extensions without the dot.
	// nil means no filter; when set, extensionless files are excluded.
	IncludeExtensions map[string]struct{}
	EnableHeuristics  bool
	MaxFileSizeBytes  int64
	// Concurrency bounds the per-file worker pool. 0 means runtime.NumCPU().
	Concurrency int
}

// DefaultScanOptions returns the options used by one-shot and watcher scans
// when the caller supplies none.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		EnableHeuristics: true,
		MaxFileSizeBytes: DefaultMaxFileSize,
	}
}

// ExtensionSet normalizes a list like ["EXE", ".dll"] into a filter set.
// An empty list yields nil (no filter).
func ExtensionSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// FileExtension returns the lowercase extension of path without the dot,
// or "" when there is none.
func FileExtension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// RealtimeOptions configures a realtime watcher.
type RealtimeOptions struct {
	Paths        []string
	PollInterval time.Duration // bounded wait between liveness checks
}

// 文件信息结构体,保存文件的基本信息
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// ScanReport is the result of one engine run, used by reporters.
type ScanReport struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Roots        []string      `json:"roots"`
	FilesSeen    int           `json:"files_seen"`
	FilesScanned int           `json:"files_scanned"`
	FilesSkipped int           `json:"files_skipped"`
	Detections   []Detection   `json:"detections"`
}

// DataPaths 定义数据文件路径
type DataPaths struct {
	Root          string `yaml:"root"`
	Rules         string `yaml:"rules"`          // external rule set; empty = embedded
	HashBlocklist string `yaml:"hash_blocklist"` // optional sha256 list
	YaraRules     string `yaml:"yara_rules"`     // optional .yar file, needs -tags yara
}

// Performance 定义性能相关配置
type Performance struct {
	Concurrency int `yaml:"concurrency"`
}

// ScanConfig is the yaml form of ScanOptions.
type ScanConfig struct {
	IncludeExtensions []string `yaml:"include_extensions"`
	EnableHeuristics  *bool    `yaml:"enable_heuristics"`
	MaxFileSizeBytes  int64    `yaml:"max_file_size_bytes"`
}

// RealtimeConfig is the yaml form of RealtimeOptions.
type RealtimeConfig struct {
	Paths        []string      `yaml:"paths"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Output 定义输出相关配置
type Output struct {
	Format string `yaml:"format"` // console, json
}

// Log configures pkg/logging.
type Log struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	JSON  bool   `yaml:"json"`
}

// Config is the full application configuration.
type Config struct {
	DataPaths   DataPaths      `yaml:"data_paths"`
	Performance Performance    `yaml:"performance"`
	Scan        ScanConfig     `yaml:"scan"`
	Realtime    RealtimeConfig `yaml:"realtime"`
	Output      Output         `yaml:"output"`
	Log         Log            `yaml:"log"`
}

// ScanOptions converts the yaml scan section into ScanOptions.
func (c *Config) ScanOptions() ScanOptions {
	opts := DefaultScanOptions()
	opts.IncludeExtensions = ExtensionSet(c.Scan.IncludeExtensions)
	if c.Scan.EnableHeuristics != nil {
		opts.EnableHeuristics = *c.Scan.EnableHeuristics
	}
	if c.Scan.MaxFileSizeBytes > 0 {
		opts.MaxFileSizeBytes = c.Scan.MaxFileSizeBytes
	}
	opts.Concurrency = c.Performance.Concurrency
	return opts
}

// QuarantineDir is <data-root>/quarantine.
func (c *Config) QuarantineDir() string {
	return filepath.Join(c.DataPaths.Root, "quarantine")
}

// JournalPath is <data-root>/journal.db.
func (c *Config) JournalPath() string {
	return filepath.Join(c.DataPaths.Root, "journal.db")
}
