package reporting

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"
	"wib-shield/pkg/types"
)

// 简化版检测结果
type SimpleDetection struct {
	Path        string   `json:"path"`
	Filename    string   `json:"filename"`
	Kind        string   `json:"kind"` // signature / heuristic
	Name        string   `json:"name,omitempty"`
	Family      string   `json:"family,omitempty"`
	Description string   `json:"description,omitempty"`
	Indicators  []string `json:"indicators,omitempty"`
	Severity    int      `json:"severity"`
	RiskText    string   `json:"risk_text"`
	SHA256      string   `json:"sha256,omitempty"`
	FileType    string   `json:"file_type,omitempty"`
}

type jsonReport struct {
	ID           string            `json:"id"`
	StartedAt    time.Time         `json:"started_at"`
	DurationMS   int64             `json:"duration_ms"`
	Roots        []string          `json:"roots"`
	FilesSeen    int               `json:"files_seen"`
	FilesScanned int               `json:"files_scanned"`
	FilesSkipped int               `json:"files_skipped"`
	Results      []SimpleDetection `json:"results"`
}

// JsonReporter 实现 Reporter 接口
type JsonReporter struct {
	stdout io.Writer
}

/**
 * @Description: 创建新的JSON报告
 * @return *JsonReporter: JSON报告
 */
func NewJsonReporter() *JsonReporter {
	return &JsonReporter{stdout: os.Stdout}
}

// Flatten converts a detection into the flat JSON shape.
func Flatten(d types.Detection) SimpleDetection {
	sd := SimpleDetection{
		Path:     d.Path,
		Filename: filepath.Base(d.Path),
		Kind:     d.Kind.Label(),
		Severity: int(d.Severity),
		RiskText: d.Severity.String(),
		SHA256:   d.ContentHash,
		FileType: d.FileType,
	}
	switch k := d.Kind.(type) {
	case types.SignatureKind:
		sd.Name = k.Name
		sd.Family = k.Family
	case types.HeuristicKind:
		sd.Description = k.Description
		sd.Indicators = k.Indicators
	}
	return sd
}

/**
 * @Description: 生成JSON报告。outputPath 为空时写到标准输出
 * @param report *types.ScanReport: 扫描报告
 * @param outputPath string: 输出路径
 * @return error: 错误
 */
func (r *JsonReporter) Generate(report *types.ScanReport, outputPath string) error {
	out := jsonReport{
		ID:           report.ID,
		StartedAt:    report.StartedAt,
		DurationMS:   report.Duration.Milliseconds(),
		Roots:        report.Roots,
		FilesSeen:    report.FilesSeen,
		FilesScanned: report.FilesScanned,
		FilesSkipped: report.FilesSkipped,
		Results:      make([]SimpleDetection, 0, len(report.Detections)),
	}
	for _, d := range report.Detections {
		out.Results = append(out.Results, Flatten(d))
	}

	w := r.stdout
	if outputPath != "" {
		if dir := filepath.Dir(outputPath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		f, err := os.Create(outputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
