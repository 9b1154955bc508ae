/*
 * @Description: 终端命令行输出
 */
package reporting

import (
	"fmt"
	"io"
	"os"
	"sort"
	"wib-shield/pkg/types"

	"github.com/fatih/color"
)

var (
	colorHigh   = color.New(color.FgRed, color.Bold)
	colorMedium = color.New(color.FgYellow)
	colorInfo   = color.New(color.FgCyan)
	colorOK     = color.New(color.FgGreen, color.Bold)
)

type ConsoleReporter struct {
	out io.Writer
}

/**
 * @Description: 创建新的终端命令行输出
 * @return *ConsoleReporter: 终端命令行输出
 */
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: color.Output}
}

// NewConsoleReporterTo writes to w instead of stdout.
func NewConsoleReporterTo(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: w}
}

/**
 * @Description: 生成终端命令行输出
 * @param report *types.ScanReport: 扫描报告
 * @param outputPath string: 输出路径，控制台输出时忽略
 */
func (r *ConsoleReporter) Generate(report *types.ScanReport, outputPath string) error {
	if outputPath != "" {
		fmt.Fprintf(os.Stderr, "Warning: Console reporter does not support output path '%s'. Printing to stdout.\n", outputPath)
	}

	detections := append([]types.Detection(nil), report.Detections...)
	// Sort by path for consistent output
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].Path < detections[j].Path
	})

	fmt.Fprintln(r.out, "\n--- Scan Report ---")
	colorInfo.Fprintf(r.out, "Scan ID: %s\n", report.ID)

	kindCounts := make(map[string]int)
	for _, d := range detections {
		kindCounts[d.Kind.Label()]++
		c := colorMedium
		if d.Severity >= types.SeveritySignature {
			c = colorHigh
		}
		c.Fprintf(r.out, "[%s] %s\n", d.Severity.String(), d.Path)
		fmt.Fprintf(r.out, "  -> %s: %s (severity %d)\n", d.Kind.Label(), d.Kind.Summary(), d.Severity)
		if h, ok := d.Kind.(types.HeuristicKind); ok && len(h.Indicators) > 0 {
			fmt.Fprintf(r.out, "  -> indicators: %v\n", h.Indicators)
		}
		if d.ContentHash != "" {
			fmt.Fprintf(r.out, "  -> sha256: %s\n", d.ContentHash)
		}
		if d.FileType != "" {
			fmt.Fprintf(r.out, "  -> type: %s\n", d.FileType)
		}
	}

	fmt.Fprintln(r.out, "\n--- Summary ---")
	fmt.Fprintf(r.out, "Files Found:   %d\n", report.FilesSeen)
	fmt.Fprintf(r.out, "Files Scanned: %d\n", report.FilesScanned)
	fmt.Fprintf(r.out, "Files Skipped: %d\n", report.FilesSkipped)
	fmt.Fprintf(r.out, "Duration:      %s\n", report.Duration)
	if len(detections) == 0 {
		colorOK.Fprintln(r.out, "No threats detected.")
	} else {
		colorHigh.Fprintf(r.out, "Detections:    %d\n", len(detections))
		for _, kind := range []string{"signature", "heuristic"} {
			if n := kindCounts[kind]; n > 0 {
				fmt.Fprintf(r.out, "  - %-9s : %d\n", kind, n)
			}
		}
	}
	fmt.Fprintln(r.out, "--- End Report ---")
	return nil
}
