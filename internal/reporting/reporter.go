/*
 * @Description: 报告生成器接口定义
 */
package reporting

import (
	"fmt"
	"strings"
	"wib-shield/pkg/types"
)

// Reporter 定义了报告生成器的通用接口
type Reporter interface {
	// Generate 根据扫描报告生成输出，并写入到 outputPath
	// 如果报告类型是直接输出（如控制台），outputPath 可能会被忽略
	Generate(report *types.ScanReport, outputPath string) error
}

// ForFormat picks a reporter by name: "console" (default) or "json".
func ForFormat(format string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "", "console":
		return NewConsoleReporter(), nil
	case "json":
		return NewJsonReporter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}
