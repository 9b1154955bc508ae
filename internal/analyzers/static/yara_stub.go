//go:build !yara

package static

import (
	"errors"
	"wib-shield/pkg/types"
)

// YaraAvailable reports whether this binary was built with YARA support.
const YaraAvailable = false

// ErrYaraUnavailable is returned when YARA rules are configured but the
// binary was built without -tags yara.
var ErrYaraUnavailable = errors.New("yara support not compiled in (build with -tags yara)")

type YaraAnalyzer struct{}

func NewYaraAnalyzer(rulePath string) (*YaraAnalyzer, error) {
	return nil, ErrYaraUnavailable
}

func (a *YaraAnalyzer) Name() string { return "yara" }

func (a *YaraAnalyzer) Analyze(file types.FileInfo, content []byte, text string) (*types.Detection, error) {
	return nil, nil
}
