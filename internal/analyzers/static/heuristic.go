package static

import (
	"strings"
	"wib-shield/pkg/types"
)

// HeuristicDescription is the generic description carried by every heuristic
// detection.
const HeuristicDescription = "Suspicious script or RAT-like behavior indicators"

// defaultIndicators covers C2 download cradles, encoded PowerShell, disabling
// of Defender monitoring, Run-key and scheduled-task persistence, script hosts,
// and clipboard/keylog/remote-desktop tooling.
var defaultIndicators = []string{
	"powershell -enc",
	"downloadstring(",
	"invoke-expression",
	"add-mppreference",
	"disableRealtimeMonitoring",
	`reg add \\hklm\software\microsoft\windows\currentversion\run`,
	"schtasks /create",
	"wscript.shell",
	"system.net.webclient",
	"reflective loader",
	"keylogger",
	"clipboard",
	"rdp",
}

// HeuristicAnalyzer matches decoded content against a fixed list of
// case-insensitive substring indicators. The list is built once and never
// mutated, so one value can be shared by all scan goroutines.
type HeuristicAnalyzer struct {
	analyzerName string
	indicators   []string // lowercase
}

// NewHeuristicAnalyzer returns the evaluator with the built-in indicator list.
func NewHeuristicAnalyzer() *HeuristicAnalyzer {
	return NewHeuristicAnalyzerWith(defaultIndicators)
}

// NewHeuristicAnalyzerWith builds an evaluator over a custom indicator list.
func NewHeuristicAnalyzerWith(indicators []string) *HeuristicAnalyzer {
	lowered := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		if ind = strings.ToLower(ind); ind != "" {
			lowered = append(lowered, ind)
		}
	}
	return &HeuristicAnalyzer{analyzerName: "heuristic", indicators: lowered}
}

func (a *HeuristicAnalyzer) Name() string { return a.analyzerName }

// Indicators returns a copy of the active lowercase indicators.
func (a *HeuristicAnalyzer) Indicators() []string {
	return append([]string(nil), a.indicators...)
}

// Evaluate returns zero or one detection for the decoded content. Every
// indicator that hits is listed on the single detection, in list order.
func (a *HeuristicAnalyzer) Evaluate(path, text string) []types.Detection {
	lowered := strings.ToLower(text)
	var hits []string
	for _, ind := range a.indicators {
		if strings.Contains(lowered, ind) {
			hits = append(hits, ind)
		}
	}
	if len(hits) == 0 {
		return nil
	}
	return []types.Detection{{
		Path: path,
		Kind: types.HeuristicKind{
			Description: HeuristicDescription,
			Indicators:  hits,
		},
		Severity: types.SeverityHeuristic,
	}}
}

func (a *HeuristicAnalyzer) Analyze(file types.FileInfo, content []byte, text string) (*types.Detection, error) {
	ds := a.Evaluate(file.Path, text)
	if len(ds) == 0 {
		return nil, nil
	}
	return &ds[0], nil
}
