//go:build yara

/*
 * @Description: yara匹配，需要 libyara 并使用 -tags yara 构建
 */
package static

import (
	"fmt"
	"os"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"

	"github.com/hillu/go-yara/v4"
)

// YaraAvailable reports whether this binary was built with YARA support.
const YaraAvailable = true

type YaraAnalyzer struct {
	analyzerName string
	rules        *yara.Rules
}

/**
 * @Description: 创建yara分析器
 * @param rulePath string: .yar 规则文件路径
 * @return *YaraAnalyzer yara分析器
 * @return error 错误
 */
func NewYaraAnalyzer(rulePath string) (*YaraAnalyzer, error) {
	compiler, err := yara.NewCompiler()
	if err != nil {
		return nil, fmt.Errorf("failed to create yara compiler: %w", err)
	}

	file, err := os.Open(rulePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open yara rule file %s: %w", rulePath, err)
	}
	defer file.Close()

	if err := compiler.AddFile(file, "wib"); err != nil {
		return nil, fmt.Errorf("failed to add yara rule file %s to compiler: %w", rulePath, err)
	}

	rules, err := compiler.GetRules()
	if err != nil {
		return nil, fmt.Errorf("failed to compile yara rules from %s: %w", rulePath, err)
	}
	logging.Infof("compiled %d yara rules from %s", len(rules.GetRules()), rulePath)
	return &YaraAnalyzer{analyzerName: "yara", rules: rules}, nil
}

func (a *YaraAnalyzer) Name() string { return a.analyzerName }

/**
 * @Description: 分析文件，是否匹配yara规则。命中时 family 取规则的 family 元数据，缺省为命名空间
 */
func (a *YaraAnalyzer) Analyze(file types.FileInfo, content []byte, text string) (*types.Detection, error) {
	if a.rules == nil {
		return nil, nil
	}

	scanner, err := yara.NewScanner(a.rules)
	if err != nil {
		return nil, fmt.Errorf("yara scanner creation failed: %w", err)
	}

	var matches yara.MatchRules
	if err := scanner.SetCallback(&matches).ScanMem(content); err != nil {
		return nil, fmt.Errorf("yara scan execution failed: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	match := matches[0]
	family := match.Namespace
	for _, m := range match.Metas {
		if m.Identifier == "family" {
			if s, ok := m.Value.(string); ok && s != "" {
				family = s
			}
		}
	}
	logging.Debugf("yara match found for %s (rule: %s)", file.Path, match.Rule)
	return &types.Detection{
		Path:        file.Path,
		Kind:        types.SignatureKind{Name: match.Rule, Family: family},
		Severity:    types.SeveritySignature,
		ContentHash: ContentHash(content),
	}, nil
}
