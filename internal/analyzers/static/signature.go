package static

import (
	"wib-shield/internal/rules"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"
)

/**
 * @Description: 签名规则分析器，按规则集顺序匹配，第一个命中的规则生效
 */
type SignatureAnalyzer struct {
	analyzerName string
	rules        *rules.RuleSet
}

// NewSignatureAnalyzer wraps a compiled rule set. The set is shared read-only
// by every file task of a scan.
func NewSignatureAnalyzer(rs *rules.RuleSet) *SignatureAnalyzer {
	return &SignatureAnalyzer{analyzerName: "signature", rules: rs}
}

func (a *SignatureAnalyzer) Name() string { return a.analyzerName }

/**
 * @Description: 分析文件内容是否命中签名规则
 * @param file types.FileInfo: 文件信息
 * @param content []byte: 原始内容，用于计算哈希
 * @param text string: 解码后的文本，用于匹配
 * @return *types.Detection: 命中时返回检测结果
 */
func (a *SignatureAnalyzer) Analyze(file types.FileInfo, content []byte, text string) (*types.Detection, error) {
	rule, ok := a.rules.Match(text)
	if !ok {
		return nil, nil
	}
	logging.Debugf("signature match for %s (rule: %s)", file.Path, rule.Name)
	return &types.Detection{
		Path:        file.Path,
		Kind:        types.SignatureKind{Name: rule.Name, Family: rule.Family},
		Severity:    types.SeveritySignature,
		ContentHash: ContentHash(content),
	}, nil
}
