/*
 * @Description: signature rule set loading and compilation
 */
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"wib-shield/pkg/embedded"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRuleSet is returned when a rule document cannot be read or parsed.
// Individual rules with bad patterns are not errors; they are dropped.
var ErrInvalidRuleSet = errors.New("invalid rule set")

// Source names where a rule document comes from. An empty Path means the
// embedded default rule set.
type Source struct {
	Path string
}

// Embedded is the rule set bundled with the binary.
var Embedded = Source{}

func (s Source) String() string {
	if s.Path == "" {
		return "embedded:" + embedded.SignaturesFile
	}
	return s.Path
}

type ruleDocument struct {
	Signatures []types.Rule `yaml:"signatures"`
}

type compiledRule struct {
	rule types.Rule
	re   *regexp.Regexp
}

// RuleSet is an ordered, immutable list of compiled rules. It is safe for
// concurrent use by any number of scan goroutines.
type RuleSet struct {
	source string
	rules  []compiledRule
}

/**
 * @Description: 从数据源加载并编译规则集
 * @param src Source: 规则来源
 * @return *RuleSet: 编译后的规则集
 * @return error: 文档无法读取或解析时返回 ErrInvalidRuleSet
 */
func Load(src Source) (*RuleSet, error) {
	var (
		data []byte
		err  error
	)
	if src.Path == "" {
		data, err = embedded.GetFileContent(embedded.SignaturesFile)
	} else {
		data, err = os.ReadFile(src.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidRuleSet, src, err)
	}
	rs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src, err)
	}
	rs.source = src.String()
	return rs, nil
}

// Parse decodes a YAML or JSON rule document and compiles it.
func Parse(data []byte) (*RuleSet, error) {
	var doc ruleDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRuleSet, err)
	}
	return Compile(doc.Signatures), nil
}

// Compile builds a RuleSet from rules in precedence order. Rules whose pattern
// does not compile, or is empty, are dropped.
func Compile(list []types.Rule) *RuleSet {
	rs := &RuleSet{rules: make([]compiledRule, 0, len(list))}
	var dropped []string
	for _, r := range list {
		if strings.TrimSpace(r.Pattern) == "" {
			dropped = append(dropped, r.Name+": empty pattern")
			continue
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			dropped = append(dropped, fmt.Sprintf("%s: %v", r.Name, err))
			continue
		}
		rs.rules = append(rs.rules, compiledRule{rule: r, re: re})
	}
	if len(dropped) > 0 {
		logging.Warnf("dropped %d signature rule(s) that failed to compile: %s", len(dropped), strings.Join(dropped, "; "))
	}
	return rs
}

// Match returns the first rule, in set order, whose pattern matches text.
func (rs *RuleSet) Match(text string) (types.Rule, bool) {
	if rs == nil {
		return types.Rule{}, false
	}
	for _, cr := range rs.rules {
		if cr.re.MatchString(text) {
			return cr.rule, true
		}
	}
	return types.Rule{}, false
}

// Len is the number of active (compiled) rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Rules returns a copy of the active rules in precedence order.
func (rs *RuleSet) Rules() []types.Rule {
	if rs == nil {
		return nil
	}
	out := make([]types.Rule, len(rs.rules))
	for i, cr := range rs.rules {
		out[i] = cr.rule
	}
	return out
}

// Source describes where the set was loaded from.
func (rs *RuleSet) Source() string {
	if rs == nil {
		return ""
	}
	return rs.source
}
