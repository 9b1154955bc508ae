/*
 * @Description: known-bad SHA-256 blocklist analyzer
 */
package static

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"
)

type HashAnalyzer struct {
	analyzerName string
	badHashes    map[string]string // sha256 -> family
}

/**
 * @Description: 创建HashAnalyzer实例。文件格式为每行 "<sha256> [family]"，# 开头为注释
 * @param path string: 黑名单文件路径
 * @return *HashAnalyzer 哈希分析器实例
 * @return error 文件无法打开时返回错误
 */
func NewHashAnalyzer(path string) (*HashAnalyzer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open hash blocklist: %w", err)
	}
	defer file.Close()

	a, err := ParseHashBlocklist(file)
	if err != nil {
		return nil, fmt.Errorf("read hash blocklist %s: %w", path, err)
	}
	logging.Infof("loaded %d bad hashes from %s", len(a.badHashes), path)
	return a, nil
}

// ParseHashBlocklist reads a blocklist from r. Malformed lines are skipped.
func ParseHashBlocklist(r io.Reader) (*HashAnalyzer, error) {
	hashes := make(map[string]string)
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		hash := strings.ToLower(fields[0])
		if len(hash) != 64 {
			logging.Warnf("invalid hash format on line %d: %s", lineNum, fields[0])
			continue
		}
		family := "blocklist"
		if len(fields) > 1 {
			family = strings.Join(fields[1:], " ")
		}
		hashes[hash] = family
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &HashAnalyzer{analyzerName: "hash", badHashes: hashes}, nil
}

func (a *HashAnalyzer) Name() string { return a.analyzerName }

// Len is the number of blocklisted hashes.
func (a *HashAnalyzer) Len() int { return len(a.badHashes) }

func (a *HashAnalyzer) Analyze(file types.FileInfo, content []byte, text string) (*types.Detection, error) {
	if len(a.badHashes) == 0 {
		return nil, nil
	}
	hash := ContentHash(content)
	family, ok := a.badHashes[hash]
	if !ok {
		return nil, nil
	}
	logging.Debugf("hash match found for %s", file.Path)
	return &types.Detection{
		Path:        file.Path,
		Kind:        types.SignatureKind{Name: "sha256:" + hash[:12], Family: family},
		Severity:    types.SeveritySignature,
		ContentHash: hash,
	}, nil
}
