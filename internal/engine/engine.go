package engine

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync/atomic"
	"time"
	"wib-shield/internal/analyzers/static"
	"wib-shield/internal/metrics"
	"wib-shield/internal/reporting"
	"wib-shield/internal/rules"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine 协调扫描过程
type Engine struct {
	config     *types.Config
	ruleSource rules.Source
	// extra signature-stage analyzers that run after the rule set, in order
	extraSignature []Analyzer
	heuristics     []Analyzer
	metrics        *metrics.Metrics
}

/**
 * @Description: 初始化检测引擎。规则集不在这里加载，而是在每次 Scan 时加载
 * @param cfg *types.Config: 配置
 * @param m *metrics.Metrics: 指标，可以为 nil
 * @return *Engine: 引擎
 * @return error: 可选分析器初始化失败时返回错误
 */
func NewEngine(cfg *types.Config, m *metrics.Metrics) (*Engine, error) {
	if cfg == nil {
		cfg = &types.Config{}
	}
	e := &Engine{
		config:     cfg,
		ruleSource: rules.Source{Path: cfg.DataPaths.Rules},
		heuristics: []Analyzer{static.NewHeuristicAnalyzer()},
		metrics:    m,
	}

	if path := cfg.DataPaths.YaraRules; path != "" {
		ya, err := static.NewYaraAnalyzer(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize analyzer 'yara': %w", err)
		}
		e.extraSignature = append(e.extraSignature, ya)
	}
	if path := cfg.DataPaths.HashBlocklist; path != "" {
		ha, err := static.NewHashAnalyzer(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize analyzer 'hash': %w", err)
		}
		e.extraSignature = append(e.extraSignature, ha)
	}
	return e, nil
}

// scanStats counts what happened to the enumerated files of one scan.
type scanStats struct {
	seen    int
	scanned atomic.Int64
	skipped atomic.Int64
}

/**
 * @Description: 扫描根路径，返回无序的检测结果集合。每次调用都会重新加载规则集
 * @param roots []string: 需要扫描的文件或目录
 * @param opts types.ScanOptions: 扫描选项
 * @return []types.Detection: 检测结果
 * @return error: 仅在规则集无法加载时返回
 */
func (e *Engine) Scan(roots []string, opts types.ScanOptions) ([]types.Detection, error) {
	rs, err := rules.Load(e.ruleSource)
	if err != nil {
		return nil, fmt.Errorf("load rule set: %w", err)
	}
	detections, _ := e.scanWith(rs, roots, nil, opts)
	return detections, nil
}

// ScanWithRules is Scan with a caller-provided rule set.
func (e *Engine) ScanWithRules(rs *rules.RuleSet, roots []string, opts types.ScanOptions) []types.Detection {
	detections, _ := e.scanWith(rs, roots, nil, opts)
	return detections
}

func (e *Engine) scanWith(rs *rules.RuleSet, roots, exclusions []string, opts types.ScanOptions) ([]types.Detection, *scanStats) {
	start := time.Now()
	defer func() { e.metrics.ObserveScan(time.Since(start)) }()

	if opts.MaxFileSizeBytes <= 0 {
		opts.MaxFileSizeBytes = types.DefaultMaxFileSize
	}

	stats := &scanStats{}
	var candidates []string
	for _, path := range findFiles(roots, exclusions) {
		stats.seen++
		if ShouldScan(path, opts) {
			candidates = append(candidates, path)
		}
	}
	if len(candidates) == 0 {
		logging.Debugf("no files to scan under %v", roots)
		return nil, stats
	}

	pipeline := e.pipeline(rs, opts)

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}

	// One slot per candidate, so workers never contend on the result set.
	results := make([]*types.Detection, len(candidates))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, path := range candidates {
		i, path := i, path
		g.Go(func() error {
			results[i] = e.scanFile(path, opts, pipeline, stats)
			return nil
		})
	}
	_ = g.Wait()

	detections := make([]types.Detection, 0, len(results))
	for _, d := range results {
		if d != nil {
			detections = append(detections, *d)
			e.metrics.Detection(d.Kind.Label())
		}
	}
	logging.Debugf("scan of %d candidate files finished in %s with %d detection(s)", len(candidates), time.Since(start), len(detections))
	return detections, stats
}

// pipeline is the ordered analyzer list for one scan: the rule set first, then
// the other signature analyzers, then heuristics when enabled.
func (e *Engine) pipeline(rs *rules.RuleSet, opts types.ScanOptions) []Analyzer {
	p := make([]Analyzer, 0, 1+len(e.extraSignature)+len(e.heuristics))
	p = append(p, static.NewSignatureAnalyzer(rs))
	p = append(p, e.extraSignature...)
	if opts.EnableHeuristics {
		p = append(p, e.heuristics...)
	}
	return p
}

/**
 * @Description: 处理单个文件。文件无法读取时返回 nil，不影响整个扫描
 * @param path string: 文件路径
 * @param opts types.ScanOptions: 扫描选项
 * @param pipeline []Analyzer: 分析器，按顺序执行，第一个命中的结果生效
 * @return *types.Detection: 检测结果
 */
func (e *Engine) scanFile(path string, opts types.ScanOptions, pipeline []Analyzer, stats *scanStats) *types.Detection {
	info, err := os.Lstat(path)
	if err != nil {
		e.skip(stats, metrics.SkipUnreadable, path, err)
		return nil
	}
	if !info.Mode().IsRegular() {
		e.skip(stats, metrics.SkipNotRegular, path, nil)
		return nil
	}
	if info.Size() > opts.MaxFileSizeBytes {
		e.skip(stats, metrics.SkipTooLarge, path, nil)
		return nil
	}

	content, err := readLimited(path, opts.MaxFileSizeBytes)
	if err != nil {
		e.skip(stats, metrics.SkipUnreadable, path, err)
		return nil
	}
	if int64(len(content)) > opts.MaxFileSizeBytes {
		// grew between stat and read
		e.skip(stats, metrics.SkipTooLarge, path, nil)
		return nil
	}
	stats.scanned.Add(1)
	e.metrics.FileScanned()

	file := types.FileInfo{Path: path, Size: int64(len(content)), ModTime: info.ModTime()}
	text := decodeText(content)

	for _, analyzer := range pipeline {
		d, err := analyzer.Analyze(file, content, text)
		if err != nil {
			logging.Debugf("analyzer '%s' failed on %s: %v", analyzer.Name(), path, err)
			continue
		}
		if d == nil {
			continue
		}
		d.Path = path
		d.FileType = sniffType(content)
		d.DetectedAt = time.Now()
		return d
	}
	return nil
}

func (e *Engine) skip(stats *scanStats, reason, path string, err error) {
	stats.skipped.Add(1)
	e.metrics.FileSkipped(reason)
	if err != nil {
		logging.Debugf("skipping %s (%s): %v", path, reason, err)
	}
}

// readLimited reads at most limit+1 bytes so a file that grew past the size
// guard is noticed without reading all of it.
func readLimited(path string, limit int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit+1))
}

// Task 定义需要扫描的内容
type Task struct {
	Paths        []string
	Exclusions   []string          // 需要排除的文件或目录
	Options      types.ScanOptions
	ReportPath   string            // 保存报告的路径 (来自 --output)
	OutputFormat string            // console or json; empty = config default
}

/**
 * @Description: 根据任务定义执行扫描并生成报告
 * @param task *Task: 任务
 * @return *types.ScanReport: 扫描报告
 * @return error: 规则集加载或报告生成失败
 */
func (e *Engine) Run(task *Task) (*types.ScanReport, error) {
	rs, err := rules.Load(e.ruleSource)
	if err != nil {
		return nil, fmt.Errorf("load rule set: %w", err)
	}
	logging.Infof("loaded %d signature rules from %s", rs.Len(), rs.Source())

	report := &types.ScanReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Roots:     task.Paths,
	}
	detections, stats := e.scanWith(rs, task.Paths, task.Exclusions, task.Options)
	report.Duration = time.Since(report.StartedAt)
	report.Detections = detections
	report.FilesSeen = stats.seen
	report.FilesScanned = int(stats.scanned.Load())
	report.FilesSkipped = int(stats.skipped.Load())
	logging.Infof("scan %s finished in %s: %d file(s) scanned, %d detection(s)", report.ID, report.Duration, report.FilesScanned, len(detections))

	return report, e.generateReport(report, task)
}

/**
 * @Description: 处理报告生成逻辑，默认终端输出
 * @param report *types.ScanReport: 扫描报告
 * @param task *Task: 任务
 * @return error: 错误
 */
func (e *Engine) generateReport(report *types.ScanReport, task *Task) error {
	format := task.OutputFormat
	if format == "" {
		format = e.config.Output.Format
	}
	reporter, err := reporting.ForFormat(format)
	if err != nil {
		return err
	}
	if err := reporter.Generate(report, task.ReportPath); err != nil {
		return fmt.Errorf("failed to generate %s report: %w", format, err)
	}
	return nil
}
