/*
 * @Description: 主程序入口
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
	"wib-shield/internal/config"
	"wib-shield/internal/engine"
	"wib-shield/internal/journal"
	"wib-shield/internal/metrics"
	"wib-shield/internal/quarantine"
	"wib-shield/internal/realtime"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	version = "0.3.0"
	appName = "wib"

	// 全局参数
	configPath string
	logLevel   string
	cfg        *types.Config

	// scan 参数
	scanExts          []string
	scanExcludes      []string
	scanNoHeuristics  bool
	scanMaxSize       int64
	scanFormat        string
	scanOutput        string
	scanQuarantine    bool
	scanFailOnDetects bool

	// watch 参数
	watchMetricsAddr string
	watchQuarantine  bool

	colorRed    = color.New(color.FgRed, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorCyan   = color.New(color.FgCyan)
)

// errDetections makes the process exit non-zero when --fail-on-detection is set.
var errDetections = errors.New("threats detected")

func main() {
	defer logging.Sync()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errDetections) {
			colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Detect, quarantine and clean up remote-access trojans",
	Long: `wib scans files for known RAT signatures and suspicious script behavior,
keeps offending files in a content-addressed quarantine vault, and can watch
directories to rescan files as soon as they change.

Examples:
  wib scan ~/Downloads --ext exe,dll,ps1
  wib scan /srv --format json --output report.json
  wib watch ~/Downloads --metrics-addr :9109
  wib quarantine list
  wib quarantine restore <vault-file> ~/restored.exe`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		opts := logging.Options{Level: cfg.Log.Level, File: cfg.Log.File, JSON: cfg.Log.JSON}
		if logLevel != "" {
			opts.Level = logLevel
		}
		return logging.Setup(opts)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan <path>...",
	Short: "Scan files and directories once",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	opts := cfg.ScanOptions()
	if cmd.Flags().Changed("ext") {
		opts.IncludeExtensions = types.ExtensionSet(scanExts)
	}
	if scanNoHeuristics {
		opts.EnableHeuristics = false
	}
	if scanMaxSize > 0 {
		opts.MaxFileSizeBytes = scanMaxSize
	}

	scanEngine, err := engine.NewEngine(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	report, err := scanEngine.Run(&engine.Task{
		Paths:        args,
		Exclusions:   scanExcludes,
		Options:      opts,
		ReportPath:   scanOutput,
		OutputFormat: scanFormat,
	})
	if err != nil {
		return err
	}

	if scanQuarantine && len(report.Detections) > 0 {
		v := openVault(nil)
		defer v.Close()
		if err := v.isolateAll(cmd.Context(), report.Detections); err != nil {
			return err
		}
	}
	if scanFailOnDetects && len(report.Detections) > 0 {
		return errDetections
	}
	return nil
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]...",
	Short: "Rescan files as soon as they are created or modified",
	Long: `Watch directories recursively and rescan every file that is created or
written. Paths default to realtime.paths from the configuration. With
--metrics-addr the Prometheus metrics are served on /metrics.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	paths := args
	if len(paths) == 0 {
		paths = cfg.Realtime.Paths
	}

	m := metrics.New()
	scanEngine, err := engine.NewEngine(cfg, m)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	var v *vault
	if watchQuarantine {
		v = openVault(m)
		defer v.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchMetricsAddr != "" {
		srv := serveMetrics(watchMetricsAddr, m)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sink := make(chan types.Detection, 64)
	w, err := realtime.Start(scanEngine,
		types.RealtimeOptions{Paths: paths, PollInterval: cfg.Realtime.PollInterval},
		sink,
		realtime.WithMetrics(m),
		realtime.WithScanOptions(cfg.ScanOptions()),
	)
	if err != nil {
		return err
	}
	defer w.Stop()

	colorCyan.Printf("Watching %v (Ctrl+C to stop)\n", paths)
	var failed int
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			colorGreen.Println("Watcher stopped.")
			if failed > 0 {
				return fmt.Errorf("failed to quarantine %d detected files while watching", failed)
			}
			return nil
		case d := <-sink:
			printDetection(d)
			if v == nil || v.inVault(d.Path) {
				continue
			}
			if err := v.isolate(ctx, d); err != nil {
				failed++
			}
		}
	}
}

func serveMetrics(addr string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("metrics server on %s failed: %v", addr, err)
		}
	}()
	logging.Infof("serving metrics on %s/metrics", addr)
	return srv
}

func printDetection(d types.Detection) {
	c := colorYellow
	if d.Severity >= types.SeveritySignature {
		c = colorRed
	}
	c.Printf("[%s] %s\n", d.Severity, d.Path)
	fmt.Printf("  -> %s: %s\n", d.Kind.Label(), d.Kind.Summary())
}

// vault pairs the quarantine store with its journal. The journal is optional:
// if it cannot be opened, isolation still works without bookkeeping.
type vault struct {
	store   *quarantine.Store
	journal *journal.Journal
}

func openVault(m *metrics.Metrics) *vault {
	v := &vault{store: quarantine.New(cfg.QuarantineDir()).WithMetrics(m)}
	j, err := journal.Open(cfg.JournalPath())
	if err != nil {
		logging.Warnf("quarantine journal unavailable: %v", err)
		return v
	}
	v.journal = j
	return v
}

func (v *vault) Close() {
	if v.journal != nil {
		_ = v.journal.Close()
	}
}

func (v *vault) isolate(ctx context.Context, d types.Detection) error {
	qpath, err := v.store.Isolate(d.Path)
	if err != nil {
		colorRed.Printf("  !! could not quarantine %s: %v\n", d.Path, err)
		return err
	}
	colorGreen.Printf("  -> quarantined as %s\n", qpath)
	if v.journal == nil {
		return nil
	}
	if _, err := v.journal.RecordIsolation(ctx, qpath, d); err != nil {
		logging.Warnf("failed to journal %s: %v", qpath, err)
	}
	return nil
}

// isolateAll quarantines every detection and reports how many failed.
func (v *vault) isolateAll(ctx context.Context, detections []types.Detection) error {
	var failed int
	for _, d := range detections {
		if err := v.isolate(ctx, d); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to quarantine %d of %d detected files", failed, len(detections))
	}
	return nil
}

// inVault reports whether path is an entry of the vault itself, which the
// watcher sees being written whenever it quarantines something.
func (v *vault) inVault(path string) bool {
	return filepath.Dir(absPath(path)) == absPath(v.store.Dir())
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error). Overrides config file.")

	scanCmd.Flags().StringSliceVar(&scanExts, "ext", nil, "Only scan files with these extensions (e.g. exe,dll,ps1)")
	scanCmd.Flags().StringSliceVar(&scanExcludes, "exclude", nil, "Files or directories to exclude")
	scanCmd.Flags().BoolVar(&scanNoHeuristics, "no-heuristics", false, "Disable heuristic indicators")
	scanCmd.Flags().Int64Var(&scanMaxSize, "max-size", 0, "Skip files larger than this many bytes (default from config)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (console, json). Overrides config file.")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Path to save report file (json format)")
	scanCmd.Flags().BoolVarP(&scanQuarantine, "quarantine", "q", false, "Move every detected file into the quarantine vault")
	scanCmd.Flags().BoolVar(&scanFailOnDetects, "fail-on-detection", false, "Exit with status 1 when anything is detected")

	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9109)")
	watchCmd.Flags().BoolVarP(&watchQuarantine, "quarantine", "q", false, "Quarantine detected files as they appear")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(quarantineCmd)
	rootCmd.AddCommand(recoverCmd)
}
