package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"wib-shield/pkg/embedded"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"

	"gopkg.in/yaml.v3"
)

// DataDirEnv relocates the application data root (and with it the quarantine
// directory and the journal).
const DataDirEnv = "WIB_DATA_DIR"

const appDirName = "whereitbelongs"

/**
 * @Description: 加载配置文件。嵌入的默认配置先被解析，磁盘上的配置文件（若存在）覆盖其上，
 *               最后应用环境变量。
 * @param configPath string: 配置文件路径，空字符串表示只使用默认配置
 * @return *types.Config: 配置
 * @return error: 错误
 */
func LoadConfig(configPath string) (*types.Config, error) {
	cfg := GetDefaultConfig()

	if data, err := embedded.GetFileContent(embedded.ConfigFile); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse embedded config: %w", err)
		}
	} else {
		logging.Warnf("embedded config missing, using built-in defaults: %v", err)
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
			logging.Warnf("config file %s does not exist, using defaults", configPath)
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
			}
		}
	}

	applyEnv(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

/**
 * @Description: 获取默认配置
 * @return *types.Config: 配置
 */
func GetDefaultConfig() *types.Config {
	heuristics := true
	return &types.Config{
		DataPaths: types.DataPaths{
			Root: DefaultDataRoot(),
		},
		Scan: types.ScanConfig{
			EnableHeuristics: &heuristics,
			MaxFileSizeBytes: types.DefaultMaxFileSize,
		},
		Realtime: types.RealtimeConfig{
			PollInterval: 500 * time.Millisecond,
		},
		Output: types.Output{
			Format: "console",
		},
		Log: types.Log{
			Level: "info",
		},
	}
}

// DefaultDataRoot is <user data dir>/whereitbelongs, or the same under the
// temp dir when the user data dir cannot be determined.
func DefaultDataRoot() string {
	base, err := userDataDir(runtime.GOOS)
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, appDirName)
}

// userDataDir follows the XDG base directory layout on unix systems
// ($XDG_DATA_HOME, then ~/.local/share). Windows and macOS keep application
// data in the same place as configuration.
func userDataDir(goos string) (string, error) {
	switch goos {
	case "windows", "darwin", "ios", "plan9":
		return os.UserConfigDir()
	}
	if dir := os.Getenv("XDG_DATA_HOME"); filepath.IsAbs(dir) {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

func applyEnv(cfg *types.Config) {
	if dir := strings.TrimSpace(os.Getenv(DataDirEnv)); dir != "" {
		cfg.DataPaths.Root = dir
	}
	if cfg.DataPaths.Root == "" {
		cfg.DataPaths.Root = DefaultDataRoot()
	}
}

/**
 * @Description: 验证配置
 * @param cfg *types.Config: 配置
 * @return error: 错误
 */
func validateConfig(cfg *types.Config) error {
	switch strings.ToLower(cfg.Output.Format) {
	case "", "console", "json":
	default:
		return fmt.Errorf("unsupported output format %q", cfg.Output.Format)
	}
	if cfg.Scan.MaxFileSizeBytes < 0 {
		return fmt.Errorf("scan.max_file_size_bytes must not be negative")
	}
	if cfg.Performance.Concurrency < 0 {
		return fmt.Errorf("performance.concurrency must not be negative")
	}
	if cfg.Realtime.PollInterval <= 0 {
		cfg.Realtime.PollInterval = 500 * time.Millisecond
	}
	return nil
}
