/*
 * @Description: content-addressed quarantine vault
 */
package quarantine

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"wib-shield/internal/metrics"
	"wib-shield/pkg/logging"
)

// Ext is the suffix of every vault entry.
const Ext = ".qf"

const (
	dirPerm  = 0o700
	filePerm = 0o600
)

// Error is returned by every store operation that fails. Op is one of
// "isolate", "restore", "list" or "delete".
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("quarantine %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotInVault is returned when a path handed to Delete lies outside the vault.
var ErrNotInVault = errors.New("path is not a quarantine entry")

// Store is a directory of files named by the SHA-256 of their content. It keeps
// no index; who quarantined what and why is the caller's business.
type Store struct {
	dir     string
	metrics *metrics.Metrics
}

/**
 * @Description: 创建隔离区。目录在第一次 Isolate 时才创建
 * @param dir string: 隔离区目录
 * @return *Store: 隔离区
 */
func New(dir string) *Store {
	return &Store{dir: dir}
}

// WithMetrics records every operation on m.
func (s *Store) WithMetrics(m *metrics.Metrics) *Store {
	s.metrics = m
	return s
}

// Dir is the vault directory.
func (s *Store) Dir() string { return s.dir }

// PathFor is where content with the given hex digest lives in the vault.
func (s *Store) PathFor(hash string) string {
	return filepath.Join(s.dir, strings.ToLower(hash)+Ext)
}

// Contains reports whether content with the given digest is already isolated.
func (s *Store) Contains(hash string) bool {
	info, err := os.Stat(s.PathFor(hash))
	return err == nil && info.Mode().IsRegular()
}

/**
 * @Description: 隔离文件：读取全部内容，计算 sha256，写入 <dir>/<hash>.qf，然后尽量删除源文件。
 * 相同内容重复隔离得到同一路径。源文件删除失败只记录警告
 * @param path string: 源文件路径
 * @return string: 隔离区中的路径
 * @return error: 源文件无法读取或目标无法写入
 */
func (s *Store) Isolate(path string) (qpath string, err error) {
	defer func() { s.metrics.QuarantineOp("isolate", err) }()

	content, err := os.ReadFile(path)
	if err != nil {
		return "", &Error{Op: "isolate", Path: path, Err: err}
	}
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if err := os.MkdirAll(s.dir, dirPerm); err != nil {
		return "", &Error{Op: "isolate", Path: s.dir, Err: err}
	}
	qpath = s.PathFor(hash)
	if samePath(path, qpath) {
		// already the vault entry for its content
		return qpath, nil
	}
	if err := os.WriteFile(qpath, content, filePerm); err != nil {
		return "", &Error{Op: "isolate", Path: qpath, Err: err}
	}

	if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		logging.Warnf("quarantined %s but could not remove the original: %v", path, rmErr)
	}
	logging.Infof("quarantined %s -> %s", path, qpath)
	return qpath, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

/**
 * @Description: 恢复文件：把隔离内容原样写到目标路径（创建或覆盖）。隔离条目保留
 * @param qpath string: 隔离区中的路径
 * @param dest string: 目标路径
 * @return error: 错误
 */
func (s *Store) Restore(qpath, dest string) (err error) {
	defer func() { s.metrics.QuarantineOp("restore", err) }()

	content, err := os.ReadFile(qpath)
	if err != nil {
		return &Error{Op: "restore", Path: qpath, Err: err}
	}
	if dir := filepath.Dir(dest); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &Error{Op: "restore", Path: dest, Err: err}
		}
	}
	if err := os.WriteFile(dest, content, 0o644); err != nil {
		return &Error{Op: "restore", Path: dest, Err: err}
	}
	logging.Infof("restored %s -> %s", qpath, dest)
	return nil
}

/**
 * @Description: 列出隔离区中的文件（不含子目录）。目录不存在时返回空列表
 * @return []string: 文件路径，按名称排序
 * @return error: 目录无法读取
 */
func (s *Store) List() (paths []string, err error) {
	defer func() { s.metrics.QuarantineOp("list", err) }()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, &Error{Op: "list", Path: s.dir, Err: err}
	}
	paths = make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			paths = append(paths, filepath.Join(s.dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Delete removes one entry from the vault. Paths outside the vault are refused.
func (s *Store) Delete(qpath string) (err error) {
	defer func() { s.metrics.QuarantineOp("delete", err) }()

	if filepath.Clean(filepath.Dir(qpath)) != filepath.Clean(s.dir) {
		return &Error{Op: "delete", Path: qpath, Err: ErrNotInVault}
	}
	if err := os.Remove(qpath); err != nil {
		return &Error{Op: "delete", Path: qpath, Err: err}
	}
	logging.Infof("deleted quarantine entry %s", qpath)
	return nil
}

// HashOf extracts the content digest from a vault path, or "" if the name is
// not of the form <sha256>.qf.
func HashOf(qpath string) string {
	name := filepath.Base(qpath)
	if !strings.HasSuffix(name, Ext) {
		return ""
	}
	hash := strings.TrimSuffix(name, Ext)
	if len(hash) != sha256.Size*2 {
		return ""
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return ""
	}
	return hash
}
