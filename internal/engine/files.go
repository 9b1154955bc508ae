package engine

import (
	"io/fs"
	"path/filepath"
	"wib-shield/pkg/logging"
	"wib-shield/pkg/types"
)

/**
 * @Description: 判断文件是否需要扫描。未配置扩展名过滤时全部扫描；配置后仅扫描扩展名在集合中的文件，
 *               无扩展名的文件一律排除
 * @param path string: 文件路径
 * @param opts types.ScanOptions: 扫描选项
 * @return bool: 是否扫描
 */
func ShouldScan(path string, opts types.ScanOptions) bool {
	if opts.IncludeExtensions == nil {
		return true
	}
	ext := types.FileExtension(path)
	if ext == "" {
		return false
	}
	_, ok := opts.IncludeExtensions[ext]
	return ok
}

/**
 * @Description: 遍历所有根路径，收集普通文件。不跟随符号链接，目录、符号链接和特殊文件都被跳过；
 *               遍历中单个条目的错误只记录日志
 * @param roots []string: 需要扫描的文件或目录
 * @param exclusions []string: 需要排除的文件或目录，排除目录时跳过整个子树
 * @return []string: 去重后的普通文件
 */
func findFiles(roots []string, exclusions []string) []string {
	var files []string
	seen := make(map[string]bool)
	excluded := make(map[string]bool, len(exclusions))
	for _, ex := range exclusions {
		excluded[absClean(ex)] = true
	}

	for _, root := range roots {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logging.Debugf("error accessing path %s during walk: %v", path, err)
				return nil
			}
			key := absClean(path)
			if excluded[key] {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || seen[key] {
				return nil
			}
			seen[key] = true
			files = append(files, path)
			return nil
		})
		if walkErr != nil {
			logging.Debugf("error walking %s: %v", root, walkErr)
		}
	}
	return files
}

func absClean(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
