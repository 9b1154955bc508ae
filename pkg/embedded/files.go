/*
 * @Description: embedded default configuration and signature rule set
 */
package embedded

import (
	"embed"
	"io/fs"
)

const (
	ConfigFile     = "config.yaml"
	SignaturesFile = "data/signatures.yaml"
)

//go:embed config.yaml
//go:embed data/signatures.yaml
var EmbeddedFiles embed.FS

/**
 * @Description: 获取嵌入文件的内容
 * @param path string: 文件路径
 * @return []byte: 文件内容
 * @return error: 错误
 */
func GetFileContent(path string) ([]byte, error) {
	return EmbeddedFiles.ReadFile(path)
}

// GetFS exposes the embedded files as an fs.FS.
func GetFS() fs.FS {
	return EmbeddedFiles
}
