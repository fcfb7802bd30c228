package ignore

import (
	"io"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// FileName 是用户自定义忽略规则所在的文件，位于被监听目录的根
const FileName = ".syncignore"

// 系统级默认忽略规则，强制生效
var defaultRules = []string{
	// --- 元数据与版本控制 ---
	".catsync",
	".git",
	FileName,

	// --- 安全与配置 ---
	".env",

	// --- 编辑器临时文件 ---
	// 这些文件在保存过程中频繁出现又马上消失，同步它们没有意义
	"*.swp",
	"*~",
	".#*",

	// --- 常见垃圾文件 ---
	".DS_Store",
	"Thumbs.db",
}

// Matcher 判断一个本地文件是否应该被同步忽略
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 读取 root 下的 .syncignore (如果存在) 并与默认规则合并编译
func NewMatcher(fs afero.Fs, root string) (*Matcher, error) {
	lines := append([]string(nil), defaultRules...)

	f, err := fs.Open(filepath.Join(root, FileName))
	if err == nil {
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		lines = append(lines, strings.Split(string(data), "\n")...)
	}

	return &Matcher{ignorer: gitignore.CompileIgnoreLines(lines...)}, nil
}

// Matches 检查给定的路径是否匹配忽略规则
// path 是相对于监听根目录的路径 (例如 "data/model.bin")，true 表示跳过
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(filepath.ToSlash(path))
}
