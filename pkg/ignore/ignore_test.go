package ignore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Defaults(t *testing.T) {
	// 1. 空目录 (没有 .syncignore)
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/watch", 0755))

	matcher, err := NewMatcher(fs, "/watch")
	require.NoError(t, err)

	// 2. 验证默认规则
	tests := []struct {
		path     string
		shouldIg bool
	}{
		{".catsync", true},
		{".catsync/state", true}, // 子路径也应该被忽略
		{".git", true},
		{".syncignore", true},
		{".DS_Store", true},
		{"notes/.draft.txt.swp", true},
		{"report.txt~", true},
		{"main.go", false},
		{"data/model.bin", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_WithUserFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	ignoreContent := `
# 这是注释
*.log
temp
!important.log
`
	require.NoError(t, afero.WriteFile(fs, "/watch/.syncignore", []byte(ignoreContent), 0644))

	matcher, err := NewMatcher(fs, "/watch")
	require.NoError(t, err)

	tests := []struct {
		path     string
		shouldIg bool
	}{
		// --- 默认规则依然要生效 ---
		{".catsync", true},

		// --- 用户规则生效 ---
		{"app.log", true},
		{"logs/error.log", true},
		{"temp", true},
		{"temp/file", true},

		// --- 正常文件 ---
		{"main.go", false},

		// --- 负向规则 ---
		{"important.log", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.shouldIg, matcher.Matches(tt.path), "Path: %s", tt.path)
		})
	}
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Matches("anything"))
}
