package prefetch

import (
	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 判断一个仓库路径是否需要预取
// 规则使用 gitignore 语法，"匹配" 表示需要预取
type Matcher struct {
	m *gitignore.GitIgnore
}

// NewMatcher 编译一组规则
func NewMatcher(patterns ...string) *Matcher {
	return &Matcher{m: gitignore.CompileIgnoreLines(patterns...)}
}

// NewMatcherFromFile 编译规则文件，extra 中的规则追加在文件之后
func NewMatcherFromFile(path string, extra ...string) (*Matcher, error) {
	m, err := gitignore.CompileIgnoreFileAndLines(path, extra...)
	if err != nil {
		return nil, err
	}
	return &Matcher{m: m}, nil
}

// Matches 检查相对于仓库根目录的路径 (例如 "data/model.bin")
func (m *Matcher) Matches(path string) bool {
	if m == nil || m.m == nil {
		return false
	}
	return m.m.MatchesPath(path)
}
