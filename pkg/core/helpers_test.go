package core

import (
	"crypto/sha1"
	"testing"

	"hgimport/pkg/types"

	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// 辅助工具
// -----------------------------------------------------------------------------

// mockHash 生成一个合法的 20 字节 Hash
func mockHash(input string) types.Hash {
	return types.Hash(sha1.Sum([]byte(input)))
}

// mustNewTree 创建 Tree，如果失败直接终止测试
func mustNewTree(t *testing.T, entries []TreeEntry, msgAndArgs ...any) *Tree {
	t.Helper()
	tree, err := NewTree(entries)
	require.NoError(t, err, msgAndArgs...)
	return tree
}
