package packstore

import (
	"crypto/sha1"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hgimport/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeOf(s string) types.ManifestNode { return types.ManifestNode(sha1.Sum([]byte(s))) }

func writePack(t *testing.T, path string, trees map[string]string) {
	t.Helper()
	w, err := Create(path)
	require.NoError(t, err)
	m := make(map[types.ManifestNode][]byte)
	for k, v := range trees {
		m[nodeOf(k)] = []byte(v)
	}
	require.NoError(t, w.AddAll(m))
	require.NoError(t, w.Close())
}

// failingSource 总是返回错误
type failingSource struct{}

func (failingSource) Get(types.ManifestNode) ([]byte, bool, error) {
	return nil, false, errors.New("corrupt pack")
}
func (failingSource) Name() string { return "failing" }
func (failingSource) Close() error { return nil }

func TestUnion_FirstHitWins(t *testing.T) {
	a := NewMemorySource("a")
	b := NewMemorySource("b")
	a.Add(nodeOf("shared"), []byte("from a"))
	b.Add(nodeOf("shared"), []byte("from b"))
	b.Add(nodeOf("only-b"), []byte("b only"))

	u := NewUnion(nil, a, b)
	assert.Equal(t, 2, u.Len())

	data, ok := u.Get(nodeOf("shared"))
	require.True(t, ok)
	assert.Equal(t, "from a", string(data))

	data, ok = u.Get(nodeOf("only-b"))
	require.True(t, ok)
	assert.Equal(t, "b only", string(data))

	_, ok = u.Get(nodeOf("missing"))
	assert.False(t, ok)
}

func TestUnion_SourceErrorIsMiss(t *testing.T) {
	b := NewMemorySource("b")
	b.Add(nodeOf("x"), []byte("x"))

	u := NewUnion(nil, failingSource{}, b)
	data, ok := u.Get(nodeOf("x"))
	require.True(t, ok)
	assert.Equal(t, "x", string(data))

	_, ok = NewUnion(nil, failingSource{}).Get(nodeOf("x"))
	assert.False(t, ok)
}

func TestUnion_Empty(t *testing.T) {
	u := NewUnion(nil)
	assert.Zero(t, u.Len())
	_, ok := u.Get(nodeOf("x"))
	assert.False(t, ok)

	var nilUnion *Union
	assert.Zero(t, nilUnion.Len())
	assert.NoError(t, nilUnion.Close())
}

func TestOpen_OrderAndFiltering(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()

	// 目录内按文件名排序：a- 先于 b-
	writePack(t, filepath.Join(dir1, "b-second"+PackExt), map[string]string{"n": "dir1/b", "only-b": "b"})
	writePack(t, filepath.Join(dir1, "a-first"+PackExt), map[string]string{"n": "dir1/a"})
	writePack(t, filepath.Join(dir2, "0"+PackExt), map[string]string{"n": "dir2", "late": "late"})
	// 扩展名不符的文件被忽略
	require.NoError(t, os.WriteFile(filepath.Join(dir1, "notes.txt"), []byte("ignored"), 0644))

	u, err := Open([]string{dir1, filepath.Join(dir1, "missing"), dir2}, nil)
	require.NoError(t, err)
	defer u.Close()

	assert.Equal(t, 3, u.Len())

	data, ok := u.Get(nodeOf("n"))
	require.True(t, ok)
	assert.Equal(t, "dir1/a", string(data))

	data, ok = u.Get(nodeOf("late"))
	require.True(t, ok)
	assert.Equal(t, "late", string(data))
}

func TestOpen_NoPacks(t *testing.T) {
	u, err := Open([]string{t.TempDir()}, nil)
	require.NoError(t, err)
	assert.Zero(t, u.Len())
}

func TestBoltSource_EmptyValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty"+PackExt)
	writePack(t, path, map[string]string{"empty-dir": ""})

	src, err := OpenBoltSource(path)
	require.NoError(t, err)
	defer src.Close()

	data, ok, err := src.Get(nodeOf("empty-dir"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, data)

	_, ok, err = src.Get(nodeOf("other"))
	require.NoError(t, err)
	assert.False(t, ok)
}
