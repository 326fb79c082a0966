package manifest

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"hgimport/pkg/core"
	"hgimport/pkg/storage/memory"
	"hgimport/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(s string) types.Hash { return types.Hash(sha1.Sum([]byte(s))) }

func file(path, content string) Entry {
	return Entry{Path: types.RelativePath(path), Node: hashOf(content), Mode: core.ModeRegular}
}

func mustTree(t *testing.T, entries ...core.TreeEntry) *core.Tree {
	t.Helper()
	tree, err := core.NewTree(entries)
	require.NoError(t, err)
	return tree
}

// importAll 把记录依次送入一个新的 Importer 并提交
func importAll(t *testing.T, store *memory.Store, entries []Entry) (types.Hash, error) {
	t.Helper()
	batch := store.BeginWriteBatch()
	im := NewImporter(batch)
	for _, e := range entries {
		if err := im.Add(e); err != nil {
			batch.Discard()
			return types.ZeroHash, err
		}
	}
	root, err := im.Finish()
	if err != nil {
		batch.Discard()
		return types.ZeroHash, err
	}
	require.NoError(t, batch.Commit(context.Background()))
	return root, nil
}

// -----------------------------------------------------------------------------
// 1. 解析
// -----------------------------------------------------------------------------

func TestParser_RoundTrip(t *testing.T) {
	entries := []Entry{
		file("README", "readme"),
		{Path: "bin/run", Node: hashOf("run"), Mode: core.ModeExecutable},
		{Path: "lib/current", Node: hashOf("link"), Mode: core.ModeSymlink},
		// 路径中可以包含制表符
		file("odd\tname", "odd"),
	}
	data := Encode(entries)

	// 每次只读一个字节，模拟记录跨越块边界
	p := NewParser(iotest.OneByteReader(bytes.NewReader(data)))
	var got []Entry
	for {
		e, err := p.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, e)
	}
	assert.Equal(t, entries, got)
}

func TestEncode_WireLayout(t *testing.T) {
	node := hashOf("readme")
	tests := []struct {
		name string
		mode core.EntryMode
		want string
	}{
		{"Regular", core.ModeRegular, "\t\tREADME\x00"},
		{"Executable", core.ModeExecutable, "\tx\tREADME\x00"},
		{"Symlink", core.ModeSymlink, "\tl\tREADME\x00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Entry{Path: "README", Node: node, Mode: tt.mode}
			data := Encode([]Entry{e})
			assert.Equal(t, string(node[:])+tt.want, string(data))

			got, err := NewParser(bytes.NewReader(data)).Next()
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestParser_Malformed(t *testing.T) {
	node := string(make([]byte, 20))
	tests := []struct {
		name string
		data string
	}{
		{"Short node", "abc"},
		{"Missing tab", node + "x"},
		{"Unknown flag", node + "\tq\tpath\x00"},
		{"Directory flag", node + "\tt\tpath\x00"},
		{"Flag without tab", node + "\txpath\x00"},
		{"Unterminated path", node + "\t\tpath"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(strings.NewReader(tt.data)).Next()
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

// -----------------------------------------------------------------------------
// 2. 目录累积
// -----------------------------------------------------------------------------

func TestImporter_Scenario(t *testing.T) {
	store := memory.New()
	h1, h2, h3 := hashOf("H1"), hashOf("H2"), hashOf("H3")

	root, err := importAll(t, store, []Entry{
		{Path: "a/x", Node: h1, Mode: core.ModeRegular},
		{Path: "a/y", Node: h2, Mode: core.ModeRegular},
		{Path: "b", Node: h3, Mode: core.ModeRegular},
	})
	require.NoError(t, err)

	ta := mustTree(t,
		core.NewTreeEntry("x", h1, core.ModeRegular),
		core.NewTreeEntry("y", h2, core.ModeRegular),
	)
	troot := mustTree(t,
		core.NewTreeEntry("a", ta.ID(), core.ModeDir),
		core.NewTreeEntry("b", h3, core.ModeRegular),
	)
	assert.Equal(t, troot.ID(), root)

	// 两棵树都已写入对象库
	data, err := store.Get(context.Background(), ta.ID())
	require.NoError(t, err)
	assert.Equal(t, ta.Bytes(), data)
	assert.Equal(t, 2, store.Len())
}

func TestImporter_EmptyManifest(t *testing.T) {
	store := memory.New()
	root, err := importAll(t, store, nil)
	require.NoError(t, err)
	assert.Equal(t, mustTree(t).ID(), root)
}

func TestImporter_DeepNesting(t *testing.T) {
	store := memory.New()
	root, err := importAll(t, store, []Entry{
		file("a/b/c/d", "d"),
		file("a/b/e", "e"),
		file("a/f/g", "g"),
		file("h", "h"),
	})
	require.NoError(t, err)

	tc := mustTree(t, core.NewTreeEntry("d", hashOf("d"), core.ModeRegular))
	tb := mustTree(t,
		core.NewTreeEntry("c", tc.ID(), core.ModeDir),
		core.NewTreeEntry("e", hashOf("e"), core.ModeRegular),
	)
	tf := mustTree(t, core.NewTreeEntry("g", hashOf("g"), core.ModeRegular))
	ta := mustTree(t,
		core.NewTreeEntry("b", tb.ID(), core.ModeDir),
		core.NewTreeEntry("f", tf.ID(), core.ModeDir),
	)
	troot := mustTree(t,
		core.NewTreeEntry("a", ta.ID(), core.ModeDir),
		core.NewTreeEntry("h", hashOf("h"), core.ModeRegular),
	)
	assert.Equal(t, troot.ID(), root)
}

func TestImporter_OutOfOrder(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"Directory reopened", []Entry{file("a/x", "1"), file("b", "2"), file("a/y", "3")}},
		{"Descending", []Entry{file("b", "1"), file("a", "2")}},
		{"Duplicate path", []Entry{file("a", "1"), file("a", "2")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			_, err := importAll(t, store, tt.entries)
			assert.ErrorIs(t, err, ErrManifestOrder)
			// 批次被丢弃，对象库保持为空
			assert.Zero(t, store.Len())
		})
	}
}

func TestImporter_InvalidPath(t *testing.T) {
	for _, p := range []string{"", "/abs", "a//b", "a/../b", "./a", "a/"} {
		t.Run(fmt.Sprintf("%q", p), func(t *testing.T) {
			im := NewImporter(memory.New().BeginWriteBatch())
			err := im.Add(file(p, "x"))
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestImporter_FileAndDirectoryCollide(t *testing.T) {
	store := memory.New()
	_, err := importAll(t, store, []Entry{file("a", "1"), file("a/b", "2")})
	assert.ErrorIs(t, err, core.ErrDuplicateEntry)
	assert.Zero(t, store.Len())
}

func TestImporter_Observers(t *testing.T) {
	im := NewImporter(memory.New().BeginWriteBatch())
	var files []types.RelativePath
	var dirs []types.RelativePath
	im.OnFile = func(e Entry) { files = append(files, e.Path) }
	im.OnTree = func(p types.RelativePath, _ types.Hash) { dirs = append(dirs, p) }

	require.NoError(t, im.Add(file("a/x", "1")))
	require.NoError(t, im.Add(file("b/y", "2")))
	_, err := im.Finish()
	require.NoError(t, err)

	assert.Equal(t, []types.RelativePath{"a/x", "b/y"}, files)
	// 子目录先于父目录完成
	assert.Equal(t, []types.RelativePath{"a", "b", ""}, dirs)

	nfiles, ntrees := im.Stats()
	assert.Equal(t, 2, nfiles)
	assert.Equal(t, 3, ntrees)

	_, err = im.Finish()
	assert.Error(t, err)
}

// 随机生成的文件集合经过编码、解析、累积之后，得到的根哈希与直接构造的一致
func TestImport_MatchesDirectConstruction(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	names := []string{"a", "b", "c.txt", "d-e", "f.go", "g0"}

	for round := 0; round < 20; round++ {
		files := map[string]string{}
		for i := 0; i < 30; i++ {
			depth := rng.IntN(4) + 1
			var parts []string
			for d := 0; d < depth; d++ {
				parts = append(parts, names[rng.IntN(len(names))])
			}
			files[strings.Join(parts, "/")] = fmt.Sprintf("content-%d-%d", round, i)
		}
		// 删除与目录同名的文件，保证集合合法
		for p := range files {
			for q := range files {
				if strings.HasPrefix(q, p+"/") {
					delete(files, p)
					break
				}
			}
		}

		paths := make([]string, 0, len(files))
		for p := range files {
			paths = append(paths, p)
		}
		slices.Sort(paths)
		var entries []Entry
		for _, p := range paths {
			entries = append(entries, file(p, files[p]))
		}

		store := memory.New()
		batch := store.BeginWriteBatch()
		root, err := Import(bytes.NewReader(Encode(entries)), NewImporter(batch))
		require.NoError(t, err)

		assert.Equal(t, buildDirect(t, files, ""), root, "round %d", round)
	}
}

// buildDirect 递归地直接构造目录树
func buildDirect(t *testing.T, files map[string]string, dir string) types.Hash {
	children := map[string]bool{}
	var entries []core.TreeEntry
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}
	for p, content := range files {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		name, _, isDir := strings.Cut(rest, "/")
		if !isDir {
			entries = append(entries, core.NewTreeEntry(name, hashOf(content), core.ModeRegular))
			continue
		}
		if !children[name] {
			children[name] = true
			entries = append(entries, core.NewTreeEntry(name, buildDirect(t, files, prefix+name), core.ModeDir))
		}
	}
	return mustTree(t, entries...).ID()
}

func TestImport_ParseErrorPropagates(t *testing.T) {
	data := Encode([]Entry{file("a", "1")})
	_, err := Import(bytes.NewReader(data[:len(data)-1]), NewImporter(memory.New().BeginWriteBatch()))
	assert.True(t, errors.Is(err, ErrMalformed))
}
