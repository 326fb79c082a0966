package disk

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"hgimport/pkg/storage"
	"hgimport/pkg/storage/storagetest"
	"hgimport/pkg/types"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskAdapter_MemFs(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := NewAdapterFs(afero.NewMemMapFs(), "/objects")
		require.NoError(t, err)
		return s
	})
}

func TestDiskAdapter_OsFs(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := NewAdapter(t.TempDir())
		require.NoError(t, err)
		return s
	})
}

func TestDiskAdapter_Sharding(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewAdapter(tmpDir)
	require.NoError(t, err)

	hash, err := types.ParseHash("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c")
	require.NoError(t, err)

	b := store.BeginWriteBatch()
	b.Put(hash, []byte("hello world"))
	require.NoError(t, b.Commit(context.Background()))

	// 路径应该是 tmpDir/2c/f24dba...
	expectedPath := filepath.Join(tmpDir, "2c", "f24dba5fb0a30e26e83b2ac5b9e29e1b161e5c")
	content, err := os.ReadFile(expectedPath)
	require.NoError(t, err, "文件应该存在于 Sharding 目录中")
	assert.Equal(t, []byte("hello world"), content)

	// 不应残留临时文件
	entries, err := os.ReadDir(filepath.Join(tmpDir, "2c"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
