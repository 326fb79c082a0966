package meta

import (
	"context"
	"crypto/sha1"
	"fmt"
	"testing"
	"time"

	"hgimport/pkg/core"
	"hgimport/pkg/helper/helpertest"
	"hgimport/pkg/importer"
	"hgimport/pkg/packstore"
	"hgimport/pkg/storage/memory"
	"hgimport/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestRepo 构建隔离的测试环境
func setupTestRepo(t *testing.T) *Repository {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	metaDB := NewWithConn(db)
	require.NoError(t, metaDB.Migrate())
	t.Cleanup(func() { _ = metaDB.Close() })

	return NewRepository(metaDB)
}

func mockHash(input string) types.Hash {
	return types.Hash(sha1.Sum([]byte(input)))
}

func mockNode(input string) types.ManifestNode {
	return types.ManifestNode(sha1.Sum([]byte("node:" + input)))
}

// -----------------------------------------------------------------------------
// 测试用例
// -----------------------------------------------------------------------------

func TestRepository_TreeOrigins(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	origins := []importer.TreeOrigin{
		{Tree: mockHash("root"), Node: mockNode("root"), Path: ""},
		{Tree: mockHash("src"), Node: mockNode("src"), Path: "src"},
	}
	require.NoError(t, repo.RecordTreeOrigins(ctx, origins))

	got, ok, err := repo.LookupTreeOrigin(ctx, mockHash("src"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, origins[1], got)

	got, ok, err = repo.LookupTreeOrigin(ctx, mockHash("root"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RelativePath(""), got.Path)

	_, ok, err = repo.LookupTreeOrigin(ctx, mockHash("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_TreeOrigins_FirstWriterWins(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	tree := mockHash("shared")

	// 同一批次内重复，以及跨批次重复
	require.NoError(t, repo.RecordTreeOrigins(ctx, []importer.TreeOrigin{
		{Tree: tree, Node: mockNode("a"), Path: "lib/a"},
		{Tree: tree, Node: mockNode("a"), Path: "lib/b"},
	}))
	require.NoError(t, repo.RecordTreeOrigins(ctx, []importer.TreeOrigin{
		{Tree: tree, Node: mockNode("a"), Path: "vendor/a"},
	}))

	got, ok, err := repo.LookupTreeOrigin(ctx, tree)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RelativePath("lib/a"), got.Path)

	var count int64
	require.NoError(t, repo.db.GetConn().Model(&TreeOrigin{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "Should have exactly 1 record after duplicate inserts")
}

func TestRepository_BlobOrigins(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	// 超过一个批次的行数
	var origins []importer.BlobOrigin
	for i := 0; i < insertBatchSize+10; i++ {
		origins = append(origins, importer.BlobOrigin{
			Blob: mockHash(fmt.Sprint("blob", i)),
			Path: types.RelativePath(fmt.Sprintf("dir/file%d", i)),
		})
	}
	require.NoError(t, repo.RecordBlobOrigins(ctx, origins))
	require.NoError(t, repo.RecordBlobOrigins(ctx, origins[:3]))

	p, ok, err := repo.LookupBlobPath(ctx, mockHash("blob7"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RelativePath("dir/file7"), p)

	_, ok, err = repo.LookupBlobPath(ctx, mockHash("nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	var count int64
	require.NoError(t, repo.db.GetConn().Model(&BlobOrigin{}).Count(&count).Error)
	assert.Equal(t, int64(len(origins)), count)
}

func TestRepository_EmptyInputs(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	assert.NoError(t, repo.RecordTreeOrigins(ctx, nil))
	assert.NoError(t, repo.RecordBlobOrigins(ctx, nil))
}

func TestRepository_ImportHistory(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// 1. 准备数据 (手动控制时间以保证排序确定性)
	recs := []importer.ImportRecord{
		{Revision: "r1", RootTree: mockHash("t1"), Strategy: importer.StrategyFlat, CreatedAt: base,
			Stats: importer.Stats{Files: 10, TreesWritten: 3, RemoteFetches: 1}},
		{Revision: "r2", ManifestNode: mockNode("r2"), RootTree: mockHash("t2"), Strategy: importer.StrategyTree,
			CreatedAt: base.Add(time.Minute), Stats: importer.Stats{PackHits: 4, CacheHits: 1, Duration: 3 * time.Millisecond}},
		{Revision: "r1", RootTree: mockHash("t1"), Strategy: importer.StrategyFlat, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range recs {
		require.NoError(t, repo.RecordImport(ctx, rec))
	}

	// 2. 最新的在前
	all, err := repo.ListImports(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r1", all[0].Revision)
	assert.Equal(t, "r2", all[1].Revision)

	r2 := all[1]
	assert.Equal(t, mockNode("r2"), r2.ManifestNode)
	assert.Equal(t, importer.StrategyTree, r2.Strategy)
	assert.Equal(t, recs[1].Stats, r2.Stats)
	assert.True(t, r2.CreatedAt.Equal(recs[1].CreatedAt))

	// 3. 过滤与限制
	only, err := repo.ListImports(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, only, 2)
	assert.True(t, only[0].ManifestNode.IsZero())
	assert.Equal(t, recs[0].Stats, only[1].Stats)

	limited, err := repo.ListImports(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

// TestRepository_ReimportThroughImporter 删除对象库之后，
// 仅靠数据库中的来源映射就能按需恢复任意子目录
func TestRepository_ReimportThroughImporter(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	demo := helpertest.Demo()
	server := &helpertest.Server{Repo: demo, TreeManifest: true, PackPaths: []string{"/var/cache/packs"}}
	newImporter := func(store *memory.Store) *importer.Importer {
		b := helpertest.Connect(t, server)
		im, err := importer.NewWithBridge(b, store, repo,
			importer.WithPacks(packstore.NewUnion(nil, packstore.NewMemorySource("empty"))))
		require.NoError(t, err)
		return im
	}

	first := newImporter(memory.New())
	root, err := first.ImportManifest(ctx, "tip")
	require.NoError(t, err)
	rootTree, err := first.ImportTree(ctx, root)
	require.NoError(t, err)
	src, ok := rootTree.Find("src")
	require.True(t, ok)
	require.Equal(t, core.ModeDir, src.Mode)

	history, err := repo.ListImports(ctx, "tip", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, root, history[0].RootTree)
	assert.Equal(t, importer.StrategyTree, history[0].Strategy)

	fresh := memory.New()
	second := newImporter(fresh)
	tree, err := second.ImportTree(ctx, src.Hash.Hash)
	require.NoError(t, err)
	assert.Equal(t, src.Hash.Hash, tree.ID())

	// 文件内容按记录的路径获取
	mainGo, ok := tree.Find("main.go")
	require.True(t, ok)
	data, err := second.ImportFileContents(ctx, mainGo.Hash.Hash)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}
