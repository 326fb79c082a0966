package importer

import (
	"context"
	"sync"
	"time"

	"hgimport/pkg/types"
)

// Strategy 是导入 manifest 使用的方式
type Strategy string

const (
	StrategyTree Strategy = "treemanifest"
	StrategyFlat Strategy = "flat"
)

// TreeOrigin 记录对象库中的目录树来自哪个 manifest 节点
type TreeOrigin struct {
	Tree types.Hash
	Node types.ManifestNode
	Path types.RelativePath
}

// BlobOrigin 记录文件内容在仓库中的路径 (CAT_FILE 需要)
type BlobOrigin struct {
	Blob types.Hash
	Path types.RelativePath
}

// ImportRecord 是一次成功导入的摘要
type ImportRecord struct {
	Revision     string
	ManifestNode types.ManifestNode // flat 方式下为零值
	RootTree     types.Hash
	Strategy     Strategy
	Stats        Stats
	CreatedAt    time.Time
}

// OriginIndex 保存对象库哈希与 VCS 标识之间的映射
type OriginIndex interface {
	RecordTreeOrigins(ctx context.Context, origins []TreeOrigin) error
	LookupTreeOrigin(ctx context.Context, tree types.Hash) (TreeOrigin, bool, error)
	RecordBlobOrigins(ctx context.Context, origins []BlobOrigin) error
	LookupBlobPath(ctx context.Context, blob types.Hash) (types.RelativePath, bool, error)
	RecordImport(ctx context.Context, rec ImportRecord) error
}

// MemoryOrigins 是进程内的 OriginIndex，先写入者胜出
type MemoryOrigins struct {
	mu      sync.RWMutex
	trees   map[types.Hash]TreeOrigin
	blobs   map[types.Hash]types.RelativePath
	records []ImportRecord
}

func NewMemoryOrigins() *MemoryOrigins {
	return &MemoryOrigins{
		trees: make(map[types.Hash]TreeOrigin),
		blobs: make(map[types.Hash]types.RelativePath),
	}
}

func (m *MemoryOrigins) RecordTreeOrigins(_ context.Context, origins []TreeOrigin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range origins {
		if _, ok := m.trees[o.Tree]; !ok {
			m.trees[o.Tree] = o
		}
	}
	return nil
}

func (m *MemoryOrigins) LookupTreeOrigin(_ context.Context, tree types.Hash) (TreeOrigin, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.trees[tree]
	return o, ok, nil
}

func (m *MemoryOrigins) RecordBlobOrigins(_ context.Context, origins []BlobOrigin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range origins {
		if _, ok := m.blobs[o.Blob]; !ok {
			m.blobs[o.Blob] = o.Path
		}
	}
	return nil
}

func (m *MemoryOrigins) LookupBlobPath(_ context.Context, blob types.Hash) (types.RelativePath, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.blobs[blob]
	return p, ok, nil
}

func (m *MemoryOrigins) RecordImport(_ context.Context, rec ImportRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

// Records 返回全部导入记录
func (m *MemoryOrigins) Records() []ImportRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ImportRecord(nil), m.records...)
}
