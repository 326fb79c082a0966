// Package packstore 按顺序查询一组只读的 tree manifest 包
package packstore

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"hgimport/pkg/types"

	"go.etcd.io/bbolt"
)

// PackExt 是包文件的扩展名
const PackExt = ".treepack"

var bucketTrees = []byte("trees")

// Source 是一个只读的 tree manifest 来源
type Source interface {
	// Get 返回节点对应的 tree manifest 文本，不存在时 ok 为 false
	Get(node types.ManifestNode) (data []byte, ok bool, err error)
	Name() string
	Close() error
}

// BoltSource 是一个 bbolt 格式的包文件
type BoltSource struct {
	db   *bbolt.DB
	name string
}

// OpenBoltSource 以只读方式打开包文件
func OpenBoltSource(path string) (*BoltSource, error) {
	db, err := bbolt.Open(path, 0444, &bbolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open pack %s: %w", path, err)
	}
	return &BoltSource{db: db, name: filepath.Base(path)}, nil
}

func (s *BoltSource) Name() string { return s.name }

func (s *BoltSource) Get(node types.ManifestNode) ([]byte, bool, error) {
	var data []byte
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTrees)
		if b == nil {
			return fmt.Errorf("pack %s has no %q bucket", s.name, bucketTrees)
		}
		k, v := b.Cursor().Seek(node[:])
		if k == nil || !bytes.Equal(k, node[:]) {
			return nil
		}
		data = append([]byte{}, v...)
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return data, ok, nil
}

func (s *BoltSource) Close() error { return s.db.Close() }

// MemorySource 是内存中的来源
type MemorySource struct {
	name  string
	mu    sync.RWMutex
	trees map[types.ManifestNode][]byte
}

func NewMemorySource(name string) *MemorySource {
	return &MemorySource{name: name, trees: make(map[types.ManifestNode][]byte)}
}

func (s *MemorySource) Add(node types.ManifestNode, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees[node] = data
}

func (s *MemorySource) Get(node types.ManifestNode) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.trees[node]
	return data, ok, nil
}

func (s *MemorySource) Name() string { return s.name }
func (s *MemorySource) Close() error { return nil }
