package packstore

import (
	"fmt"

	"hgimport/pkg/types"

	"go.etcd.io/bbolt"
)

// Writer 生成一个包文件
type Writer struct {
	db *bbolt.DB
}

// Create 创建 (或覆盖追加到) path 处的包文件
func Create(path string) (*Writer, error) {
	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("create pack %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTrees)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create pack %s: %w", path, err)
	}
	return &Writer{db: db}, nil
}

// Add 写入一个节点的 tree manifest 文本
func (w *Writer) Add(node types.ManifestNode, data []byte) error {
	return w.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTrees).Put(node.Bytes(), data)
	})
}

// AddAll 在一个事务内写入多个节点
func (w *Writer) AddAll(trees map[types.ManifestNode][]byte) error {
	return w.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTrees)
		for node, data := range trees {
			if err := b.Put(node.Bytes(), data); err != nil {
				return fmt.Errorf("add %s: %w", node.Short(), err)
			}
		}
		return nil
	})
}

func (w *Writer) Close() error { return w.db.Close() }
