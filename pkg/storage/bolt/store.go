// Package bolt 把对象库存放在单个 bbolt 数据库文件中
// 每个写批次在一个事务内提交，提交要么全部可见要么全部不可见
package bolt

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"hgimport/pkg/storage"
	"hgimport/pkg/types"

	"go.etcd.io/bbolt"
)

var bucketObjects = []byte("objects")

type Store struct {
	db *bbolt.DB
}

// Open 打开或创建 dbPath 处的数据库，父目录不存在时自动创建
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("bolt store: create directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0644, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt store: open %s: %w", dbPath, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketObjects)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt store: create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// lookup 用游标定位，区分 "不存在" 与 "空值"
func lookup(b *bbolt.Bucket, key []byte) ([]byte, bool) {
	k, v := b.Cursor().Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

func (s *Store) Get(_ context.Context, hash types.Hash) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v, ok := lookup(tx.Bucket(bucketObjects), hash[:])
		if !ok {
			return storage.ErrNotFound
		}
		// bbolt 返回的切片只在事务内有效
		data = append([]byte{}, v...)
		return nil
	})
	return data, err
}

func (s *Store) Has(_ context.Context, hash types.Hash) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		_, found = lookup(tx.Bucket(bucketObjects), hash[:])
		return nil
	})
	return found, err
}

func (s *Store) BeginWriteBatch() storage.WriteBatch {
	return storage.NewBatch(s.commit)
}

func (s *Store) commit(ctx context.Context, objs []storage.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for _, o := range objs {
			if _, ok := lookup(b, o.Hash[:]); ok {
				continue
			}
			if err := b.Put(o.Hash[:], o.Data); err != nil {
				return fmt.Errorf("bolt store: put %s: %w", o.Hash.Short(), err)
			}
		}
		return nil
	})
}
