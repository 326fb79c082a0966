// Package memory 是进程内的对象库，用于测试和 storage.type=memory
package memory

import (
	"context"
	"sync"

	"hgimport/pkg/storage"
	"hgimport/pkg/types"
)

type Store struct {
	mu      sync.RWMutex
	objects map[types.Hash][]byte
}

func New() *Store {
	return &Store{objects: make(map[types.Hash][]byte)}
}

func (s *Store) Get(_ context.Context, hash types.Hash) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (s *Store) Has(_ context.Context, hash types.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[hash]
	return ok, nil
}

func (s *Store) BeginWriteBatch() storage.WriteBatch {
	return storage.NewBatch(s.commit)
}

// commit 在一把锁内写入整个批次
func (s *Store) commit(ctx context.Context, objs []storage.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range objs {
		if _, ok := s.objects[o.Hash]; ok {
			continue
		}
		s.objects[o.Hash] = append([]byte(nil), o.Data...)
	}
	return nil
}

// Len 返回对象数量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
