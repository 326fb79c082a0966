package storage

import (
	"context"

	"hgimport/pkg/types"
)

// CommitFunc 按暂存顺序持久化对象 (子对象先于父对象)
type CommitFunc func(ctx context.Context, objs []Object) error

// Batch 是 WriteBatch 的通用实现，后端只需提供 CommitFunc
type Batch struct {
	commit CommitFunc
	objs   []Object
	index  map[types.Hash]struct{}
	closed bool
}

func NewBatch(commit CommitFunc) *Batch {
	return &Batch{
		commit: commit,
		index:  make(map[types.Hash]struct{}),
	}
}

func (b *Batch) Put(hash types.Hash, data []byte) {
	if b.closed {
		return
	}
	if _, ok := b.index[hash]; ok {
		return
	}
	b.index[hash] = struct{}{}
	b.objs = append(b.objs, Object{Hash: hash, Data: data})
}

func (b *Batch) Staged(hash types.Hash) bool {
	_, ok := b.index[hash]
	return ok
}

func (b *Batch) Len() int { return len(b.objs) }

// Objects 返回暂存的对象 (按暂存顺序)
func (b *Batch) Objects() []Object { return b.objs }

func (b *Batch) Commit(ctx context.Context) error {
	if b.closed {
		return ErrBatchClosed
	}
	b.closed = true
	objs := b.objs
	b.objs, b.index = nil, nil
	if len(objs) == 0 {
		return nil
	}
	return b.commit(ctx, objs)
}

func (b *Batch) Discard() {
	b.closed = true
	b.objs, b.index = nil, nil
}
