package storage

import (
	"context"
	"errors"

	"hgimport/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")

	// ErrBatchClosed 表示批次已经提交或丢弃
	ErrBatchClosed = errors.New("write batch already committed or discarded")
)

// Store defines the interface for a storage backend.
// Implementations can be local disk, bolt, cloud storage, or in-memory storage.
// 所有实现都必须支持多个写入者并发写入，同一个哈希重复写入是幂等的
type Store interface {
	// Get 根据 Hash 读取原始数据
	Get(ctx context.Context, hash types.Hash) ([]byte, error)

	// Has 检查对象是否存在 (用于去重逻辑)
	Has(ctx context.Context, hash types.Hash) (bool, error)

	// BeginWriteBatch 开启一个写批次，对象在 Commit 之前对读取不可见
	BeginWriteBatch() WriteBatch
}

// WriteBatch 收集一次导入产生的所有对象
type WriteBatch interface {
	// Put 暂存一个对象，重复的哈希只保留第一次
	Put(hash types.Hash, data []byte)

	// Staged 报告哈希是否已在本批次中暂存
	Staged(hash types.Hash) bool

	Len() int

	// Commit 持久化全部暂存对象，之后批次不可再用
	Commit(ctx context.Context) error

	// Discard 丢弃全部暂存对象，可以重复调用
	Discard()
}

// Object 是暂存在批次中的一个对象
type Object struct {
	Hash types.Hash
	Data []byte
}
