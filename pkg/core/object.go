package core

import "hgimport/pkg/types"

// ObjectType 定义了对象存储中的对象类型
type ObjectType string

const (
	TypeBlob ObjectType = "blob" // 文件内容 (原始字节)
	TypeTree ObjectType = "tree" // 目录快照
)

// Object 是所有可写入存储的对象的通用接口
type Object interface {
	Type() ObjectType

	// ID 返回对象的存储 Hash
	ID() types.Hash

	// Bytes 返回对象的序列化数据 (用于存储)
	Bytes() []byte
}

// Blob 是某个版本的文件内容
// 它的 Hash 由 VCS 提供，原样沿用
type Blob struct {
	hash types.Hash
	data []byte
}

func NewBlob(hash types.Hash, data []byte) *Blob {
	return &Blob{hash: hash, data: data}
}

func (b *Blob) Type() ObjectType { return TypeBlob }
func (b *Blob) ID() types.Hash   { return b.hash }
func (b *Blob) Bytes() []byte    { return b.data }
func (b *Blob) Size() int64      { return int64(len(b.data)) }
