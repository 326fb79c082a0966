package core

import (
	"crypto/sha1"
	"fmt"

	"hgimport/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 定义规范化 (Canonical) 的 CBOR 编码选项
var encOptions = cbor.EncOptions{
	// 1. 强制 Map Key 排序，相同的对象生成唯一的 Hash
	Sort: cbor.SortCanonical,

	// 2. 浮点数统一 64 位
	ShortestFloat: cbor.ShortestFloatNone,

	// 3. 禁止不定长编码
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

var decOptions = cbor.DecOptions{
	// 限制容器大小与嵌套深度，防止畸形数据耗尽内存或栈
	MaxArrayElements: 1 << 20,
	MaxMapPairs:      10000,
	MaxNestedLevels:  100,

	IndefLength: cbor.IndefLengthForbidden,
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	BignumTag:   cbor.BignumTagForbidden,
}

var dm, _ = decOptions.DecMode()

// CalculateHash 计算对象的存储 Hash 和序列化数据
func CalculateHash(v any) (types.Hash, []byte, error) {
	data, err := em.Marshal(v)
	if err != nil {
		return types.ZeroHash, nil, fmt.Errorf("failed to marshal object: %w", err)
	}
	return CalculateBlobHash(data), data, nil
}

// CalculateBlobHash 计算原始字节的 Hash
func CalculateBlobHash(data []byte) types.Hash {
	return types.Hash(sha1.Sum(data))
}

// DecodeObject 通用的解码函数
func DecodeObject(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

// EncodeObject 使用规范化编码序列化任意值
func EncodeObject(v any) ([]byte, error) {
	return em.Marshal(v)
}
