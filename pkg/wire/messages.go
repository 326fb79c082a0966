package wire

import (
	"fmt"

	"hgimport/pkg/types"
)

// Started 是 CMD_STARTED 的负载
type Started struct {
	Version   uint32
	Flags     StartFlag
	PackPaths []string
}

func (s Started) TreeManifestSupported() bool {
	return s.Flags&StartTreeManifestSupported != 0
}

func EncodeStarted(s Started) []byte {
	var b Builder
	b.Uint32(s.Version).Uint32(uint32(s.Flags)).Uint32(uint32(len(s.PackPaths)))
	for _, p := range s.PackPaths {
		b.String(p)
	}
	return b.Bytes()
}

func DecodeStarted(payload []byte) (Started, error) {
	c := NewCursor(payload)
	var s Started
	var err error
	if s.Version, err = c.Uint32(); err != nil {
		return Started{}, fmt.Errorf("protocol version: %w", err)
	}
	flags, err := c.Uint32()
	if err != nil {
		return Started{}, fmt.Errorf("start flags: %w", err)
	}
	s.Flags = StartFlag(flags)
	count, err := c.Uint32()
	if err != nil {
		return Started{}, fmt.Errorf("pack path count: %w", err)
	}
	// 每个路径至少占 4 字节长度前缀
	if int64(count)*4 > int64(c.Remaining()) {
		return Started{}, fmt.Errorf("pack path count %d exceeds payload size", count)
	}
	for i := uint32(0); i < count; i++ {
		p, err := c.String()
		if err != nil {
			return Started{}, fmt.Errorf("pack path %d: %w", i, err)
		}
		s.PackPaths = append(s.PackPaths, p)
	}
	if c.Remaining() != 0 {
		return Started{}, fmt.Errorf("%d trailing bytes after STARTED payload", c.Remaining())
	}
	return s, nil
}

// EncodeCatFile 编码 CAT_FILE 请求：20 字节文件节点 + 路径
func EncodeCatFile(blob types.Hash, path types.RelativePath) []byte {
	var b Builder
	return b.Hash20(blob).Raw([]byte(path)).Bytes()
}

func DecodeCatFile(payload []byte) (types.Hash, types.RelativePath, error) {
	c := NewCursor(payload)
	raw, err := c.Fixed(types.HashSize)
	if err != nil {
		return types.ZeroHash, "", fmt.Errorf("file node: %w", err)
	}
	h, _ := types.HashFromBytes(raw)
	return h, types.RelativePath(c.Rest()), nil
}

// EncodeFetchTree 编码 FETCH_TREE 请求：20 字节 manifest 节点 + 目录路径
func EncodeFetchTree(node types.ManifestNode, path types.RelativePath) []byte {
	var b Builder
	return b.Hash20(node).Raw([]byte(path)).Bytes()
}

func DecodeFetchTree(payload []byte) (types.ManifestNode, types.RelativePath, error) {
	c := NewCursor(payload)
	raw, err := c.Fixed(types.HashSize)
	if err != nil {
		return types.ZeroNode, "", fmt.Errorf("manifest node: %w", err)
	}
	n, _ := types.ManifestNodeFromBytes(raw)
	return n, types.RelativePath(c.Rest()), nil
}
