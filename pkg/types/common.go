// pkg/types/common.go
package types

import (
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// HashSize 是两种标识符共同的字节宽度 (SHA-1)
const HashSize = 20

// Hash 代表对象存储中的对象标识符 (Tree / Blob 的 Key)
// 这是一个“值对象”，应当是不可变的。
type Hash [HashSize]byte

// ZeroHash 是空值
var ZeroHash Hash

func (h Hash) String() string { return hex.EncodeToString(h[:]) }
func (h Hash) Bytes() []byte  { return append([]byte(nil), h[:]...) }
func (h Hash) IsZero() bool   { return h == ZeroHash }

// Short 返回前 8 个十六进制字符，用于日志和列表输出
func (h Hash) Short() string { return h.String()[:8] }

// ParseHash 将 40 字符的十六进制字符串解析为 Hash
func ParseHash(s string) (Hash, error) {
	var h Hash
	if err := decodeHex(h[:], s); err != nil {
		return ZeroHash, fmt.Errorf("invalid object hash %q: %w", s, err)
	}
	return h, nil
}

// HashFromBytes 从原始字节构造 Hash，长度必须为 20
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return ZeroHash, fmt.Errorf("object hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ManifestNode 是 VCS 原生的 manifest 节点标识
// 它和 Hash 宽度相同，但属于另一个哈希空间：不能作为存储 Key 使用
type ManifestNode [HashSize]byte

var ZeroNode ManifestNode

func (n ManifestNode) String() string { return hex.EncodeToString(n[:]) }
func (n ManifestNode) Bytes() []byte  { return append([]byte(nil), n[:]...) }
func (n ManifestNode) IsZero() bool   { return n == ZeroNode }
func (n ManifestNode) Short() string  { return n.String()[:8] }

func ParseManifestNode(s string) (ManifestNode, error) {
	var n ManifestNode
	if err := decodeHex(n[:], s); err != nil {
		return ZeroNode, fmt.Errorf("invalid manifest node %q: %w", s, err)
	}
	return n, nil
}

func ManifestNodeFromBytes(b []byte) (ManifestNode, error) {
	var n ManifestNode
	if len(b) != HashSize {
		return ZeroNode, fmt.Errorf("manifest node must be %d bytes, got %d", HashSize, len(b))
	}
	copy(n[:], b)
	return n, nil
}

// FileNodeAsBlob 把 VCS 文件节点直接当作 Blob 的存储 Hash
// 文件内容寻址与 VCS 共用，只有目录需要重新映射
func FileNodeAsBlob(node [HashSize]byte) Hash { return Hash(node) }

func decodeHex(dst []byte, s string) error {
	if len(s) != hex.EncodedLen(len(dst)) {
		return fmt.Errorf("expected %d hex chars, got %d", hex.EncodedLen(len(dst)), len(s))
	}
	_, err := hex.Decode(dst, []byte(s))
	return err
}

// RelativePath 是仓库内的相对路径，使用 "/" 分隔，根目录为空串
type RelativePath string

func (p RelativePath) String() string { return string(p) }
func (p RelativePath) IsRoot() bool   { return p == "" }

// Join 追加一个路径组件
func (p RelativePath) Join(name string) RelativePath {
	if p == "" {
		return RelativePath(name)
	}
	return RelativePath(string(p) + "/" + name)
}

// Dir 返回父目录 ("a/b/c" -> "a/b", "c" -> "")
func (p RelativePath) Dir() RelativePath {
	i := strings.LastIndexByte(string(p), '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// Base 返回最后一个组件
func (p RelativePath) Base() string {
	i := strings.LastIndexByte(string(p), '/')
	return string(p[i+1:])
}

// Validate 检查路径是否为规范的相对路径
func (p RelativePath) Validate() error {
	if p == "" {
		return nil
	}
	s := string(p)
	if strings.HasPrefix(s, "/") {
		return fmt.Errorf("path %q is absolute", s)
	}
	for _, part := range strings.Split(s, "/") {
		switch part {
		case "":
			return fmt.Errorf("path %q has an empty component", s)
		case ".", "..":
			return fmt.Errorf("path %q has a %q component", s, part)
		}
		if strings.IndexByte(part, 0) >= 0 {
			return fmt.Errorf("path %q contains a NUL byte", s)
		}
	}
	if path.Clean(s) != s {
		return fmt.Errorf("path %q is not clean", s)
	}
	return nil
}
