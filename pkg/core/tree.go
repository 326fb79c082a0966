package core

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"hgimport/pkg/types"
)

var (
	ErrDuplicateEntry = errors.New("duplicate tree entry name")
	ErrInvalidName    = errors.New("invalid tree entry name")
)

// EntryMode 是条目的文件模式位
type EntryMode uint32

const (
	ModeDir        EntryMode = 0o040000
	ModeRegular    EntryMode = 0o100644
	ModeExecutable EntryMode = 0o100755
	ModeSymlink    EntryMode = 0o120000
)

func (m EntryMode) IsDir() bool { return m == ModeDir }

// Kind 返回 ls-tree 风格的类型名
func (m EntryMode) Kind() string {
	if m == ModeDir {
		return "tree"
	}
	return "blob"
}

func (m EntryMode) Valid() bool {
	switch m {
	case ModeDir, ModeRegular, ModeExecutable, ModeSymlink:
		return true
	}
	return false
}

type TreeEntry struct {
	Name string    `cbor:"n"`
	Mode EntryMode `cbor:"m"`
	Hash Link      `cbor:"h"`
}

func NewTreeEntry(name string, hash types.Hash, mode EntryMode) TreeEntry {
	return TreeEntry{Name: name, Mode: mode, Hash: NewLink(hash)}
}

type Tree struct {
	hash     types.Hash `cbor:"-"`
	rawBytes []byte     `cbor:"-"`

	TypeVal ObjectType  `cbor:"t"`
	Entries []TreeEntry `cbor:"e"`
}

// NewTree 创建一个新的目录树节点
// 条目会先按名字排序：无论插入顺序如何，相同的条目集合得到相同的 Hash
func NewTree(entries []TreeEntry) (*Tree, error) {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b TreeEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	for i, e := range sorted {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateEntry, e.Name)
		}
	}
	if sorted == nil {
		sorted = []TreeEntry{}
	}

	t := &Tree{
		TypeVal: TypeTree,
		Entries: sorted,
	}
	h, b, err := CalculateHash(t)
	if err != nil {
		return nil, err
	}
	t.hash = h
	t.rawBytes = b
	return t, nil
}

// DecodeTree 从存储字节还原 Tree，并重新计算 Hash
func DecodeTree(data []byte) (*Tree, error) {
	var t Tree
	if err := DecodeObject(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode tree: %w", err)
	}
	if t.TypeVal != TypeTree {
		return nil, fmt.Errorf("object is not a tree, got: %q", t.TypeVal)
	}
	for _, e := range t.Entries {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
	}
	t.hash = CalculateBlobHash(data)
	t.rawBytes = data
	return &t, nil
}

func validateEntry(e TreeEntry) error {
	if e.Name == "" || e.Name == "." || e.Name == ".." || strings.ContainsAny(e.Name, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, e.Name)
	}
	if !e.Mode.Valid() {
		return fmt.Errorf("entry %q has unknown mode %o", e.Name, uint32(e.Mode))
	}
	return nil
}

func (t *Tree) Type() ObjectType { return TypeTree }
func (t *Tree) ID() types.Hash   { return t.hash }
func (t *Tree) Bytes() []byte    { return t.rawBytes }

// Find 按名字查找条目 (条目已排序，二分查找)
func (t *Tree) Find(name string) (TreeEntry, bool) {
	i, ok := slices.BinarySearchFunc(t.Entries, name, func(e TreeEntry, n string) int {
		return strings.Compare(e.Name, n)
	})
	if !ok {
		return TreeEntry{}, false
	}
	return t.Entries[i], true
}
