package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"hgimport/pkg/core"
	"hgimport/pkg/storage"
	"hgimport/pkg/types"
)

// ErrNotTree 表示对象不是目录树
var ErrNotTree = errors.New("object is not a tree")

type Exporter struct {
	store storage.Store
}

func NewExporter(store storage.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportFile 把文件内容原样写入 writer
func (e *Exporter) ExportFile(ctx context.Context, hash types.Hash, writer io.Writer) error {
	data, err := e.store.Get(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to get blob %s: %w", hash.Short(), err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", hash.Short(), err)
	}
	return nil
}

// ReadTree 读取并解码一个目录树
func (e *Exporter) ReadTree(ctx context.Context, hash types.Hash) (*core.Tree, error) {
	data, err := e.store.Get(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get tree %s: %w", hash.Short(), err)
	}
	if Detect(data) != core.TypeTree {
		return nil, fmt.Errorf("%w: %s", ErrNotTree, hash)
	}
	return core.DecodeTree(data)
}

// WalkFunc 对每个条目调用一次，path 是相对于根目录的完整路径
// 对目录返回 ErrSkipDir 时不进入该目录
type WalkFunc func(path types.RelativePath, entry core.TreeEntry) error

var ErrSkipDir = errors.New("skip this directory")

// Walk 深度优先遍历对象库中的目录树，同一目录内按名字顺序
func (e *Exporter) Walk(ctx context.Context, root types.Hash, fn WalkFunc) error {
	return e.walk(ctx, root, "", fn)
}

func (e *Exporter) walk(ctx context.Context, hash types.Hash, dir types.RelativePath, fn WalkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tree, err := e.ReadTree(ctx, hash)
	if err != nil {
		return err
	}

	for _, entry := range tree.Entries {
		p := dir.Join(entry.Name)
		err := fn(p, entry)
		if entry.Mode.IsDir() {
			if errors.Is(err, ErrSkipDir) {
				continue
			}
			if err != nil {
				return err
			}
			if err := e.walk(ctx, entry.Hash.Hash, p, fn); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}
