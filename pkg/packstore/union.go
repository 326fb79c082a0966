package packstore

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"hgimport/pkg/types"
)

// Union 按顺序查询多个来源，第一个命中者胜出
// 构造之后不可变，可以被并发读取
type Union struct {
	sources []Source
	log     *slog.Logger
}

// NewUnion 组合已经打开的来源
func NewUnion(log *slog.Logger, sources ...Source) *Union {
	if log == nil {
		log = slog.Default()
	}
	return &Union{sources: sources, log: log.With(slog.String("component", "packstore"))}
}

// Open 打开每个目录下的全部 *.treepack 文件
// 顺序：目录按传入顺序，目录内按文件名排序。不存在的目录跳过。
func Open(dirs []string, log *slog.Logger) (*Union, error) {
	u := NewUnion(log)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			u.log.Warn("pack directory does not exist", slog.String("dir", dir))
			continue
		}
		if err != nil {
			_ = u.Close()
			return nil, fmt.Errorf("read pack directory %s: %w", dir, err)
		}

		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), PackExt) {
				names = append(names, e.Name())
			}
		}
		slices.Sort(names)

		for _, name := range names {
			src, err := OpenBoltSource(filepath.Join(dir, name))
			if err != nil {
				_ = u.Close()
				return nil, err
			}
			u.sources = append(u.sources, src)
		}
	}
	u.log.Info("pack union opened", slog.Int("sources", len(u.sources)), slog.Any("dirs", dirs))
	return u, nil
}

// Get 返回第一个包含该节点的来源中的数据
// 某个来源读取失败只记录日志并视为未命中，调用方仍可走远程获取
func (u *Union) Get(node types.ManifestNode) ([]byte, bool) {
	if u == nil {
		return nil, false
	}
	for _, src := range u.sources {
		data, ok, err := src.Get(node)
		if err != nil {
			u.log.Warn("pack source read failed",
				slog.String("source", src.Name()),
				slog.String("node", node.String()),
				slog.String("err", err.Error()),
			)
			continue
		}
		if ok {
			return data, true
		}
	}
	return nil, false
}

// Len 返回来源数量，0 表示 tree manifest 导入不可用
func (u *Union) Len() int {
	if u == nil {
		return 0
	}
	return len(u.sources)
}

func (u *Union) Close() error {
	if u == nil {
		return nil
	}
	var errs []error
	for _, src := range u.sources {
		errs = append(errs, src.Close())
	}
	return errors.Join(errs...)
}
