// Package prefetch 把已导入目录树中匹配规则的文件内容提前导入对象库
package prefetch

import (
	"context"
	"log/slog"

	"hgimport/pkg/core"
	"hgimport/pkg/exporter"
	"hgimport/pkg/types"
)

// FileImporter 按需导入文件内容 (importer.Importer 满足该接口)
type FileImporter interface {
	ImportFileContents(ctx context.Context, blob types.Hash) ([]byte, error)
}

// Result 是一次预取的统计
type Result struct {
	Matched int
	Bytes   int64
}

// Run 深度优先遍历 root，对匹配的文件调用 ImportFileContents
// 已经在对象库中的文件由 ImportFileContents 直接返回，不会访问远端
func Run(ctx context.Context, exp *exporter.Exporter, files FileImporter, root types.Hash, m *Matcher, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "prefetch"))

	var res Result
	err := exp.Walk(ctx, root, func(p types.RelativePath, entry core.TreeEntry) error {
		if entry.Mode.IsDir() || !m.Matches(p.String()) {
			return nil
		}
		data, err := files.ImportFileContents(ctx, entry.Hash.Hash)
		if err != nil {
			return err
		}
		res.Matched++
		res.Bytes += int64(len(data))
		log.Debug("prefetched", slog.String("path", p.String()), slog.Int("size", len(data)))
		return nil
	})
	if err != nil {
		return res, err
	}

	log.Info("prefetch finished", slog.String("root", root.String()),
		slog.Int("matched", res.Matched), slog.Int64("bytes", res.Bytes))
	return res, nil
}
