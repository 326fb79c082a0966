// Package importer 把 VCS 的 manifest、目录树和文件内容导入到对象库
//
// 一个 Importer 独占一个 helper 进程、一个包集合和每次操作的写批次，
// 它不是并发安全的。需要并行时创建多个实例，它们只共享对象库。
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"hgimport/pkg/core"
	"hgimport/pkg/helper"
	"hgimport/pkg/manifest"
	"hgimport/pkg/packstore"
	"hgimport/pkg/storage"
	"hgimport/pkg/types"
	"hgimport/pkg/wire"
)

// Config 描述如何启动一个 Importer
type Config struct {
	Helper helper.Config
	Logger *slog.Logger
}

type Importer struct {
	bridge  *helper.Bridge
	packs   *packstore.Union
	store   storage.Store
	origins OriginIndex
	log     *slog.Logger

	broken    error
	lastStats Stats
	closeOnce sync.Once
	closeErr  error
}

// Option 配置 NewWithBridge
type Option func(*Importer)

// WithPacks 使用给定的包集合，而不是按握手宣告的路径打开
func WithPacks(u *packstore.Union) Option {
	return func(im *Importer) { im.packs = u }
}

func WithLogger(log *slog.Logger) Option {
	return func(im *Importer) {
		if log != nil {
			im.log = log
		}
	}
}

// New 启动 helper 并打开它宣告的本地包
func New(ctx context.Context, cfg Config, store storage.Store, origins OriginIndex) (*Importer, error) {
	hc := cfg.Helper
	if hc.Logger == nil {
		hc.Logger = cfg.Logger
	}
	b, err := helper.Start(ctx, hc)
	if err != nil {
		return nil, err
	}
	im, err := NewWithBridge(b, store, origins, WithLogger(cfg.Logger))
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	return im, nil
}

// NewWithBridge 在已经完成握手的 Bridge 上构建 Importer，Importer 接管 Bridge
func NewWithBridge(b *helper.Bridge, store storage.Store, origins OriginIndex, opts ...Option) (*Importer, error) {
	im := &Importer{
		bridge:  b,
		store:   store,
		origins: origins,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	im.log = im.log.With(slog.String("component", "importer"))

	if im.packs == nil {
		packs, err := packstore.Open(b.Options().TreeManifestPackPaths, im.log)
		if err != nil {
			return nil, err
		}
		im.packs = packs
	}
	return im, nil
}

// Options 返回 helper 宣告的能力
func (im *Importer) Options() helper.Options { return im.bridge.Options() }

// TreeManifestAvailable 报告 ImportManifest 是否会使用 tree manifest 方式
// 只看 helper 宣告的包路径，路径下暂时没有包时仍走 FETCH_TREE
func (im *Importer) TreeManifestAvailable() bool {
	opts := im.bridge.Options()
	return opts.TreeManifestSupported && len(opts.TreeManifestPackPaths) > 0
}

// LastStats 返回最近一次导入操作的统计
func (im *Importer) LastStats() Stats { return im.lastStats }

// ImportManifest 导入一个修订的完整目录树，返回根目录哈希
func (im *Importer) ImportManifest(ctx context.Context, rev string) (types.Hash, error) {
	if im.TreeManifestAvailable() {
		return im.ImportTreeManifest(ctx, rev)
	}
	return im.ImportFlatManifest(ctx, rev)
}

// ImportTreeManifest 逐个目录地解析修订的 manifest
func (im *Importer) ImportTreeManifest(ctx context.Context, rev string) (types.Hash, error) {
	if err := im.usable(); err != nil {
		return types.ZeroHash, err
	}
	if !im.bridge.Options().TreeManifestSupported {
		return types.ZeroHash, ErrTreeManifestUnsupported
	}
	start := time.Now()

	node, err := im.resolveManifestNode(rev)
	if err != nil {
		return types.ZeroHash, im.check(err)
	}

	batch := im.store.BeginWriteBatch()
	r := newTreeResolver(im.bridge, im.packs, im.store, batch)
	root, err := r.resolve(ctx, node, "")
	if err == nil {
		err = batch.Commit(ctx)
	}
	if err != nil {
		batch.Discard()
		return types.ZeroHash, im.check(err)
	}

	r.stats.Duration = time.Since(start)
	im.lastStats = r.stats
	im.recordTrees(ctx, r.trees, r.blobs)
	im.recordImport(ctx, ImportRecord{
		Revision:     rev,
		ManifestNode: node,
		RootTree:     root,
		Strategy:     StrategyTree,
		Stats:        r.stats,
	})
	return root, nil
}

// ImportFlatManifest 流式读取修订的扁平 manifest 并自底向上构建目录树
func (im *Importer) ImportFlatManifest(ctx context.Context, rev string) (types.Hash, error) {
	if err := im.usable(); err != nil {
		return types.ZeroHash, err
	}
	start := time.Now()

	resp, err := im.bridge.Stream(wire.CmdManifest, []byte(rev))
	if err != nil {
		return types.ZeroHash, im.check(notFound(err, "revision", rev, ""))
	}

	var stats Stats
	var blobs []BlobOrigin
	batch := im.store.BeginWriteBatch()
	mi := manifest.NewImporter(batch)
	mi.OnFile = func(e manifest.Entry) {
		blobs = append(blobs, BlobOrigin{Blob: e.Node, Path: e.Path})
	}

	root, err := manifest.Import(resp, mi)
	// 解析失败时丢弃剩余的块，保证管道停在下一个响应的边界上
	if cerr := resp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = batch.Commit(ctx)
	}
	if err != nil {
		batch.Discard()
		return types.ZeroHash, im.check(notFound(err, "revision", rev, ""))
	}

	stats.Files, stats.TreesWritten = mi.Stats()
	stats.RemoteFetches = 1
	stats.Duration = time.Since(start)
	im.lastStats = stats
	im.recordTrees(ctx, nil, blobs)
	im.recordImport(ctx, ImportRecord{
		Revision: rev,
		RootTree: root,
		Strategy: StrategyFlat,
		Stats:    stats,
	})
	return root, nil
}

// ImportTree 返回对象库中的目录树，缺失时按记录的来源重新解析
func (im *Importer) ImportTree(ctx context.Context, id types.Hash) (*core.Tree, error) {
	tree, err := im.loadTree(ctx, id)
	if err == nil {
		return tree, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if err := im.usable(); err != nil {
		return nil, err
	}
	if !im.bridge.Options().TreeManifestSupported {
		return nil, ErrTreeManifestUnsupported
	}
	origin, ok, err := im.lookupTreeOrigin(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Kind: "tree", ID: id.String()}
	}

	start := time.Now()
	batch := im.store.BeginWriteBatch()
	r := newTreeResolver(im.bridge, im.packs, im.store, batch)
	got, err := r.resolve(ctx, origin.Node, origin.Path)
	if err == nil && got != id {
		err = fmt.Errorf("tree %s resolved from %s at %q has hash %s", id, origin.Node, origin.Path, got)
	}
	if err == nil {
		err = batch.Commit(ctx)
	}
	if err != nil {
		batch.Discard()
		return nil, im.check(err)
	}

	r.stats.Duration = time.Since(start)
	im.lastStats = r.stats
	im.recordTrees(ctx, r.trees, r.blobs)
	return im.loadTree(ctx, id)
}

// ImportFileContents 返回文件内容，缺失时通过 CAT_FILE 获取并写入对象库
func (im *Importer) ImportFileContents(ctx context.Context, blob types.Hash) ([]byte, error) {
	data, err := im.store.Get(ctx, blob)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if err := im.usable(); err != nil {
		return nil, err
	}
	// 路径未知时发送空路径
	path, err := im.lookupBlobPath(ctx, blob)
	if err != nil {
		return nil, err
	}

	data, err = im.bridge.Call(wire.CmdCatFile, wire.EncodeCatFile(blob, path))
	if err != nil {
		return nil, im.check(notFound(err, "file", blob.String(), path))
	}

	batch := im.store.BeginWriteBatch()
	batch.Put(blob, data)
	if err := batch.Commit(ctx); err != nil {
		batch.Discard()
		return nil, err
	}
	im.lastStats = Stats{RemoteFetches: 1, Files: 1}
	return data, nil
}

// ResolveManifestNode 返回修订的根 manifest 节点
func (im *Importer) ResolveManifestNode(ctx context.Context, rev string) (types.ManifestNode, error) {
	if err := im.usable(); err != nil {
		return types.ZeroNode, err
	}
	node, err := im.resolveManifestNode(rev)
	return node, im.check(err)
}

func (im *Importer) resolveManifestNode(rev string) (types.ManifestNode, error) {
	data, err := im.bridge.Call(wire.CmdManifestNodeForCommit, []byte(rev))
	if err != nil {
		return types.ZeroNode, notFound(err, "revision", rev, "")
	}
	node, err := types.ManifestNodeFromBytes(data)
	if err != nil {
		return types.ZeroNode, &wire.FramingError{
			Reason: fmt.Sprintf("MANIFEST_NODE_FOR_COMMIT returned %d bytes, expected %d", len(data), types.HashSize),
		}
	}
	return node, nil
}

// Close 关闭 helper 进程和包集合，可以重复调用
func (im *Importer) Close() error {
	im.closeOnce.Do(func() {
		if im.broken == nil {
			im.broken = helper.ErrClosed
		}
		im.closeErr = errors.Join(im.bridge.Close(), im.packs.Close())
	})
	return im.closeErr
}

// Err 返回使实例失效的致命错误
func (im *Importer) Err() error { return im.broken }

func (im *Importer) usable() error {
	if im.broken != nil {
		return fmt.Errorf("%w: %w", ErrImporterBroken, im.broken)
	}
	return nil
}

// check 在致命错误时标记实例失效
func (im *Importer) check(err error) error {
	if err == nil || !IsFatal(err) {
		return err
	}
	if im.broken == nil {
		im.broken = err
		im.log.Error("importer failed", slog.String("err", err.Error()))
	}
	return fmt.Errorf("%w: %w", ErrImporterBroken, err)
}

func (im *Importer) loadTree(ctx context.Context, id types.Hash) (*core.Tree, error) {
	data, err := im.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tree, err := core.DecodeTree(data)
	if err != nil {
		return nil, fmt.Errorf("object %s: %w", id.Short(), err)
	}
	return tree, nil
}

func (im *Importer) lookupTreeOrigin(ctx context.Context, id types.Hash) (TreeOrigin, bool, error) {
	if im.origins == nil {
		return TreeOrigin{}, false, nil
	}
	return im.origins.LookupTreeOrigin(ctx, id)
}

func (im *Importer) lookupBlobPath(ctx context.Context, blob types.Hash) (types.RelativePath, error) {
	if im.origins == nil {
		return "", nil
	}
	p, _, err := im.origins.LookupBlobPath(ctx, blob)
	return p, err
}

// recordTrees 在批次提交之后写入来源映射，失败只记录日志
func (im *Importer) recordTrees(ctx context.Context, trees []TreeOrigin, blobs []BlobOrigin) {
	if im.origins == nil {
		return
	}
	if len(trees) > 0 {
		if err := im.origins.RecordTreeOrigins(ctx, trees); err != nil {
			im.log.Warn("failed to record tree origins", slog.Int("count", len(trees)), slog.String("err", err.Error()))
		}
	}
	if len(blobs) > 0 {
		if err := im.origins.RecordBlobOrigins(ctx, blobs); err != nil {
			im.log.Warn("failed to record blob origins", slog.Int("count", len(blobs)), slog.String("err", err.Error()))
		}
	}
}

func (im *Importer) recordImport(ctx context.Context, rec ImportRecord) {
	im.log.Info("manifest imported",
		slog.String("rev", rec.Revision),
		slog.String("root", rec.RootTree.String()),
		slog.String("strategy", string(rec.Strategy)),
		slog.Int("pack_hits", rec.Stats.PackHits),
		slog.Int("remote_fetches", rec.Stats.RemoteFetches),
		slog.Int("cache_hits", rec.Stats.CacheHits),
		slog.Int("trees_written", rec.Stats.TreesWritten),
		slog.Duration("duration", rec.Stats.Duration),
	)
	if im.origins == nil {
		return
	}
	rec.CreatedAt = time.Now()
	if err := im.origins.RecordImport(ctx, rec); err != nil {
		im.log.Warn("failed to record import", slog.String("err", err.Error()))
	}
}
