package importer

import (
	"context"
	"fmt"

	"hgimport/pkg/core"
	"hgimport/pkg/helper"
	"hgimport/pkg/packstore"
	"hgimport/pkg/storage"
	"hgimport/pkg/treemanifest"
	"hgimport/pkg/types"
	"hgimport/pkg/wire"
)

// treeResolver 把 manifest 节点递归地解析为对象库中的目录树
// 每个导入操作使用一个新的 treeResolver，缓存不会跨操作保留
type treeResolver struct {
	bridge *helper.Bridge
	packs  *packstore.Union
	store  storage.Store
	batch  storage.WriteBatch

	// cache: manifest 节点 -> 对象库哈希
	cache   map[types.ManifestNode]types.Hash
	active  map[types.ManifestNode]struct{} // 当前递归路径上的节点
	trees   []TreeOrigin
	blobs   []BlobOrigin
	visited map[types.Hash]struct{}
	stats   Stats
}

func newTreeResolver(bridge *helper.Bridge, packs *packstore.Union, store storage.Store, batch storage.WriteBatch) *treeResolver {
	return &treeResolver{
		bridge:  bridge,
		packs:   packs,
		store:   store,
		batch:   batch,
		cache:   make(map[types.ManifestNode]types.Hash),
		active:  make(map[types.ManifestNode]struct{}),
		visited: make(map[types.Hash]struct{}),
	}
}

// resolve 同步地深度优先解析 node，返回目录树的对象库哈希
func (r *treeResolver) resolve(ctx context.Context, node types.ManifestNode, path types.RelativePath) (types.Hash, error) {
	// 1. 本次操作内已经解析过
	if h, ok := r.cache[node]; ok {
		r.stats.CacheHits++
		return h, nil
	}
	// 子目录引用了自己或祖先：数据损坏，继续递归不会终止
	if _, ok := r.active[node]; ok {
		return types.ZeroHash, fmt.Errorf("%w: tree %s at %q contains itself", treemanifest.ErrMalformed, node.Short(), path)
	}
	r.active[node] = struct{}{}
	defer delete(r.active, node)

	// 2. 本地包 / 远端获取
	text, err := r.fetch(ctx, node, path)
	if err != nil {
		return types.ZeroHash, err
	}
	entries, err := treemanifest.Parse(text)
	if err != nil {
		return types.ZeroHash, fmt.Errorf("tree %s at %q: %w", node.Short(), path, err)
	}

	// 3. 子目录递归解析，文件节点原样作为 blob 哈希
	treeEntries := make([]core.TreeEntry, 0, len(entries))
	for _, e := range entries {
		mode, err := e.Flag.Mode()
		if err != nil {
			return types.ZeroHash, err
		}
		if e.IsDir() {
			child, err := r.resolve(ctx, e.ManifestNode(), path.Join(e.Name))
			if err != nil {
				return types.ZeroHash, err
			}
			treeEntries = append(treeEntries, core.NewTreeEntry(e.Name, child, mode))
			continue
		}
		blob := e.BlobHash()
		treeEntries = append(treeEntries, core.NewTreeEntry(e.Name, blob, mode))
		r.blobs = append(r.blobs, BlobOrigin{Blob: blob, Path: path.Join(e.Name)})
		r.stats.Files++
	}

	// 4. 组装目录树并暂存
	tree, err := core.NewTree(treeEntries)
	if err != nil {
		return types.ZeroHash, fmt.Errorf("tree %s at %q: %w", node.Short(), path, err)
	}
	if err := r.stage(ctx, tree); err != nil {
		return types.ZeroHash, err
	}
	r.trees = append(r.trees, TreeOrigin{Tree: tree.ID(), Node: node, Path: path})
	r.cache[node] = tree.ID()
	return tree.ID(), nil
}

// fetch 先查本地包，未命中时发送 FETCH_TREE
func (r *treeResolver) fetch(ctx context.Context, node types.ManifestNode, path types.RelativePath) ([]byte, error) {
	if data, ok := r.packs.Get(node); ok {
		r.stats.PackHits++
		return data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := r.bridge.Call(wire.CmdFetchTree, wire.EncodeFetchTree(node, path))
	if err != nil {
		return nil, notFound(err, "tree", node.String(), path)
	}
	r.stats.RemoteFetches++
	return data, nil
}

// stage 把目录树放入批次，已暂存或对象库中已存在时什么都不做
func (r *treeResolver) stage(ctx context.Context, tree *core.Tree) error {
	id := tree.ID()
	if _, ok := r.visited[id]; ok || r.batch.Staged(id) {
		return nil
	}
	r.visited[id] = struct{}{}

	exists, err := r.store.Has(ctx, id)
	if err != nil {
		return fmt.Errorf("check tree %s: %w", id.Short(), err)
	}
	if exists {
		r.stats.TreesExisting++
		return nil
	}
	r.batch.Put(id, tree.Bytes())
	r.stats.TreesWritten++
	return nil
}
