// Package helpertest 提供一个说线协议的进程内 helper，供各层测试使用
package helpertest

import (
	"crypto/sha1"
	"maps"
	"slices"
	"strings"

	"hgimport/pkg/core"
	"hgimport/pkg/manifest"
	"hgimport/pkg/treemanifest"
	"hgimport/pkg/types"
)

// File 是仓库中的一个文件
type File struct {
	Data []byte
	Mode core.EntryMode // 零值表示普通文件
}

// Repo 是一个极简的仓库模型：修订 -> 文件集合
type Repo struct {
	revs  map[string]*revision
	files map[types.Hash][]byte
	trees map[types.ManifestNode][]byte
}

type revision struct {
	node types.ManifestNode
	flat []byte
	dirs map[types.RelativePath]types.ManifestNode
}

func NewRepo() *Repo {
	return &Repo{
		revs:  make(map[string]*revision),
		files: make(map[types.Hash][]byte),
		trees: make(map[types.ManifestNode][]byte),
	}
}

// FileNode 返回文件内容对应的节点 (同时也是 blob 哈希)
func FileNode(data []byte) types.Hash {
	return types.Hash(sha1.Sum(append([]byte("file\x00"), data...)))
}

// AddRevision 记录一个修订并返回其根 manifest 节点
func (r *Repo) AddRevision(rev string, files map[string]File) types.ManifestNode {
	paths := slices.Sorted(maps.Keys(files))

	var entries []manifest.Entry
	for _, p := range paths {
		f := files[p]
		mode := f.Mode
		if mode == 0 {
			mode = core.ModeRegular
		}
		node := FileNode(f.Data)
		r.files[node] = f.Data
		entries = append(entries, manifest.Entry{Path: types.RelativePath(p), Node: node, Mode: mode})
	}

	rv := &revision{
		flat: manifest.Encode(entries),
		dirs: make(map[types.RelativePath]types.ManifestNode),
	}
	rv.node = r.buildDir(rv, entries, "")
	r.revs[rev] = rv
	return rv.node
}

// buildDir 生成 dir 的 tree manifest 文本，递归处理子目录
func (r *Repo) buildDir(rv *revision, entries []manifest.Entry, dir types.RelativePath) types.ManifestNode {
	prefix := ""
	if !dir.IsRoot() {
		prefix = string(dir) + "/"
	}

	var lines []treemanifest.Entry
	seen := map[string]bool{}
	for _, e := range entries {
		if !strings.HasPrefix(string(e.Path), prefix) {
			continue
		}
		name, _, isDir := strings.Cut(strings.TrimPrefix(string(e.Path), prefix), "/")
		if !isDir {
			lines = append(lines, treemanifest.Entry{
				Name: name,
				Node: e.Node,
				Flag: treemanifest.FlagForMode(e.Mode),
			})
			continue
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		child := r.buildDir(rv, entries, dir.Join(name))
		lines = append(lines, treemanifest.Entry{Name: name, Node: child, Flag: treemanifest.FlagDir})
	}

	text := treemanifest.Format(lines)
	node := types.ManifestNode(sha1.Sum(append([]byte("tree\x00"), text...)))
	r.trees[node] = text
	rv.dirs[dir] = node
	return node
}

// Node 返回修订的根 manifest 节点
func (r *Repo) Node(rev string) (types.ManifestNode, bool) {
	rv, ok := r.lookup(rev)
	if !ok {
		return types.ZeroNode, false
	}
	return rv.node, true
}

// DirNode 返回修订中某个目录的 manifest 节点
func (r *Repo) DirNode(rev string, dir types.RelativePath) (types.ManifestNode, bool) {
	rv, ok := r.lookup(rev)
	if !ok {
		return types.ZeroNode, false
	}
	n, ok := rv.dirs[dir]
	return n, ok
}

// Trees 返回全部 tree manifest 文本 (用于生成包文件)
func (r *Repo) Trees() map[types.ManifestNode][]byte {
	return maps.Clone(r.trees)
}

// DirCount 返回修订中的目录数量 (含根目录)
func (r *Repo) DirCount(rev string) int {
	rv, ok := r.lookup(rev)
	if !ok {
		return 0
	}
	return len(rv.dirs)
}

// lookup 接受修订名或根节点的十六进制形式
func (r *Repo) lookup(rev string) (*revision, bool) {
	if rv, ok := r.revs[rev]; ok {
		return rv, true
	}
	for _, rv := range r.revs {
		if rv.node.String() == rev {
			return rv, true
		}
	}
	return nil, false
}

func (r *Repo) flat(rev string) ([]byte, bool) {
	rv, ok := r.lookup(rev)
	if !ok {
		return nil, false
	}
	return rv.flat, true
}

func (r *Repo) file(node types.Hash) ([]byte, bool) {
	data, ok := r.files[node]
	return data, ok
}

func (r *Repo) tree(node types.ManifestNode) ([]byte, bool) {
	data, ok := r.trees[node]
	return data, ok
}

// Demo 返回一个固定内容的仓库，子进程模式使用它
func Demo() *Repo {
	r := NewRepo()
	r.AddRevision("tip", map[string]File{
		"README":          {Data: []byte("hello\n")},
		"bin/run.sh":      {Data: []byte("#!/bin/sh\necho run\n"), Mode: core.ModeExecutable},
		"src/main.go":     {Data: []byte("package main\n")},
		"src/lib/util.go": {Data: []byte("package lib\n")},
		"src/lib/latest":  {Data: []byte("util.go"), Mode: core.ModeSymlink},
	})
	return r
}
