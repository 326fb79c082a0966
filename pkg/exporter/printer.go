package exporter

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"unicode/utf8"

	"hgimport/pkg/core"
	"hgimport/pkg/types"
)

// Detect 探测对象类型：能解码为目录树的是 Tree，其余都是 Blob
func Detect(data []byte) core.ObjectType {
	var header struct {
		TypeVal core.ObjectType `cbor:"t"`
	}
	if err := core.DecodeObject(data, &header); err != nil {
		return core.TypeBlob
	}
	if header.TypeVal == core.TypeTree {
		return core.TypeTree
	}
	return core.TypeBlob
}

// PrintObject 打印对象摘要：目录树按 ls-tree 格式，文件打印大小
func (e *Exporter) PrintObject(ctx context.Context, hash types.Hash, w io.Writer) error {
	data, err := e.store.Get(ctx, hash)
	if err != nil {
		return err
	}

	if Detect(data) == core.TypeTree {
		tree, err := core.DecodeTree(data)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Type: Tree\nHash: %s\n\n", hash)
		return printEntries(w, "", tree.Entries)
	}

	fmt.Fprintf(w, "Type: Blob\nHash: %s\nSize: %d bytes\n", hash, len(data))
	if !utf8.Valid(data) {
		// 二进制内容不打印，防止终端乱码
		fmt.Fprintf(w, "\n(binary data not shown, use 'hgimport cat --raw' to save)\n")
	}
	return nil
}

// ListTree 以 git ls-tree 的格式列出目录树，recursive 时展开全部子目录
func (e *Exporter) ListTree(ctx context.Context, root types.Hash, recursive bool, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	if !recursive {
		tree, err := e.ReadTree(ctx, root)
		if err != nil {
			return err
		}
		for _, entry := range tree.Entries {
			printEntry(tw, types.RelativePath(entry.Name), entry)
		}
		return tw.Flush()
	}

	err := e.Walk(ctx, root, func(p types.RelativePath, entry core.TreeEntry) error {
		if !entry.Mode.IsDir() {
			printEntry(tw, p, entry)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return tw.Flush()
}

func printEntries(w io.Writer, dir types.RelativePath, entries []core.TreeEntry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, entry := range entries {
		printEntry(tw, dir.Join(entry.Name), entry)
	}
	return tw.Flush()
}

// printEntry 模拟 git ls-tree 的输出格式
func printEntry(w io.Writer, p types.RelativePath, entry core.TreeEntry) {
	fmt.Fprintf(w, "%06o %s %s\t%s\n", uint32(entry.Mode), entry.Mode.Kind(), entry.Hash.Hash, p)
}
