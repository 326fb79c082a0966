package manifest

import (
	"fmt"
	"io"
	"strings"

	"hgimport/pkg/core"
	"hgimport/pkg/storage"
	"hgimport/pkg/types"
)

// dirFrame 是一个尚未完成的目录
type dirFrame struct {
	path    types.RelativePath
	entries []core.TreeEntry
}

// Importer 自底向上地累积目录
//
// 栈底是根目录，栈中每一层都是下一层的父目录。
// 每条记录到来时，先弹出并完成所有不是其祖先的目录，再压入缺失的祖先目录。
type Importer struct {
	batch storage.WriteBatch
	stack []*dirFrame
	last  types.RelativePath
	seen  bool
	done  bool

	// OnFile 在每个文件条目被接受后调用
	OnFile func(Entry)
	// OnTree 在每个目录完成后调用
	OnTree func(path types.RelativePath, hash types.Hash)

	files int
	trees int
}

func NewImporter(batch storage.WriteBatch) *Importer {
	return &Importer{
		batch: batch,
		stack: []*dirFrame{{path: ""}},
	}
}

// Add 接受一条记录，记录必须按完整路径严格递增
func (im *Importer) Add(e Entry) error {
	if im.done {
		return fmt.Errorf("manifest importer already finished")
	}
	if err := e.Path.Validate(); err != nil || e.Path.IsRoot() {
		return fmt.Errorf("%w: %q", ErrInvalidPath, e.Path)
	}
	if im.seen && e.Path <= im.last {
		return fmt.Errorf("%w: %q after %q", ErrManifestOrder, e.Path, im.last)
	}
	im.seen = true
	im.last = e.Path

	dir := e.Path.Dir()

	// 1. 弹出所有不是 dir 祖先的目录
	for !isAncestor(im.top().path, dir) {
		if err := im.pop(); err != nil {
			return err
		}
	}

	// 2. 压入缺失的祖先目录
	for im.top().path != dir {
		rest := strings.TrimPrefix(string(dir), string(im.top().path))
		rest = strings.TrimPrefix(rest, "/")
		name, _, _ := strings.Cut(rest, "/")
		im.stack = append(im.stack, &dirFrame{path: im.top().path.Join(name)})
	}

	// 3. 追加文件条目
	top := im.top()
	top.entries = append(top.entries, core.NewTreeEntry(e.Path.Base(), e.Node, e.Mode))
	im.files++
	if im.OnFile != nil {
		im.OnFile(e)
	}
	return nil
}

// Finish 完成所有目录并返回根目录的哈希
func (im *Importer) Finish() (types.Hash, error) {
	if im.done {
		return types.ZeroHash, fmt.Errorf("manifest importer already finished")
	}
	for len(im.stack) > 1 {
		if err := im.pop(); err != nil {
			return types.ZeroHash, err
		}
	}
	root, err := im.finalize(im.stack[0])
	if err != nil {
		return types.ZeroHash, err
	}
	im.done = true
	return root, nil
}

// Stats 返回已接受的文件数和已完成的目录数
func (im *Importer) Stats() (files, trees int) { return im.files, im.trees }

func (im *Importer) top() *dirFrame { return im.stack[len(im.stack)-1] }

// pop 完成栈顶目录并把它作为子目录加入父目录
func (im *Importer) pop() error {
	frame := im.top()
	im.stack = im.stack[:len(im.stack)-1]

	hash, err := im.finalize(frame)
	if err != nil {
		return err
	}
	parent := im.top()
	parent.entries = append(parent.entries, core.NewTreeEntry(frame.path.Base(), hash, core.ModeDir))
	return nil
}

func (im *Importer) finalize(frame *dirFrame) (types.Hash, error) {
	tree, err := core.NewTree(frame.entries)
	if err != nil {
		return types.ZeroHash, fmt.Errorf("directory %q: %w", frame.path, err)
	}
	im.batch.Put(tree.ID(), tree.Bytes())
	im.trees++
	if im.OnTree != nil {
		im.OnTree(frame.path, tree.ID())
	}
	return tree.ID(), nil
}

// isAncestor 报告 dir 是否等于 ancestor 或位于其下
func isAncestor(ancestor, dir types.RelativePath) bool {
	if ancestor.IsRoot() || ancestor == dir {
		return true
	}
	return strings.HasPrefix(string(dir), string(ancestor)+"/")
}

// Import 解析整个流并返回根目录哈希，出错时不会丢弃批次
func Import(r io.Reader, im *Importer) (types.Hash, error) {
	p := NewParser(r)
	for {
		e, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return types.ZeroHash, err
		}
		if err := im.Add(e); err != nil {
			return types.ZeroHash, err
		}
	}
	return im.Finish()
}
