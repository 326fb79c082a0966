// Package manifest 把扁平 manifest (每个文件一条记录) 转换为对象库中的目录树
//
// 每条记录的格式：20 字节文件节点 '\t' [标志] '\t' 路径 '\0'
// 标志为 'x' (可执行) 或 'l' (符号链接)，普通文件没有标志。
// helper 按完整路径的字节序输出记录，每个目录的条目因此是连续的。
package manifest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"hgimport/pkg/core"
	"hgimport/pkg/treemanifest"
	"hgimport/pkg/types"
)

var (
	ErrMalformed     = errors.New("malformed manifest entry")
	ErrInvalidPath   = errors.New("invalid manifest path")
	ErrManifestOrder = errors.New("manifest entries out of order")
)

// Entry 是扁平 manifest 中的一个文件
type Entry struct {
	Path types.RelativePath
	// Node 是文件节点，原样用作 blob 哈希
	Node types.Hash
	Mode core.EntryMode
}

// Parser 从流中逐条读取记录，记录可以跨越块边界
type Parser struct {
	r *bufio.Reader
	n int
}

func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReaderSize(r, 64<<10)}
}

// Next 返回下一条记录，读完时返回 io.EOF
func (p *Parser) Next() (Entry, error) {
	var node types.Hash
	if _, err := io.ReadFull(p.r, node[:]); err != nil {
		if err == io.EOF {
			return Entry{}, io.EOF
		}
		return Entry{}, p.readError("node", err)
	}
	p.n++

	if err := p.expect('\t'); err != nil {
		return Entry{}, err
	}
	flag, err := p.r.ReadByte()
	if err != nil {
		return Entry{}, p.readError("flag", err)
	}
	mode := core.ModeRegular
	if flag != '\t' {
		if flag == byte(treemanifest.FlagDir) {
			return Entry{}, p.errorf("directory flag in flat manifest")
		}
		if mode, err = treemanifest.Flag(flag).Mode(); err != nil {
			return Entry{}, p.errorf("%v", err)
		}
		if err := p.expect('\t'); err != nil {
			return Entry{}, err
		}
	}

	path, err := p.r.ReadBytes(0)
	if err != nil {
		return Entry{}, p.readError("path", err)
	}
	return Entry{
		Path: types.RelativePath(path[:len(path)-1]),
		Node: node,
		Mode: mode,
	}, nil
}

func (p *Parser) expect(c byte) error {
	got, err := p.r.ReadByte()
	if err != nil {
		return p.readError("separator", err)
	}
	if got != c {
		return p.errorf("expected %q, got %q", c, got)
	}
	return nil
}

// readError 区分流被截断与底层读取失败，后者原样向上传递
func (p *Parser) readError(field string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return p.errorf("truncated %s", field)
	}
	return fmt.Errorf("manifest entry %d: reading %s: %w", p.n, field, err)
}

func (p *Parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: entry %d: %s", ErrMalformed, p.n, fmt.Sprintf(format, args...))
}

// AppendEntry 按线上格式追加一条记录
func AppendEntry(buf []byte, e Entry) []byte {
	buf = append(buf, e.Node[:]...)
	buf = append(buf, '\t')
	if f := treemanifest.FlagForMode(e.Mode); f != treemanifest.FlagNone {
		buf = append(buf, byte(f))
	}
	buf = append(buf, '\t')
	buf = append(buf, e.Path...)
	return append(buf, 0)
}

// Encode 按给定顺序编码全部记录
func Encode(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.Write(AppendEntry(nil, e))
	}
	return buf.Bytes()
}
