// Package treemanifest 解析和生成单个目录的 tree manifest 文本
//
// 每个条目占一行：name \0 <40 位十六进制节点> <可选标志> \n
// 标志 't' 表示子目录，'x' 表示可执行文件，'l' 表示符号链接。
package treemanifest

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"hgimport/pkg/core"
	"hgimport/pkg/types"
)

var ErrMalformed = errors.New("malformed tree manifest")

// Flag 是条目的类型标志
type Flag byte

const (
	FlagNone       Flag = 0
	FlagDir        Flag = 't'
	FlagExecutable Flag = 'x'
	FlagSymlink    Flag = 'l'
)

// Mode 把标志映射为对象库中的条目模式
func (f Flag) Mode() (core.EntryMode, error) {
	switch f {
	case FlagNone:
		return core.ModeRegular, nil
	case FlagDir:
		return core.ModeDir, nil
	case FlagExecutable:
		return core.ModeExecutable, nil
	case FlagSymlink:
		return core.ModeSymlink, nil
	}
	return 0, fmt.Errorf("%w: unknown flag %q", ErrMalformed, byte(f))
}

// FlagForMode 是 Mode 的逆映射
func FlagForMode(m core.EntryMode) Flag {
	switch m {
	case core.ModeDir:
		return FlagDir
	case core.ModeExecutable:
		return FlagExecutable
	case core.ModeSymlink:
		return FlagSymlink
	}
	return FlagNone
}

type Entry struct {
	Name string
	Node [types.HashSize]byte
	Flag Flag
}

func (e Entry) IsDir() bool { return e.Flag == FlagDir }

// ManifestNode 返回子目录的 manifest 节点
func (e Entry) ManifestNode() types.ManifestNode { return types.ManifestNode(e.Node) }

// BlobHash 返回文件内容在对象库中的哈希 (文件节点原样使用)
func (e Entry) BlobHash() types.Hash { return types.FileNodeAsBlob(e.Node) }

// Parse 解析一个目录的 tree manifest 文本
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	for lineNo := 1; len(data) > 0; lineNo++ {
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			return nil, fmt.Errorf("%w: line %d is not terminated", ErrMalformed, lineNo)
		}
		line := data[:nl]
		data = data[nl+1:]

		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseLine(line []byte) (Entry, error) {
	sep := bytes.IndexByte(line, 0)
	if sep < 0 {
		return Entry{}, fmt.Errorf("%w: missing NUL separator", ErrMalformed)
	}
	name := string(line[:sep])
	if name == "" || strings.Contains(name, "/") {
		return Entry{}, fmt.Errorf("%w: invalid name %q", ErrMalformed, name)
	}

	rest := line[sep+1:]
	if len(rest) < 2*types.HashSize {
		return Entry{}, fmt.Errorf("%w: short node for %q", ErrMalformed, name)
	}
	var e Entry
	e.Name = name
	if _, err := hex.Decode(e.Node[:], rest[:2*types.HashSize]); err != nil {
		return Entry{}, fmt.Errorf("%w: bad node for %q: %v", ErrMalformed, name, err)
	}

	switch flag := rest[2*types.HashSize:]; len(flag) {
	case 0:
	case 1:
		e.Flag = Flag(flag[0])
		if _, err := e.Flag.Mode(); err != nil {
			return Entry{}, err
		}
	default:
		return Entry{}, fmt.Errorf("%w: trailing bytes after node for %q", ErrMalformed, name)
	}
	return e, nil
}

// Format 生成 tree manifest 文本，条目按名称排序
func Format(entries []Entry) []byte {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })

	var buf bytes.Buffer
	for _, e := range sorted {
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.WriteString(hex.EncodeToString(e.Node[:]))
		if e.Flag != FlagNone {
			buf.WriteByte(byte(e.Flag))
		}
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
