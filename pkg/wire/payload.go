package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Builder 组装请求或响应的负载
type Builder struct {
	buf []byte
}

func (b *Builder) Uint32(v uint32) *Builder {
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
	return b
}

// String 写入 u32 长度前缀的字符串
func (b *Builder) String(s string) *Builder {
	b.Uint32(uint32(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

// Raw 原样追加字节 (无长度前缀)
func (b *Builder) Raw(p []byte) *Builder {
	b.buf = append(b.buf, p...)
	return b
}

// Hash20 追加一个 20 字节的节点或哈希
func (b *Builder) Hash20(h [20]byte) *Builder {
	b.buf = append(b.buf, h[:]...)
	return b
}

func (b *Builder) Bytes() []byte { return b.buf }

// Cursor 顺序读取负载
type Cursor struct {
	buf []byte
	off int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

func (c *Cursor) take(n int, what string) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, fmt.Errorf("reading %s at offset %d: need %d bytes, have %d: %w",
			what, c.off, n, c.Remaining(), io.ErrUnexpectedEOF)
	}
	p := c.buf[c.off : c.off+n]
	c.off += n
	return p, nil
}

func (c *Cursor) Uint32() (uint32, error) {
	p, err := c.take(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

// String 读取 u32 长度前缀的字符串
func (c *Cursor) String() (string, error) {
	n, err := c.Uint32()
	if err != nil {
		return "", err
	}
	p, err := c.take(int(n), "string")
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// Fixed 读取固定长度的字节
func (c *Cursor) Fixed(n int) ([]byte, error) {
	return c.take(n, "fixed field")
}

// Rest 返回剩余全部字节
func (c *Cursor) Rest() []byte {
	p := c.buf[c.off:]
	c.off = len(c.buf)
	return p
}
