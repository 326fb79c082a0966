// Package wire 实现与 import helper 进程通信的分块协议
//
// 每条消息由 16 字节的块头和紧随其后的 dataLength 字节负载组成，
// 块头为四个大端 uint32：requestID, command, flags, dataLength。
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion 是本端编译时期望的 helper 协议版本
const ProtocolVersion uint32 = 1

const (
	HeaderSize = 16

	// MaxChunkSize 限制单个块的负载大小，超过视为帧错误
	MaxChunkSize = 256 << 20
)

// Command 是块头中的命令字段
type Command uint32

const (
	CmdStarted               Command = 0
	CmdResponse              Command = 1
	CmdManifest              Command = 2
	CmdCatFile               Command = 3
	CmdManifestNodeForCommit Command = 4
	CmdFetchTree             Command = 5
)

func (c Command) String() string {
	switch c {
	case CmdStarted:
		return "STARTED"
	case CmdResponse:
		return "RESPONSE"
	case CmdManifest:
		return "MANIFEST"
	case CmdCatFile:
		return "CAT_FILE"
	case CmdManifestNodeForCommit:
		return "MANIFEST_NODE_FOR_COMMIT"
	case CmdFetchTree:
		return "FETCH_TREE"
	}
	return fmt.Sprintf("Command(%d)", uint32(c))
}

func (c Command) Valid() bool { return c <= CmdFetchTree }

// Flags 是块头中的标志位集合
type Flags uint32

const (
	FlagError      Flags = 0x01
	FlagMoreChunks Flags = 0x02

	knownFlags = FlagError | FlagMoreChunks
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// StartFlag 是 STARTED 负载中的能力位
type StartFlag uint32

const (
	StartTreeManifestSupported StartFlag = 0x01
)

// ChunkHeader 位于两个方向上每一个块之前
type ChunkHeader struct {
	RequestID  uint32
	Command    Command
	Flags      Flags
	DataLength uint32
}

// EncodeHeader 将块头编码为固定 16 字节
func EncodeHeader(h ChunkHeader) [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.RequestID)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.Command))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Flags))
	binary.BigEndian.PutUint32(buf[12:16], h.DataLength)
	return buf
}

// DecodeHeader 解析并校验块头
func DecodeHeader(buf []byte) (ChunkHeader, error) {
	if len(buf) < HeaderSize {
		return ChunkHeader{}, &FramingError{Reason: fmt.Sprintf("short header: %d bytes", len(buf))}
	}
	h := ChunkHeader{
		RequestID:  binary.BigEndian.Uint32(buf[0:4]),
		Command:    Command(binary.BigEndian.Uint32(buf[4:8])),
		Flags:      Flags(binary.BigEndian.Uint32(buf[8:12])),
		DataLength: binary.BigEndian.Uint32(buf[12:16]),
	}
	if err := h.validate(); err != nil {
		return ChunkHeader{}, err
	}
	return h, nil
}

func (h ChunkHeader) validate() error {
	if !h.Command.Valid() {
		return &FramingError{RequestID: h.RequestID, Reason: fmt.Sprintf("unknown command %d", uint32(h.Command))}
	}
	if h.Flags&^knownFlags != 0 {
		return &FramingError{RequestID: h.RequestID, Reason: fmt.Sprintf("unknown flag bits %#x", uint32(h.Flags&^knownFlags))}
	}
	if h.DataLength > MaxChunkSize {
		return &FramingError{RequestID: h.RequestID, Reason: fmt.Sprintf("chunk length %d exceeds limit %d", h.DataLength, MaxChunkSize)}
	}
	return nil
}

// WriteChunk 写出一个完整的块 (块头 + 负载)
func WriteChunk(w io.Writer, h ChunkHeader, payload []byte) error {
	h.DataLength = uint32(len(payload))
	if err := h.validate(); err != nil {
		return err
	}
	hdr := EncodeHeader(h)
	// 合并为一次写入，避免管道上出现半个块头
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, hdr[:]...)
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}
