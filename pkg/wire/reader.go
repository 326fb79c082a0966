package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Reader 从管道中按块读取
type Reader struct {
	r   io.Reader
	hdr [HeaderSize]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadChunk 读取一个原始块，不解释 ERROR / MORE_CHUNKS
// 在块边界遇到流结束时返回 io.EOF，块内截断返回 io.ErrUnexpectedEOF
func (r *Reader) ReadChunk() (ChunkHeader, []byte, error) {
	if _, err := io.ReadFull(r.r, r.hdr[:]); err != nil {
		return ChunkHeader{}, nil, err
	}
	h, err := DecodeHeader(r.hdr[:])
	if err != nil {
		return ChunkHeader{}, nil, err
	}
	payload := make([]byte, h.DataLength)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return ChunkHeader{}, nil, err
	}
	return h, payload, nil
}

// ReadResponse 读取一个完整的逻辑响应，拼接所有 MORE_CHUNKS 续块
func (r *Reader) ReadResponse(requestID uint32) (ChunkHeader, []byte, error) {
	s := r.Stream(requestID)
	data, err := io.ReadAll(s)
	if err != nil {
		return ChunkHeader{}, nil, err
	}
	return s.Header(), data, nil
}

// Stream 把一个逻辑响应暴露为 io.Reader，按需拉取后续块
func (r *Reader) Stream(requestID uint32) *Stream {
	return &Stream{r: r, requestID: requestID}
}

// Stream 是一个跨越多个块的逻辑响应
type Stream struct {
	r         *Reader
	requestID uint32

	first   ChunkHeader
	started bool
	buf     []byte
	more    bool
	err     error
}

// Begin 读取第一个块 (如果尚未读取) 并返回它的块头
func (s *Stream) Begin() (ChunkHeader, error) {
	if s.err != nil {
		return ChunkHeader{}, s.err
	}
	if !s.started {
		if err := s.next(); err != nil {
			s.err = err
			return ChunkHeader{}, err
		}
	}
	return s.first, nil
}

// Header 返回第一个块的块头 (需在 Begin 或 Read 之后调用)
func (s *Stream) Header() ChunkHeader { return s.first }

// Done 报告响应是否已完整读取
func (s *Stream) Done() bool {
	return s.err != nil || (s.started && !s.more && len(s.buf) == 0)
}

func (s *Stream) Read(p []byte) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	for len(s.buf) == 0 {
		if s.started && !s.more {
			s.err = io.EOF
			return 0, io.EOF
		}
		if err := s.next(); err != nil {
			s.err = err
			return 0, err
		}
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Drain 读完并丢弃剩余的块，保证管道停在下一个响应的边界上
func (s *Stream) Drain() error {
	_, err := io.Copy(io.Discard, s)
	return err
}

func (s *Stream) next() error {
	h, payload, err := s.readContinuation()
	if err != nil {
		return err
	}
	if h.Flags.Has(FlagError) {
		return s.readError(h, payload)
	}
	s.buf = payload
	s.more = h.Flags.Has(FlagMoreChunks)
	return nil
}

func (s *Stream) readContinuation() (ChunkHeader, []byte, error) {
	h, payload, err := s.r.ReadChunk()
	if err != nil {
		// 响应尚未结束，流结束一律视为截断
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return ChunkHeader{}, nil, err
	}
	if h.RequestID != s.requestID {
		if s.started {
			return ChunkHeader{}, nil, &FramingError{
				RequestID: s.requestID,
				Reason:    fmt.Sprintf("continuation chunk carries request %d", h.RequestID),
			}
		}
		return ChunkHeader{}, nil, &FramingError{
			RequestID: s.requestID,
			Reason:    fmt.Sprintf("response for request %d, expected %d", h.RequestID, s.requestID),
		}
	}
	if !s.started {
		s.first = h
		s.started = true
	} else if h.Command != s.first.Command {
		return ChunkHeader{}, nil, &FramingError{
			RequestID: s.requestID,
			Reason:    fmt.Sprintf("continuation chunk changed command from %s to %s", s.first.Command, h.Command),
		}
	}
	return h, payload, nil
}

// readError 收集 (可能分块的) 错误消息
func (s *Stream) readError(h ChunkHeader, payload []byte) error {
	var msg bytes.Buffer
	msg.Write(payload)
	for h.Flags.Has(FlagMoreChunks) {
		var err error
		h, payload, err = s.readContinuation()
		if err != nil {
			return err
		}
		msg.Write(payload)
	}
	s.more = false
	s.buf = nil
	return &HelperError{
		RequestID: s.requestID,
		Command:   s.first.Command,
		Message:   msg.String(),
	}
}

// WriteResponse 按 chunkSize 切分负载写出一个逻辑响应
// chunkSize <= 0 时整个负载作为一个块
func WriteResponse(w io.Writer, requestID uint32, cmd Command, payload []byte, chunkSize int) error {
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		chunkSize = MaxChunkSize
	}
	for {
		n := min(len(payload), chunkSize)
		h := ChunkHeader{RequestID: requestID, Command: cmd}
		if n < len(payload) {
			h.Flags |= FlagMoreChunks
		}
		if err := WriteChunk(w, h, payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
		if len(payload) == 0 {
			return nil
		}
	}
}

// WriteError 写出一个带 ERROR 标志的响应
func WriteError(w io.Writer, requestID uint32, cmd Command, message string) error {
	return WriteChunk(w, ChunkHeader{RequestID: requestID, Command: cmd, Flags: FlagError}, []byte(message))
}
