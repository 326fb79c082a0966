package helpertest

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"hgimport/pkg/helper"
	"hgimport/pkg/wire"
)

// Server 在一对流上扮演 helper 进程
type Server struct {
	Repo *Repo

	TreeManifest bool
	PackPaths    []string
	// Version 为 0 时宣告 wire.ProtocolVersion
	Version uint32
	// ChunkSize 大于 0 时按该大小切分每个响应
	ChunkSize int

	// Fail 返回非空字符串时，以该消息作为 ERROR 响应
	Fail func(cmd wire.Command, payload []byte) string
	// Respond 返回 true 时以它给出的数据代替正常响应
	Respond func(cmd wire.Command, payload []byte) ([]byte, bool)
	// Handshake 非 nil 时代替标准的 STARTED 响应
	Handshake func(w io.Writer) error

	mu     sync.Mutex
	counts map[wire.Command]int
}

// Count 返回某个命令被请求的次数
func (s *Server) Count(cmd wire.Command) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[cmd]
}

// ResetCounts 清零全部计数
func (s *Server) ResetCounts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = nil
}

func (s *Server) record(cmd wire.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = make(map[wire.Command]int)
	}
	s.counts[cmd]++
}

func (s *Server) started() wire.Started {
	st := wire.Started{Version: s.Version, PackPaths: s.PackPaths}
	if st.Version == 0 {
		st.Version = wire.ProtocolVersion
	}
	if s.TreeManifest {
		st.Flags |= wire.StartTreeManifestSupported
	}
	return st
}

// Serve 发送 STARTED，然后逐个处理请求，直到 r 结束
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	if s.Handshake != nil {
		if err := s.Handshake(w); err != nil {
			return err
		}
	} else if err := wire.WriteResponse(w, 0, wire.CmdStarted, wire.EncodeStarted(s.started()), s.ChunkSize); err != nil {
		return err
	}

	rd := wire.NewReader(r)
	for {
		h, payload, err := rd.ReadChunk()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		s.record(h.Command)

		if s.Fail != nil {
			if msg := s.Fail(h.Command, payload); msg != "" {
				if err := wire.WriteError(w, h.RequestID, wire.CmdResponse, msg); err != nil {
					return err
				}
				continue
			}
		}

		var data []byte
		var msg string
		if custom, ok := s.respond(h.Command, payload); ok {
			data = custom
		} else {
			data, msg = s.handle(h.Command, payload)
		}
		if msg != "" {
			err = wire.WriteError(w, h.RequestID, wire.CmdResponse, msg)
		} else {
			err = wire.WriteResponse(w, h.RequestID, wire.CmdResponse, data, s.ChunkSize)
		}
		if err != nil {
			return err
		}
	}
}

func (s *Server) respond(cmd wire.Command, payload []byte) ([]byte, bool) {
	if s.Respond == nil {
		return nil, false
	}
	return s.Respond(cmd, payload)
}

// handle 返回响应数据，或者一条错误消息
func (s *Server) handle(cmd wire.Command, payload []byte) ([]byte, string) {
	switch cmd {
	case wire.CmdManifest:
		data, ok := s.Repo.flat(string(payload))
		if !ok {
			return nil, fmt.Sprintf("%s unknown revision %q", wire.NotFoundPrefix, payload)
		}
		return data, ""

	case wire.CmdManifestNodeForCommit:
		node, ok := s.Repo.Node(string(payload))
		if !ok {
			return nil, fmt.Sprintf("%s unknown revision %q", wire.NotFoundPrefix, payload)
		}
		return node.Bytes(), ""

	case wire.CmdCatFile:
		node, path, err := wire.DecodeCatFile(payload)
		if err != nil {
			return nil, "ValueError: " + err.Error()
		}
		data, ok := s.Repo.file(node)
		if !ok {
			return nil, fmt.Sprintf("%s file %s (%s) not found", wire.NotFoundPrefix, node, path)
		}
		return data, ""

	case wire.CmdFetchTree:
		node, path, err := wire.DecodeFetchTree(payload)
		if err != nil {
			return nil, "ValueError: " + err.Error()
		}
		data, ok := s.Repo.tree(node)
		if !ok {
			return nil, fmt.Sprintf("%s tree %s at %q not found", wire.NotFoundPrefix, node, path)
		}
		return data, ""
	}
	return nil, fmt.Sprintf("unsupported command %s", cmd)
}

// Dial 在进程内启动 Server 并返回连接到它的 Bridge
func Dial(s *Server) (*helper.Bridge, error) {
	toHelperR, toHelperW := io.Pipe()
	fromHelperR, fromHelperW := io.Pipe()

	go func() {
		err := s.Serve(toHelperR, fromHelperW)
		if err == nil {
			err = io.EOF
		}
		_ = fromHelperW.CloseWithError(err)
		_ = toHelperR.CloseWithError(err)
	}()

	return helper.New(fromHelperR, toHelperW, nil)
}

// TB 是 testing.TB 中用到的部分
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
	Cleanup(func())
}

// Connect 与 Dial 相同，失败时终止测试，测试结束时关闭 Bridge
func Connect(t TB, s *Server) *helper.Bridge {
	t.Helper()
	b, err := Dial(s)
	if err != nil {
		t.Fatalf("connect to fake helper: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}
