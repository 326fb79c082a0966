// Package helper 管理 import helper 子进程，并在两条管道上收发分块消息
package helper

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"hgimport/pkg/wire"
)

const defaultShutdownTimeout = 5 * time.Second

// Config 描述如何启动 helper 进程
type Config struct {
	// Command 和 Args 组成命令行，仓库路径作为最后一个参数追加
	Command  string
	Args     []string
	RepoPath string
	// Env 追加到当前进程环境变量之后
	Env []string

	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Options 是 helper 在启动握手中宣告的能力
type Options struct {
	ProtocolVersion       uint32
	TreeManifestSupported bool
	// TreeManifestPackPaths 为空时不能使用 tree manifest 导入
	TreeManifestPackPaths []string
}

// Bridge 拥有一个 helper 进程和它的两条管道
//
// Bridge 不是并发安全的：同一时刻只允许一个请求在途，
// 需要并行时请创建多个独立的 Bridge。
type Bridge struct {
	in  io.WriteCloser
	out *wire.Reader

	cmd             *exec.Cmd
	closeStreams    func() error
	shutdownTimeout time.Duration
	log             *slog.Logger

	opts    Options
	nextID  uint32
	pending *wire.Stream
	broken  error

	closeOnce sync.Once
	closeErr  error
}

// Start 启动 helper 进程并完成握手
// ctx 只约束启动和握手阶段，之后取消 ctx 不会影响 Bridge
func Start(ctx context.Context, cfg Config) (*Bridge, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "helper"))

	if cfg.Command == "" {
		return nil, fmt.Errorf("helper command not configured")
	}
	args := append([]string(nil), cfg.Args...)
	if cfg.RepoPath != "" {
		args = append(args, cfg.RepoPath)
	}

	cmd := exec.Command(cfg.Command, args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stderr = &lineLogger{log: log}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create helper stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create helper stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start helper %q: %w", cfg.Command, err)
	}
	log.Info("helper started",
		slog.String("command", cfg.Command),
		slog.String("repo", cfg.RepoPath),
		slog.Int("pid", cmd.Process.Pid),
	)

	b := newBridge(stdout, stdin, log)
	b.cmd = cmd
	if cfg.ShutdownTimeout > 0 {
		b.shutdownTimeout = cfg.ShutdownTimeout
	}

	// 握手期间 ctx 被取消：杀掉进程，阻塞的读取随之失败
	stop := context.AfterFunc(ctx, func() { _ = cmd.Process.Kill() })
	err = b.handshake()
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = &HandshakeError{Reason: "startup interrupted", Err: ctxErr}
		}
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// New 在任意一对流上建立 Bridge 并完成握手 (例如进程内的对端)
// Close 时会关闭 w，若 r 实现了 io.Closer 也会关闭 r
func New(r io.Reader, w io.WriteCloser, log *slog.Logger) (*Bridge, error) {
	if log == nil {
		log = slog.Default()
	}
	b := newBridge(r, w, log.With(slog.String("component", "helper")))
	if rc, ok := r.(io.Closer); ok {
		b.closeStreams = func() error {
			err := w.Close()
			return errors.Join(err, rc.Close())
		}
	}
	if err := b.handshake(); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func newBridge(r io.Reader, w io.WriteCloser, log *slog.Logger) *Bridge {
	return &Bridge{
		in:              w,
		out:             wire.NewReader(r),
		closeStreams:    w.Close,
		shutdownTimeout: defaultShutdownTimeout,
		log:             log,
	}
}

// handshake 读取 CMD_STARTED 并解析 Options
func (b *Bridge) handshake() error {
	s := b.out.Stream(0)
	h, err := s.Begin()
	if err != nil {
		return b.poison(&HandshakeError{Reason: "no STARTED response", Err: err})
	}
	if h.Command != wire.CmdStarted {
		return b.poison(&HandshakeError{Reason: fmt.Sprintf("first response is %s, expected STARTED", h.Command)})
	}
	data, err := io.ReadAll(s)
	if err != nil {
		return b.poison(&HandshakeError{Reason: "incomplete STARTED response", Err: err})
	}

	// 先单独检查版本：版本不同的负载格式可能也不同
	if len(data) < 4 {
		return b.poison(&HandshakeError{Reason: fmt.Sprintf("STARTED payload too short (%d bytes)", len(data))})
	}
	if v := binary.BigEndian.Uint32(data[:4]); v != wire.ProtocolVersion {
		return b.poison(&ProtocolVersionError{Got: v, Want: wire.ProtocolVersion})
	}
	started, err := wire.DecodeStarted(data)
	if err != nil {
		return b.poison(&HandshakeError{Reason: "garbled STARTED payload", Err: err})
	}

	b.opts = Options{
		ProtocolVersion:       started.Version,
		TreeManifestSupported: started.TreeManifestSupported(),
		TreeManifestPackPaths: started.PackPaths,
	}
	b.log.Info("helper handshake complete",
		slog.Bool("treemanifest", b.opts.TreeManifestSupported),
		slog.Any("pack_paths", b.opts.TreeManifestPackPaths),
	)
	return nil
}

// Options 返回握手得到的能力
func (b *Bridge) Options() Options { return b.opts }

// Err 返回使 Bridge 失效的致命错误，正常时为 nil
func (b *Bridge) Err() error { return b.broken }

// Send 发送一个请求，返回分配的请求 ID
func (b *Bridge) Send(cmd wire.Command, payload []byte) (uint32, error) {
	if b.broken != nil {
		return 0, b.broken
	}
	if b.pending != nil && !b.pending.Done() {
		return 0, ErrRequestInFlight
	}

	b.nextID++
	id := b.nextID
	if err := wire.WriteChunk(b.in, wire.ChunkHeader{RequestID: id, Command: cmd}, payload); err != nil {
		var fe *wire.FramingError
		if errors.As(err, &fe) {
			// 本端负载过大，尚未写出任何字节
			return 0, err
		}
		return 0, b.poison(&TransportError{Op: "send " + cmd.String(), Err: err})
	}
	b.pending = b.out.Stream(id)
	b.log.Debug("request sent", slog.Uint64("request_id", uint64(id)), slog.String("command", cmd.String()))
	return id, nil
}

// Receive 读取上一个请求的完整响应
func (b *Bridge) Receive() (wire.ChunkHeader, []byte, error) {
	resp, err := b.open()
	if err != nil {
		return wire.ChunkHeader{}, nil, err
	}
	data, err := io.ReadAll(resp)
	if err != nil {
		return wire.ChunkHeader{}, nil, err
	}
	return resp.s.Header(), data, nil
}

// Call 发送请求并读取完整响应
func (b *Bridge) Call(cmd wire.Command, payload []byte) ([]byte, error) {
	if _, err := b.Send(cmd, payload); err != nil {
		return nil, err
	}
	_, data, err := b.Receive()
	return data, err
}

// Stream 发送请求并以流的形式返回响应
// 调用方必须 Close 返回的 Response，未读完的块会被丢弃
func (b *Bridge) Stream(cmd wire.Command, payload []byte) (*Response, error) {
	if _, err := b.Send(cmd, payload); err != nil {
		return nil, err
	}
	return b.open()
}

func (b *Bridge) open() (*Response, error) {
	if b.broken != nil {
		return nil, b.broken
	}
	if b.pending == nil || b.pending.Done() {
		return nil, errors.New("helper: no request in flight")
	}
	s := b.pending
	h, err := s.Begin()
	if err != nil {
		return nil, b.fail("receive", err)
	}
	if h.Command != wire.CmdResponse {
		return nil, b.poison(&wire.FramingError{
			RequestID: h.RequestID,
			Reason:    fmt.Sprintf("response chunk has command %s", h.Command),
		})
	}
	return &Response{b: b, s: s}, nil
}

// fail 对读取错误分类：HelperError 只影响当前操作，其余错误使 Bridge 失效
func (b *Bridge) fail(op string, err error) error {
	var he *wire.HelperError
	if errors.As(err, &he) {
		return err
	}
	var fe *wire.FramingError
	if errors.As(err, &fe) {
		return b.poison(err)
	}
	return b.poison(&TransportError{Op: op, Err: err})
}

func (b *Bridge) poison(err error) error {
	if b.broken == nil {
		b.broken = err
		b.log.Error("helper bridge failed", slog.String("err", err.Error()))
	}
	return b.broken
}

// Close 关闭两条管道并回收子进程，可以重复调用
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		if b.broken == nil {
			b.broken = ErrClosed
		}
		err := b.closeStreams()
		if b.cmd != nil {
			err = errors.Join(err, b.reap())
		}
		b.closeErr = err
	})
	return b.closeErr
}

// reap 等待 helper 在 stdin 关闭后退出，超时则杀掉
func (b *Bridge) reap() error {
	done := make(chan error, 1)
	go func() { done <- b.cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(b.shutdownTimeout):
		b.log.Warn("helper did not exit in time, killing", slog.Duration("timeout", b.shutdownTimeout))
		_ = b.cmd.Process.Kill()
		<-done
		return nil
	}
	b.log.Info("helper exited", slog.Int("pid", b.cmd.Process.Pid))

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && !exitErr.Exited() {
		// 被信号终止 (例如握手期间被 Kill)
		return nil
	}
	if err != nil {
		return fmt.Errorf("helper exited with error: %w", err)
	}
	return nil
}

// Response 是一个正在读取的响应
type Response struct {
	b *Bridge
	s *wire.Stream
}

func (r *Response) Read(p []byte) (int, error) {
	n, err := r.s.Read(p)
	if err != nil && err != io.EOF {
		err = r.b.fail("receive", err)
	}
	return n, err
}

// Close 丢弃剩余的块
func (r *Response) Close() error {
	if r.s.Done() {
		return nil
	}
	if err := r.s.Drain(); err != nil {
		return r.b.fail("drain", err)
	}
	return nil
}

// lineLogger 把 helper 的 stderr 按行写入日志
type lineLogger struct {
	log *slog.Logger
	buf bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		line, err := l.buf.ReadBytes('\n')
		if err != nil {
			// 不完整的行放回缓冲区
			l.buf.Write(line)
			return len(p), nil
		}
		l.log.Info("helper stderr", slog.String("line", string(bytes.TrimRight(line, "\r\n"))))
	}
}
