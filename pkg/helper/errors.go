package helper

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestInFlight 表示上一个请求的响应还没有读取
	ErrRequestInFlight = errors.New("helper: a request is already in flight")

	// ErrClosed 表示 Bridge 已经关闭
	ErrClosed = errors.New("helper: bridge is closed")
)

// ProtocolVersionError 表示 helper 宣告的协议版本与本端不一致
type ProtocolVersionError struct {
	Got  uint32
	Want uint32
}

func (e *ProtocolVersionError) Error() string {
	return fmt.Sprintf("helper protocol version mismatch: helper speaks %d, expected %d", e.Got, e.Want)
}

// HandshakeError 表示启动响应缺失或格式错误
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("helper handshake failed: %s: %v", e.Reason, e.Err)
	}
	return "helper handshake failed: " + e.Reason
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// TransportError 表示读写管道时失败 (管道断开、子进程退出)
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("helper transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
