package wire

import (
	"fmt"
	"strings"
)

// NotFoundPrefix 是 helper 报告对象不存在时错误消息的前缀
const NotFoundPrefix = "KeyError:"

// HelperError 表示对端在响应中设置了 ERROR 标志
// Message 是负载的原始字节
type HelperError struct {
	RequestID uint32
	Command   Command
	Message   string
}

func (e *HelperError) Error() string {
	return fmt.Sprintf("helper error (request %d): %s", e.RequestID, e.Message)
}

// NotFound 报告对端是否声明请求的对象不存在
func (e *HelperError) NotFound() bool {
	return strings.HasPrefix(e.Message, NotFoundPrefix)
}

// FramingError 表示块头结构非法，或多块响应的连续性被破坏
// 出现后连接状态不可信，必须丢弃
type FramingError struct {
	RequestID uint32
	Reason    string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wire framing error (request %d): %s", e.RequestID, e.Reason)
}
