package importer

import (
	"errors"
	"fmt"

	"hgimport/pkg/helper"
	"hgimport/pkg/types"
	"hgimport/pkg/wire"
)

var (
	// ErrTreeManifestUnsupported 表示 helper 没有宣告 tree manifest 能力
	ErrTreeManifestUnsupported = errors.New("tree manifest import is not supported by the helper")

	// ErrImporterBroken 表示实例已经遇到致命错误，调用方必须丢弃它
	ErrImporterBroken = errors.New("importer is broken")
)

// NotFoundError 表示远端确认对象不存在
type NotFoundError struct {
	Kind string // "revision"、"tree" 或 "file"
	ID   string
	Path types.RelativePath
	Err  error
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %s not found", e.Kind, e.ID)
	if e.Path != "" {
		msg += fmt.Sprintf(" at %q", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// IsFatal 报告错误是否使整个实例失效
//
// 协议版本、握手、分帧、传输错误是致命的；HelperError 与 NotFoundError 只影响当前操作。
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		pv *helper.ProtocolVersionError
		hs *helper.HandshakeError
		fe *wire.FramingError
		te *helper.TransportError
	)
	switch {
	case errors.As(err, &pv), errors.As(err, &hs), errors.As(err, &fe), errors.As(err, &te):
		return true
	case errors.Is(err, ErrImporterBroken), errors.Is(err, helper.ErrClosed):
		return true
	}
	return false
}

// notFound 把远端的 KeyError 转换为 NotFoundError，其它错误原样返回
func notFound(err error, kind, id string, path types.RelativePath) error {
	var he *wire.HelperError
	if errors.As(err, &he) && he.NotFound() {
		return &NotFoundError{Kind: kind, ID: id, Path: path, Err: err}
	}
	return err
}
