package server

import (
	"context"
	"errors"

	"hgimport/pkg/importer"
	"hgimport/pkg/wire"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus 把导入错误映射为 gRPC 状态码
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var (
		nf *importer.NotFoundError
		he *wire.HelperError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.As(err, &nf):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, importer.ErrTreeManifestUnsupported):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, ErrPoolClosed), importer.IsFatal(err):
		return status.Error(codes.Unavailable, err.Error())
	case errors.As(err, &he):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
