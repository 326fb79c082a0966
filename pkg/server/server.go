// Package server 通过 gRPC 暴露导入操作
package server

import (
	"log/slog"

	"hgimport/pkg/api"

	"google.golang.org/grpc"
)

// New 创建注册了 ImportService 的 gRPC 服务端
func New(pool *Pool, log *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "server"))

	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			UnaryRecoveryInterceptor(log),
			UnaryLoggingInterceptor(log),
		),
	}, opts...)
	s := grpc.NewServer(opts...)
	api.RegisterImportServiceServer(s, NewImportService(pool))
	return s
}
