package api

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ServiceName = "hgimport.v1.ImportService"

	ImportManifestMethod      = "/" + ServiceName + "/ImportManifest"
	ImportTreeMethod          = "/" + ServiceName + "/ImportTree"
	ImportFileContentsMethod  = "/" + ServiceName + "/ImportFileContents"
	ResolveManifestNodeMethod = "/" + ServiceName + "/ResolveManifestNode"
)

// ImportServiceServer 是服务端需要实现的接口
type ImportServiceServer interface {
	ImportManifest(context.Context, *ImportManifestRequest) (*ImportManifestResponse, error)
	ImportTree(context.Context, *ImportTreeRequest) (*ImportTreeResponse, error)
	ImportFileContents(context.Context, *ImportFileContentsRequest) (*ImportFileContentsResponse, error)
	ResolveManifestNode(context.Context, *ResolveManifestNodeRequest) (*ResolveManifestNodeResponse, error)
}

func RegisterImportServiceServer(s grpc.ServiceRegistrar, srv ImportServiceServer) {
	s.RegisterService(&ImportServiceDesc, srv)
}

// ImportServiceDesc 相当于 protoc-gen-go-grpc 生成的描述
var ImportServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ImportServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ImportManifest", Handler: unary(ImportManifestMethod, ImportServiceServer.ImportManifest)},
		{MethodName: "ImportTree", Handler: unary(ImportTreeMethod, ImportServiceServer.ImportTree)},
		{MethodName: "ImportFileContents", Handler: unary(ImportFileContentsMethod, ImportServiceServer.ImportFileContents)},
		{MethodName: "ResolveManifestNode", Handler: unary(ResolveManifestNodeMethod, ImportServiceServer.ResolveManifestNode)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hgimport/v1/import",
}

// unary 把一个服务方法包装成 grpc.MethodHandler
func unary[Req, Resp any](fullMethod string, call func(ImportServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ImportServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ImportServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ImportServiceClient 是客户端存根
type ImportServiceClient interface {
	ImportManifest(ctx context.Context, in *ImportManifestRequest, opts ...grpc.CallOption) (*ImportManifestResponse, error)
	ImportTree(ctx context.Context, in *ImportTreeRequest, opts ...grpc.CallOption) (*ImportTreeResponse, error)
	ImportFileContents(ctx context.Context, in *ImportFileContentsRequest, opts ...grpc.CallOption) (*ImportFileContentsResponse, error)
	ResolveManifestNode(ctx context.Context, in *ResolveManifestNodeRequest, opts ...grpc.CallOption) (*ResolveManifestNodeResponse, error)
}

type importServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewImportServiceClient(cc grpc.ClientConnInterface) ImportServiceClient {
	return &importServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *importServiceClient) ImportManifest(ctx context.Context, in *ImportManifestRequest, opts ...grpc.CallOption) (*ImportManifestResponse, error) {
	return invoke[ImportManifestResponse](ctx, c.cc, ImportManifestMethod, in, opts)
}

func (c *importServiceClient) ImportTree(ctx context.Context, in *ImportTreeRequest, opts ...grpc.CallOption) (*ImportTreeResponse, error) {
	return invoke[ImportTreeResponse](ctx, c.cc, ImportTreeMethod, in, opts)
}

func (c *importServiceClient) ImportFileContents(ctx context.Context, in *ImportFileContentsRequest, opts ...grpc.CallOption) (*ImportFileContentsResponse, error) {
	return invoke[ImportFileContentsResponse](ctx, c.cc, ImportFileContentsMethod, in, opts)
}

func (c *importServiceClient) ResolveManifestNode(ctx context.Context, in *ResolveManifestNodeRequest, opts ...grpc.CallOption) (*ResolveManifestNodeResponse, error) {
	return invoke[ResolveManifestNodeResponse](ctx, c.cc, ResolveManifestNodeMethod, in, opts)
}
