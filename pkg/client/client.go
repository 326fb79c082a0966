package client

import (
	"context"
	"fmt"
	"time"

	"hgimport/pkg/api"
	"hgimport/pkg/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

// Client 封装了与 hgimport 服务端的连接
type Client struct {
	conn   *grpc.ClientConn
	Import api.ImportServiceClient
}

// New 创建客户端；连接在后台建立，网络不通不会在这里报错
func New(addr string, extra ...grpc.DialOption) (*Client, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(256 * 1024 * 1024), // 大文件内容
		),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             20 * time.Second,
			PermitWithoutStream: true,
		}),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", addr, err)
	}
	return &Client{conn: conn, Import: api.NewImportServiceClient(conn)}, nil
}

// ImportManifest 返回修订的根目录哈希和使用的导入方式
func (c *Client) ImportManifest(ctx context.Context, rev string) (types.Hash, string, error) {
	resp, err := c.Import.ImportManifest(ctx, &api.ImportManifestRequest{Revision: rev})
	if err != nil {
		return types.ZeroHash, "", err
	}
	root, err := types.ParseHash(resp.RootTree)
	if err != nil {
		return types.ZeroHash, "", fmt.Errorf("server returned bad root %q: %w", resp.RootTree, err)
	}
	return root, resp.Strategy, nil
}

func (c *Client) ImportTree(ctx context.Context, id types.Hash) ([]api.TreeEntry, error) {
	resp, err := c.Import.ImportTree(ctx, &api.ImportTreeRequest{Hash: id.String()})
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *Client) ImportFileContents(ctx context.Context, blob types.Hash) ([]byte, error) {
	resp, err := c.Import.ImportFileContents(ctx, &api.ImportFileContentsRequest{Hash: blob.String()})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) ResolveManifestNode(ctx context.Context, rev string) (types.ManifestNode, error) {
	resp, err := c.Import.ResolveManifestNode(ctx, &api.ResolveManifestNodeRequest{Revision: rev})
	if err != nil {
		return types.ZeroNode, err
	}
	return types.ParseManifestNode(resp.Node)
}

// Close 关闭底层连接
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
