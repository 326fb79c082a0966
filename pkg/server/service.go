package server

import (
	"context"
	"fmt"

	"hgimport/pkg/api"
	"hgimport/pkg/importer"
	"hgimport/pkg/types"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ImportService 在池中的 Importer 上执行请求
type ImportService struct {
	pool *Pool
}

var _ api.ImportServiceServer = (*ImportService)(nil)

func NewImportService(pool *Pool) *ImportService {
	return &ImportService{pool: pool}
}

// with 借出一个实例执行 fn，并按 fn 的错误决定实例的去留
func (s *ImportService) with(ctx context.Context, fn func(*importer.Importer) error) error {
	im, err := s.pool.Acquire(ctx)
	if err != nil {
		return toStatus(err)
	}
	err = fn(im)
	s.pool.Release(im, err)
	return toStatus(err)
}

func (s *ImportService) ImportManifest(ctx context.Context, req *api.ImportManifestRequest) (*api.ImportManifestResponse, error) {
	if req.Revision == "" {
		return nil, status.Error(codes.InvalidArgument, "revision is required")
	}

	var resp api.ImportManifestResponse
	err := s.with(ctx, func(im *importer.Importer) error {
		strategy := importer.StrategyFlat
		if im.TreeManifestAvailable() {
			strategy = importer.StrategyTree
		}
		root, err := im.ImportManifest(ctx, req.Revision)
		if err != nil {
			return err
		}
		st := im.LastStats()
		resp = api.ImportManifestResponse{
			RootTree: root.String(),
			Strategy: string(strategy),
			Stats: api.Stats{
				PackHits:      st.PackHits,
				RemoteFetches: st.RemoteFetches,
				CacheHits:     st.CacheHits,
				TreesWritten:  st.TreesWritten,
				TreesExisting: st.TreesExisting,
				Files:         st.Files,
				DurationMs:    st.Duration.Milliseconds(),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ImportService) ImportTree(ctx context.Context, req *api.ImportTreeRequest) (*api.ImportTreeResponse, error) {
	id, err := parseHash(req.Hash)
	if err != nil {
		return nil, err
	}

	var resp api.ImportTreeResponse
	err = s.with(ctx, func(im *importer.Importer) error {
		tree, err := im.ImportTree(ctx, id)
		if err != nil {
			return err
		}
		resp.Hash = tree.ID().String()
		resp.Entries = make([]api.TreeEntry, 0, len(tree.Entries))
		for _, e := range tree.Entries {
			resp.Entries = append(resp.Entries, api.TreeEntry{
				Name: e.Name,
				Mode: uint32(e.Mode),
				Hash: e.Hash.Hash.String(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ImportService) ImportFileContents(ctx context.Context, req *api.ImportFileContentsRequest) (*api.ImportFileContentsResponse, error) {
	blob, err := parseHash(req.Hash)
	if err != nil {
		return nil, err
	}

	var resp api.ImportFileContentsResponse
	err = s.with(ctx, func(im *importer.Importer) error {
		data, err := im.ImportFileContents(ctx, blob)
		resp.Data = data
		return err
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ImportService) ResolveManifestNode(ctx context.Context, req *api.ResolveManifestNodeRequest) (*api.ResolveManifestNodeResponse, error) {
	if req.Revision == "" {
		return nil, status.Error(codes.InvalidArgument, "revision is required")
	}

	var resp api.ResolveManifestNodeResponse
	err := s.with(ctx, func(im *importer.Importer) error {
		node, err := im.ResolveManifestNode(ctx, req.Revision)
		resp.Node = node.String()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func parseHash(s string) (types.Hash, error) {
	h, err := types.ParseHash(s)
	if err != nil {
		return types.ZeroHash, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid hash %q: %v", s, err))
	}
	return h, nil
}
