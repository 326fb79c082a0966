package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"hgimport/pkg/importer"
	"hgimport/pkg/types"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertBatchSize 是单条 INSERT 携带的最大行数
const insertBatchSize = 500

// Repository 封装所有对 SQL 数据库的操作，实现 importer.OriginIndex
type Repository struct {
	db *DB
}

var _ importer.OriginIndex = (*Repository)(nil)

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 目录树来源 (Tree Origins)
// -----------------------------------------------------------------------------

// RecordTreeOrigins 幂等写入目录树来源，已存在的哈希保留第一次的记录
func (r *Repository) RecordTreeOrigins(ctx context.Context, origins []importer.TreeOrigin) error {
	seen := make(map[types.Hash]struct{}, len(origins))
	rows := make([]TreeOrigin, 0, len(origins))
	for _, o := range origins {
		if _, ok := seen[o.Tree]; ok {
			continue
		}
		seen[o.Tree] = struct{}{}
		rows = append(rows, TreeOrigin{
			TreeHash:     o.Tree.String(),
			ManifestNode: o.Node.String(),
			Path:         o.Path.String(),
		})
	}
	if err := r.insertIgnore(ctx, "tree_hash", &rows, len(rows)); err != nil {
		return fmt.Errorf("failed to record tree origins: %w", err)
	}
	return nil
}

func (r *Repository) LookupTreeOrigin(ctx context.Context, tree types.Hash) (importer.TreeOrigin, bool, error) {
	var row TreeOrigin
	err := r.db.GetConn().WithContext(ctx).
		Where("tree_hash = ?", tree.String()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return importer.TreeOrigin{}, false, nil
	}
	if err != nil {
		return importer.TreeOrigin{}, false, err
	}

	node, err := types.ParseManifestNode(row.ManifestNode)
	if err != nil {
		return importer.TreeOrigin{}, false, fmt.Errorf("corrupt tree origin %s: %w", row.TreeHash, err)
	}
	return importer.TreeOrigin{Tree: tree, Node: node, Path: types.RelativePath(row.Path)}, true, nil
}

// -----------------------------------------------------------------------------
// 2. 文件来源 (Blob Origins)
// -----------------------------------------------------------------------------

func (r *Repository) RecordBlobOrigins(ctx context.Context, origins []importer.BlobOrigin) error {
	seen := make(map[types.Hash]struct{}, len(origins))
	rows := make([]BlobOrigin, 0, len(origins))
	for _, o := range origins {
		if _, ok := seen[o.Blob]; ok {
			continue
		}
		seen[o.Blob] = struct{}{}
		rows = append(rows, BlobOrigin{BlobHash: o.Blob.String(), Path: o.Path.String()})
	}
	if err := r.insertIgnore(ctx, "blob_hash", &rows, len(rows)); err != nil {
		return fmt.Errorf("failed to record blob origins: %w", err)
	}
	return nil
}

func (r *Repository) LookupBlobPath(ctx context.Context, blob types.Hash) (types.RelativePath, bool, error) {
	var row BlobOrigin
	err := r.db.GetConn().WithContext(ctx).
		Where("blob_hash = ?", blob.String()).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return types.RelativePath(row.Path), true, nil
}

// insertIgnore 分批插入，主键冲突时什么都不做 (Do Nothing)
func (r *Repository) insertIgnore(ctx context.Context, key string, rows any, n int) error {
	if n == 0 {
		return nil
	}
	return r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: key}},
			DoNothing: true,
		}).
		CreateInBatches(rows, insertBatchSize).Error
}

// -----------------------------------------------------------------------------
// 3. 导入历史 (Import Records)
// -----------------------------------------------------------------------------

func (r *Repository) RecordImport(ctx context.Context, rec importer.ImportRecord) error {
	stats, err := json.Marshal(rec.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	model := ImportRecord{
		Revision: rec.Revision,
		RootTree: rec.RootTree.String(),
		Strategy: string(rec.Strategy),
		Stats:    datatypes.JSON(stats),
	}
	if !rec.ManifestNode.IsZero() {
		model.ManifestNode = rec.ManifestNode.String()
	}
	if !rec.CreatedAt.IsZero() {
		model.CreatedAt = rec.CreatedAt
	}

	if err := r.db.GetConn().WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to record import: %w", err)
	}
	return nil
}

// ListImports 返回最近的导入记录，最新的在前
// revision 非空时只返回该修订的记录
func (r *Repository) ListImports(ctx context.Context, revision string, limit int) ([]importer.ImportRecord, error) {
	q := r.db.GetConn().WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if revision != "" {
		q = q.Where("revision = ?", revision)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []ImportRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]importer.ImportRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("import record %d: %w", row.ID, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m ImportRecord) toRecord() (importer.ImportRecord, error) {
	rec := importer.ImportRecord{
		Revision:  m.Revision,
		Strategy:  importer.Strategy(m.Strategy),
		CreatedAt: m.CreatedAt,
	}
	var err error
	if rec.RootTree, err = types.ParseHash(m.RootTree); err != nil {
		return rec, err
	}
	if m.ManifestNode != "" {
		if rec.ManifestNode, err = types.ParseManifestNode(m.ManifestNode); err != nil {
			return rec, err
		}
	}
	if len(m.Stats) > 0 {
		if err := json.Unmarshal(m.Stats, &rec.Stats); err != nil {
			return rec, fmt.Errorf("decode stats: %w", err)
		}
	}
	return rec, nil
}
