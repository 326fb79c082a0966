package meta

import (
	"time"

	"gorm.io/datatypes"
)

// TreeOrigin 把对象库中的目录树映射回 manifest 节点
// 对象库哈希与 VCS 节点不同，按需重新导入目录树时需要这张表
type TreeOrigin struct {
	TreeHash     string `gorm:"primaryKey;type:char(40)"`
	ManifestNode string `gorm:"type:char(40);not null"`
	// Path 是目录在仓库中的路径，根目录为空
	Path string `gorm:"type:text"`

	CreatedAt time.Time
}

// BlobOrigin 记录文件内容第一次出现的路径，CAT_FILE 需要它
type BlobOrigin struct {
	BlobHash string `gorm:"primaryKey;type:char(40)"`
	Path     string `gorm:"type:text;not null"`

	CreatedAt time.Time
}

// ImportRecord 是一次成功导入的历史记录 (hgimport history)
type ImportRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Revision     string `gorm:"index;type:varchar(255)"`
	ManifestNode string `gorm:"type:char(40)"`
	RootTree     string `gorm:"index;type:char(40);not null"`
	Strategy     string `gorm:"type:varchar(32)"`

	// Stats 是 importer.Stats 的 JSON 形式
	Stats datatypes.JSON

	CreatedAt time.Time `gorm:"index"`
}

// TableName 强制指定表名
func (ImportRecord) TableName() string {
	return "imports"
}
