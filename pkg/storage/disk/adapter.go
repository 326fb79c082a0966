package disk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"hgimport/pkg/storage"
	"hgimport/pkg/types"

	"github.com/spf13/afero"
)

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	fs       afero.Fs
	rootPath string // 比如: /home/user/.hgimport/objects
}

// NewAdapter 在本地文件系统上创建磁盘存储适配器
func NewAdapter(root string) (*Adapter, error) {
	return NewAdapterFs(afero.NewOsFs(), root)
}

// NewAdapterFs 在任意 afero.Fs 上创建适配器 (测试使用内存文件系统)
func NewAdapterFs(fs afero.Fs, root string) (*Adapter, error) {
	// 确保根目录存在
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root storage dir: %w", err)
	}
	return &Adapter{fs: fs, rootPath: root}, nil
}

// layout 返回哈希对应的物理路径
// 策略：使用前 2 个字符作为子目录 (Sharding)
// Example: hash "aabbcc..." -> root/aa/bbcc...
func (s *Adapter) layout(hash types.Hash) string {
	hex := hash.String()
	return filepath.Join(s.rootPath, hex[:2], hex[2:])
}

func (s *Adapter) BeginWriteBatch() storage.WriteBatch {
	return storage.NewBatch(s.commit)
}

// commit 按暂存顺序逐个写入，子对象总是先于引用它的父对象落盘
func (s *Adapter) commit(ctx context.Context, objs []storage.Object) error {
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.put(o.Hash, o.Data); err != nil {
			return fmt.Errorf("write object %s: %w", o.Hash.Short(), err)
		}
	}
	return nil
}

func (s *Adapter) put(hash types.Hash, data []byte) error {
	targetPath := s.layout(hash)

	// 1. 检查是否存在 (幂等性)
	if _, err := s.fs.Stat(targetPath); err == nil {
		return nil
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 3. 原子写入：先写临时文件，然后 Rename
	tempFile, err := afero.TempFile(s.fs, dir, "temp-*")
	if err != nil {
		return err
	}
	// Rename 成功之后这个删除无害
	defer s.fs.Remove(tempFile.Name())

	if _, err := tempFile.Write(data); err != nil {
		tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// 4. 移动到最终位置
	return s.fs.Rename(tempFile.Name(), targetPath)
}

func (s *Adapter) Get(ctx context.Context, hash types.Hash) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.layout(hash))
	if errors.Is(err, os.ErrNotExist) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Adapter) Has(ctx context.Context, hash types.Hash) (bool, error) {
	_, err := s.fs.Stat(s.layout(hash))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}
