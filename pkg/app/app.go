package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"hgimport/pkg/helper"
	"hgimport/pkg/importer"
	"hgimport/pkg/meta"
	"hgimport/pkg/storage"
	"hgimport/pkg/storage/bolt"
	"hgimport/pkg/storage/cache"
	"hgimport/pkg/storage/disk"
	"hgimport/pkg/storage/memory"
	"hgimport/pkg/storage/s3"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有 "单例" 服务；importer 实例按需创建
type App struct {
	Store      storage.Store
	DB         *meta.DB
	Repository *meta.Repository
	Logger     *slog.Logger

	closers []io.Closer
}

// NewApp 是工厂函数，按 Viper 中的配置组装存储层和元数据库
// 它不知道具体的 CLI 命令
func NewApp(ctx context.Context, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}
	a := &App{Logger: log}

	// 1. 初始化存储层
	store, err := initStore(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	// 2. 可选的 Redis 存在性缓存
	if url := viper.GetString("redis.url"); url != "" {
		cached, err := cache.NewCachedStore(store, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("redis.ttl"),
			Logger:   log,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, cached)
		store = cached
	}
	a.Store = store

	// 3. 元数据库 (来源映射与导入历史)
	db, err := initMeta(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.DB = db
	a.Repository = meta.NewRepository(db)
	return a, nil
}

// initStore 根据 storage.type 选择对象库实现
func initStore(ctx context.Context, log *slog.Logger) (storage.Store, error) {
	switch t := viper.GetString("storage.type"); t {
	case "memory":
		return memory.New(), nil

	case "disk", "":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		return disk.NewAdapter(path)

	case "bolt":
		path := viper.GetString("storage.path")
		if path == "" {
			return nil, fmt.Errorf("storage path not set")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return bolt.Open(path)

	case "s3":
		cfg := s3.Config{
			Endpoint:        viper.GetString("s3.endpoint"),
			Region:          viper.GetString("s3.region"),
			Bucket:          viper.GetString("s3.bucket"),
			Prefix:          viper.GetString("s3.prefix"),
			AccessKeyID:     viper.GetString("s3.access_key"),
			SecretAccessKey: viper.GetString("s3.secret_key"),
			Logger:          log,
		}
		if cfg.Bucket == "" {
			return nil, errors.New("s3 bucket is required")
		}
		return s3.NewAdapter(ctx, cfg)

	default:
		return nil, fmt.Errorf("unsupported storage type: %s", t)
	}
}

func initMeta(ctx context.Context) (*meta.DB, error) {
	cfg := meta.Config{
		Driver: viper.GetString("meta.driver"),
		DSN:    viper.GetString("meta.dsn"),
		Debug:  viper.GetBool("meta.debug"),
	}
	if cfg.Driver == "sqlite" && cfg.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o755); err != nil {
			return nil, err
		}
	}
	return meta.NewDB(ctx, cfg)
}

// HelperConfig 返回启动 helper 进程的配置
func (a *App) HelperConfig() helper.Config {
	return helper.Config{
		Command:         viper.GetString("helper.command"),
		Args:            viper.GetStringSlice("helper.args"),
		RepoPath:        viper.GetString("repo.path"),
		ShutdownTimeout: viper.GetDuration("helper.shutdown_timeout"),
		Logger:          a.Logger,
	}
}

// NewImporter 启动一个新的 helper 进程并返回独占它的 Importer
func (a *App) NewImporter(ctx context.Context) (*importer.Importer, error) {
	var origins importer.OriginIndex
	if a.Repository != nil {
		origins = a.Repository
	}
	return importer.New(ctx, importer.Config{Helper: a.HelperConfig(), Logger: a.Logger}, a.Store, origins)
}

// Close 按创建的逆序关闭全部资源
func (a *App) Close() error {
	var errs []error
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}
