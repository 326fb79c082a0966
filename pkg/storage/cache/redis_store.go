package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"hgimport/pkg/storage"
	"hgimport/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 存在性缓存
type CachedStore struct {
	backend storage.Store // 被装饰的底层存储 (如 S3)
	client  *redis.Client
	ttl     time.Duration
	log     *slog.Logger
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
	Logger   *slog.Logger
}

// NewCachedStore 解析 URL 并在返回前检查连接
func NewCachedStore(backend storage.Store, cfg Config) (*CachedStore, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(backend, client, cfg.TTL, cfg.Logger), nil
}

// NewWithClient 使用已有的客户端，不做连接检查
func NewWithClient(backend storage.Store, client *redis.Client, ttl time.Duration, log *slog.Logger) *CachedStore {
	if log == nil {
		log = slog.Default()
	}
	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     ttl,
		log:     log.With(slog.String("component", "cache")),
	}
}

func (s *CachedStore) Close() error { return s.client.Close() }

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (s *CachedStore) cacheKey(hash types.Hash) string {
	return "hgimport:obj:" + hash.String()
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	key := s.cacheKey(hash)

	// 1. 查 Redis，Exists 返回 1 表示存在
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 缓存故障降级为无缓存模式
		s.log.Warn("redis exists failed, falling back to backend", slog.String("err", err.Error()))
	} else if val > 0 {
		return true, nil
	}

	// 2. 缓存未命中，查底层存储
	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}

	// 3. 缓存回填：异步写入，不阻塞主流程
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, "1", s.ttl)
		}()
	}
	return found, nil
}

// Get 透传，不缓存对象内容
func (s *CachedStore) Get(ctx context.Context, hash types.Hash) ([]byte, error) {
	return s.backend.Get(ctx, hash)
}

func (s *CachedStore) BeginWriteBatch() storage.WriteBatch {
	return &cachedBatch{WriteBatch: s.backend.BeginWriteBatch(), store: s}
}

// markAll 在底层提交成功之后写入缓存
func (s *CachedStore) markAll(ctx context.Context, hashes []types.Hash) {
	if len(hashes) == 0 {
		return
	}
	pipe := s.client.Pipeline()
	for _, h := range hashes {
		pipe.Set(ctx, s.cacheKey(h), "1", s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn("redis mark failed", slog.Int("keys", len(hashes)), slog.String("err", err.Error()))
	}
}

type cachedBatch struct {
	storage.WriteBatch
	store  *CachedStore
	hashes []types.Hash
}

func (b *cachedBatch) Put(hash types.Hash, data []byte) {
	if !b.WriteBatch.Staged(hash) {
		b.hashes = append(b.hashes, hash)
	}
	b.WriteBatch.Put(hash, data)
}

func (b *cachedBatch) Commit(ctx context.Context) error {
	if err := b.WriteBatch.Commit(ctx); err != nil {
		return err
	}
	// 只有底层提交成功了，才写 Redis
	b.store.markAll(ctx, b.hashes)
	b.hashes = nil
	return nil
}

func (b *cachedBatch) Discard() {
	b.WriteBatch.Discard()
	b.hashes = nil
}
