package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"hgimport/pkg/importer"

	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed 表示池已经关闭
var ErrPoolClosed = errors.New("importer pool is closed")

// Factory 创建一个新的 Importer (通常是启动一个 helper 进程)
type Factory func(ctx context.Context) (*importer.Importer, error)

// Pool 持有固定数量的 Importer 槽位
//
// 每个 Importer 同一时刻只服务一个请求；并行度来自多个实例。
// 遇到致命错误的实例在归还时被关闭，下一次获取时重新创建。
type Pool struct {
	factory Factory
	size    int
	slots   chan *importer.Importer // nil 表示空槽位
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPool 并发地预先创建 size 个实例
func NewPool(ctx context.Context, size int, factory Factory, log *slog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{
		factory: factory,
		size:    size,
		slots:   make(chan *importer.Importer, size),
		log:     log.With(slog.String("component", "pool")),
	}

	instances := make([]*importer.Importer, size)
	g, gctx := errgroup.WithContext(ctx)
	for i := range instances {
		g.Go(func() error {
			im, err := factory(gctx)
			if err != nil {
				return fmt.Errorf("start importer %d: %w", i, err)
			}
			instances[i] = im
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, im := range instances {
			if im != nil {
				_ = im.Close()
			}
		}
		return nil, err
	}

	for _, im := range instances {
		p.slots <- im
	}
	p.log.Info("importer pool ready", slog.Int("size", size))
	return p, nil
}

// Acquire 等待一个空闲实例，必要时重新创建
func (p *Pool) Acquire(ctx context.Context) (*importer.Importer, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	var im *importer.Importer
	select {
	case im = <-p.slots:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if p.isClosed() {
		p.slots <- im
		return nil, ErrPoolClosed
	}

	if im != nil && im.Err() == nil {
		return im, nil
	}
	if im != nil {
		_ = im.Close()
	}

	fresh, err := p.factory(ctx)
	if err != nil {
		p.slots <- nil
		return nil, fmt.Errorf("restart importer: %w", err)
	}
	p.log.Info("importer restarted")
	return fresh, nil
}

// Release 归还实例；err 是它刚刚返回的错误
func (p *Pool) Release(im *importer.Importer, err error) {
	if importer.IsFatal(err) || im.Err() != nil {
		p.log.Warn("discarding broken importer", slog.String("err", errString(err, im.Err())))
		_ = im.Close()
		im = nil
	}
	p.slots <- im
}

// Close 等待全部实例归还并关闭它们
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for range p.size {
		if im := <-p.slots; im != nil {
			errs = append(errs, im.Close())
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func errString(errs ...error) string {
	for _, err := range errs {
		if err != nil {
			return err.Error()
		}
	}
	return ""
}
