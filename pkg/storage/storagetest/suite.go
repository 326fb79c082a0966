// Package storagetest 是所有 storage.Store 实现共用的行为测试
package storagetest

import (
	"context"
	"crypto/sha1"
	"fmt"
	"sync"
	"testing"

	"hgimport/pkg/storage"
	"hgimport/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(s string) types.Hash { return types.Hash(sha1.Sum([]byte(s))) }

// Run 对 newStore 返回的每个新实例执行完整的行为测试
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), hashOf("missing"))
		assert.ErrorIs(t, err, storage.ErrNotFound)

		ok, err := s.Has(context.Background(), hashOf("missing"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("CommitMakesVisible", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		b := s.BeginWriteBatch()
		b.Put(hashOf("a"), []byte("alpha"))
		b.Put(hashOf("b"), []byte("beta"))

		// 提交之前不可见
		ok, err := s.Has(ctx, hashOf("a"))
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.Commit(ctx))

		data, err := s.Get(ctx, hashOf("a"))
		require.NoError(t, err)
		assert.Equal(t, []byte("alpha"), data)
		ok, err = s.Has(ctx, hashOf("b"))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("DiscardWritesNothing", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		b := s.BeginWriteBatch()
		b.Put(hashOf("gone"), []byte("x"))
		b.Discard()

		assert.ErrorIs(t, b.Commit(ctx), storage.ErrBatchClosed)
		ok, err := s.Has(ctx, hashOf("gone"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("IdempotentWrites", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		for i := 0; i < 2; i++ {
			b := s.BeginWriteBatch()
			b.Put(hashOf("same"), []byte("content"))
			require.NoError(t, b.Commit(ctx))
		}
		data, err := s.Get(ctx, hashOf("same"))
		require.NoError(t, err)
		assert.Equal(t, []byte("content"), data)
	})

	t.Run("EmptyObject", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		b := s.BeginWriteBatch()
		b.Put(hashOf("empty"), nil)
		require.NoError(t, b.Commit(ctx))

		data, err := s.Get(ctx, hashOf("empty"))
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("ConcurrentWriters", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				b := s.BeginWriteBatch()
				for i := 0; i < 20; i++ {
					// 一半对象在所有写入者之间共享
					key := fmt.Sprintf("obj-%d", i)
					if i%2 == 1 {
						key = fmt.Sprintf("obj-%d-%d", w, i)
					}
					b.Put(hashOf(key), []byte(key))
				}
				errs <- b.Commit(ctx)
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		data, err := s.Get(ctx, hashOf("obj-4"))
		require.NoError(t, err)
		assert.Equal(t, []byte("obj-4"), data)
		data, err = s.Get(ctx, hashOf("obj-7-3"))
		require.NoError(t, err)
		assert.Equal(t, []byte("obj-7-3"), data)
	})
}
