package storage

import (
	"context"
	"crypto/sha1"
	"errors"
	"testing"

	"hgimport/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashOf(s string) types.Hash { return types.Hash(sha1.Sum([]byte(s))) }

func TestBatch_CommitOrderAndDedup(t *testing.T) {
	var got []Object
	b := NewBatch(func(_ context.Context, objs []Object) error {
		got = objs
		return nil
	})

	b.Put(hashOf("child"), []byte("child"))
	b.Put(hashOf("parent"), []byte("parent"))
	b.Put(hashOf("child"), []byte("ignored"))

	assert.Equal(t, 2, b.Len())
	assert.True(t, b.Staged(hashOf("child")))
	assert.False(t, b.Staged(hashOf("other")))

	require.NoError(t, b.Commit(context.Background()))
	require.Len(t, got, 2)
	assert.Equal(t, hashOf("child"), got[0].Hash)
	assert.Equal(t, []byte("child"), got[0].Data)
	assert.Equal(t, hashOf("parent"), got[1].Hash)

	assert.ErrorIs(t, b.Commit(context.Background()), ErrBatchClosed)
}

func TestBatch_Discard(t *testing.T) {
	called := false
	b := NewBatch(func(context.Context, []Object) error {
		called = true
		return nil
	})
	b.Put(hashOf("a"), []byte("a"))
	b.Discard()
	b.Discard()

	assert.Zero(t, b.Len())
	assert.ErrorIs(t, b.Commit(context.Background()), ErrBatchClosed)
	assert.False(t, called)
}

func TestBatch_CommitError(t *testing.T) {
	boom := errors.New("boom")
	b := NewBatch(func(context.Context, []Object) error { return boom })
	b.Put(hashOf("a"), nil)
	assert.ErrorIs(t, b.Commit(context.Background()), boom)
}

func TestBatch_EmptyCommitSkipsBackend(t *testing.T) {
	b := NewBatch(func(context.Context, []Object) error {
		t.Fatal("commit func should not run for an empty batch")
		return nil
	})
	assert.NoError(t, b.Commit(context.Background()))
}
