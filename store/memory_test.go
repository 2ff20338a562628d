package store

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	ClientID string
	Seq      int
}

func TestMemoryStoreSaveLoad(t *testing.T) {
	s := NewMemoryStore[record]()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "c1", record{ClientID: "c1", Seq: 1}))

	got, err := s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, record{ClientID: "c1", Seq: 1}, got)

	// save overwrites
	require.NoError(t, s.Save(ctx, "c1", record{ClientID: "c1", Seq: 2}))
	got, err = s.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Seq)
}

func TestMemoryStoreLoadMissing(t *testing.T) {
	s := NewMemoryStore[record]()
	defer s.Close()

	_, err := s.Load(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore[record]()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "c1", record{}))
	require.NoError(t, s.Delete(ctx, "c1"))

	_, err := s.Load(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	// deleting again is not an error
	assert.NoError(t, s.Delete(ctx, "c1"))
}

func TestMemoryStoreExistsListCount(t *testing.T) {
	s := NewMemoryStore[record]()
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "c1", record{}))
	require.NoError(t, s.Save(ctx, "c2", record{}))

	ok, err := s.Exists(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Exists(ctx, "c3")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c1", "c2"}, keys)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore[record]()
	require.NoError(t, s.Close())
	ctx := context.Background()

	assert.ErrorIs(t, s.Save(ctx, "c1", record{}), ErrStoreClosed)
	_, err := s.Load(ctx, "c1")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Delete(ctx, "c1"), ErrStoreClosed)
	_, err = s.Exists(ctx, "c1")
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.List(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.Close(), ErrStoreClosed)
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore[record]()
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Save(ctx, "c1", record{}), context.Canceled)
	_, err := s.Load(ctx, "c1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewMemoryStore[record]()
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("c%d", i)
			_ = s.Save(ctx, key, record{ClientID: key, Seq: i})
			_, _ = s.Load(ctx, key)
		}(i)
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)
}
