package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexCheckAndMark(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	res, err := idx.CheckAndMark(ctx, "fp1", "linkedin:1")
	require.NoError(t, err)
	assert.Equal(t, ResultNew, res)

	res, err = idx.CheckAndMark(ctx, "fp1", "indeed:9")
	require.NoError(t, err)
	assert.Equal(t, ResultDuplicate, res)

	// The first claimant keeps the entry.
	entry, ok, err := idx.Entry(ctx, "fp1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "linkedin:1", entry.CanonicalID)
	assert.Equal(t, 1, idx.Len())
}

func TestMemoryIndexDuplicateAdvancesLastSeen(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_, err := idx.CheckAndMark(ctx, "fp1", "linkedin:1")
	require.NoError(t, err)
	first, _, err := idx.Entry(ctx, "fp1")
	require.NoError(t, err)

	_, err = idx.CheckAndMark(ctx, "fp1", "linkedin:1")
	require.NoError(t, err)
	second, _, err := idx.Entry(ctx, "fp1")
	require.NoError(t, err)

	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
	assert.False(t, second.LastSeenAt.Before(first.LastSeenAt))
}

func TestMemoryIndexConcurrentClaim(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	const goroutines = 64
	var news int64
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := idx.CheckAndMark(ctx, "contested", "site:1")
			if err == nil && res == ResultNew {
				atomic.AddInt64(&news, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), news, "exactly one goroutine may claim a fingerprint")
}

func TestMemoryIndexForget(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_, err := idx.CheckAndMark(ctx, "fp1", "linkedin:1")
	require.NoError(t, err)
	require.NoError(t, idx.Forget(ctx, "fp1"))

	res, err := idx.CheckAndMark(ctx, "fp1", "linkedin:1")
	require.NoError(t, err)
	assert.Equal(t, ResultNew, res, "a forgotten fingerprint is claimable again")
}
