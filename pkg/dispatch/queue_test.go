package dispatch_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/stackvity/asset-compiler/internal/testutil"
	"github.com/stackvity/asset-compiler/pkg/dispatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue_ClaimsFromTheBack(t *testing.T) {
	q := dispatch.NewWorkQueue()
	recs := testutil.Records("/src", "", "txt", 3)
	q.Push(recs...)

	snap := q.Snapshot()
	require.True(t, snap.HasNext)
	assert.Equal(t, recs[2], snap.Next)

	for i := 2; i >= 0; i-- {
		rec, ok := q.TryClaimNext()
		require.True(t, ok)
		assert.Equal(t, recs[i], rec)
	}
	_, ok := q.TryClaimNext()
	assert.False(t, ok, "empty queue must signal termination")
	assert.False(t, q.Snapshot().HasNext)
}

func TestWorkQueue_ReportsRouteToBuckets(t *testing.T) {
	q := dispatch.NewWorkQueue()
	recs := testutil.Records("/src", "", "txt", 4)
	boom := errors.New("boom")

	q.ReportConverted(recs[0])
	q.ReportFailed(recs[1], boom)
	q.ReportFailed(recs[2], nil)
	q.ReportOutOfMemory(recs[3])

	snap := q.Snapshot()
	assert.Equal(t, dispatch.Snapshot{Converted: 1, Failed: 2, OutOfMemory: 1}, snap)
	assert.Equal(t, 4, snap.Processed())
	assert.Equal(t, []dispatch.FileRecord{recs[0]}, q.Converted())
	assert.Equal(t, []dispatch.FileRecord{recs[1], recs[2]}, q.Failed())
	assert.Equal(t, []dispatch.FileRecord{recs[3]}, q.OutOfMemory())
	assert.ErrorIs(t, q.FailureCause(recs[1]), boom)
	assert.ErrorIs(t, q.FailureCause(recs[2]), dispatch.ErrConversionFailed)
	assert.NoError(t, q.FailureCause(recs[0]))
}

func TestWorkQueue_OutOfMemoryMoves(t *testing.T) {
	recs := testutil.Records("/src", "", "png", 3)

	t.Run("Drain into pending", func(t *testing.T) {
		q := dispatch.NewWorkQueue()
		for _, r := range recs {
			q.ReportOutOfMemory(r)
		}
		assert.Equal(t, 3, q.DrainOutOfMemoryIntoPending())
		assert.Empty(t, q.OutOfMemory())
		assert.Equal(t, recs, q.Pending())
		assert.Equal(t, 0, q.DrainOutOfMemoryIntoPending())
	})

	t.Run("Fail permanently", func(t *testing.T) {
		q := dispatch.NewWorkQueue()
		for _, r := range recs {
			q.ReportOutOfMemory(r)
		}
		moved := q.FailOutOfMemory(dispatch.ErrOutOfMemory)
		assert.Equal(t, recs, moved)
		assert.Empty(t, q.OutOfMemory())
		assert.Equal(t, recs, q.Failed())
		assert.ErrorIs(t, q.FailureCause(recs[1]), dispatch.ErrOutOfMemory)
	})
}

func TestWorkQueue_FailPending(t *testing.T) {
	q := dispatch.NewWorkQueue()
	recs := testutil.Records("/src", "", "txt", 5)
	q.Push(recs...)

	moved := q.FailPending(dispatch.ErrCancelled)
	assert.Len(t, moved, 5)
	assert.Empty(t, q.Pending())
	assert.Len(t, q.Failed(), 5)
	assert.ErrorIs(t, q.FailureCause(recs[4]), dispatch.ErrCancelled)
	assert.Empty(t, q.FailPending(dispatch.ErrCancelled), "second bulk move finds nothing")
}

func TestWorkQueue_CopiesAreIndependent(t *testing.T) {
	q := dispatch.NewWorkQueue()
	recs := testutil.Records("/src", "", "txt", 2)
	q.Push(recs...)

	pending := q.Pending()
	pending[0] = dispatch.FileRecord{}
	assert.Equal(t, recs, q.Pending())
}

func TestWorkQueue_ConcurrentClaimsAreExclusive(t *testing.T) {
	const n = 2000
	q := dispatch.NewWorkQueue()
	recs := testutil.Records("/src", "", "txt", n)
	q.Push(recs...)

	var mu sync.Mutex
	seen := make(map[string]int, n)
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				rec, ok := q.TryClaimNext()
				if !ok {
					return
				}
				mu.Lock()
				seen[rec.Key()]++
				mu.Unlock()
				q.ReportConverted(rec)
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for key, count := range seen {
		assert.Equal(t, 1, count, "record %s claimed more than once", key)
	}
	assert.Equal(t, dispatch.Snapshot{Converted: n}, q.Snapshot())
}
