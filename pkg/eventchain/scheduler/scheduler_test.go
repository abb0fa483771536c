package scheduler

import (
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
)

// TestPeekMinOrdering verifies the selection and cancellation scenario:
// after pushing (1.0,A), (0.5,B), (0.7,C), the minimum is B, and cancelling
// B promotes C.
func TestPeekMinOrdering(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Push(simtime.FromFloat(1.0), "A"))
	require.NoError(t, q.Push(simtime.FromFloat(0.5), "B"))
	require.NoError(t, q.Push(simtime.FromFloat(0.7), "C"))

	h, tm, err := q.PeekMin()
	require.NoError(t, err)
	assert.Equal(t, "B", h)
	assert.True(t, tm.Equal(simtime.FromFloat(0.5)))

	require.NoError(t, q.Cancel("B"))

	h, tm, err = q.PeekMin()
	require.NoError(t, err)
	assert.Equal(t, "C", h)
	assert.True(t, tm.Equal(simtime.FromFloat(0.7)))
}

// TestPeekMinEmpty verifies the empty-queue error.
func TestPeekMinEmpty(t *testing.T) {
	q := New[string]()
	_, _, err := q.PeekMin()
	assert.ErrorIs(t, err, ErrEmpty)
}

// TestPeekMinRepeatable verifies that peeking does not remove the entry.
func TestPeekMinRepeatable(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Push(simtime.FromFloat(2.0), "A"))

	for i := 0; i < 3; i++ {
		h, _, err := q.PeekMin()
		require.NoError(t, err)
		assert.Equal(t, "A", h)
	}
	assert.Equal(t, 1, q.Len())
}

// TestDuplicatePush verifies that a handle never owns two live entries.
func TestDuplicatePush(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Push(simtime.FromFloat(1.0), "A"))

	err := q.Push(simtime.FromFloat(2.0), "A")
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	// After cancelling, the handle can be pushed again.
	require.NoError(t, q.Cancel("A"))
	assert.NoError(t, q.Push(simtime.FromFloat(2.0), "A"))
}

// TestCancelAbsent verifies that cancelling a handle without a live entry
// fails with ErrNotFound.
func TestCancelAbsent(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Push(simtime.FromFloat(1.0), "A"))

	err := q.Cancel("B")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, q.Cancel("A"))
	err = q.Cancel("A")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestTieBreakByInsertionOrder verifies that equal times resolve in push
// order via the monotonic counter.
func TestTieBreakByInsertionOrder(t *testing.T) {
	q := New[string]()
	tm := simtime.FromFloat(3.0)
	require.NoError(t, q.Push(tm, "first"))
	require.NoError(t, q.Push(tm, "second"))
	require.NoError(t, q.Push(tm, "third"))

	h, _, err := q.PeekMin()
	require.NoError(t, err)
	assert.Equal(t, "first", h)

	require.NoError(t, q.Cancel("first"))
	h, _, err = q.PeekMin()
	require.NoError(t, err)
	assert.Equal(t, "second", h)
}

// TestInfiniteTimesAreLiveEntries verifies that handlers armed with an
// infinite candidate time still own a cancellable entry.
func TestInfiniteTimesAreLiveEntries(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Push(simtime.Infinity, "never"))
	require.NoError(t, q.Push(simtime.FromFloat(1.0), "soon"))

	h, _, err := q.PeekMin()
	require.NoError(t, err)
	assert.Equal(t, "soon", h)

	assert.NoError(t, q.Cancel("never"))
}

// TestTimeOrderGuard verifies that a peek returning an earlier time than a
// previously returned one fails.
func TestTimeOrderGuard(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Push(simtime.FromFloat(5.0), "A"))

	_, _, err := q.PeekMin()
	require.NoError(t, err)

	require.NoError(t, q.Cancel("A"))
	require.NoError(t, q.Push(simtime.FromFloat(3.0), "B"))

	_, _, err = q.PeekMin()
	var orderErr *TimeOrderError
	require.ErrorAs(t, err, &orderErr)
	assert.True(t, orderErr.Next.Before(orderErr.Last))
}

// TestSnapshotRestore verifies that the live entries and the tie-break
// counter survive a snapshot/restore cycle.
func TestSnapshotRestore(t *testing.T) {
	q := New[string]()
	require.NoError(t, q.Push(simtime.FromFloat(1.0), "A"))
	require.NoError(t, q.Push(simtime.FromFloat(0.5), "B"))
	require.NoError(t, q.Push(simtime.FromFloat(0.5), "C"))

	entries := q.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "B", entries[0].Handle)

	restored := New[string]()
	require.NoError(t, restored.Restore(entries))
	assert.Equal(t, 3, restored.Len())

	h, _, err := restored.PeekMin()
	require.NoError(t, err)
	assert.Equal(t, "B", h)

	// The counter continues past the restored entries, so a new push at an
	// equal time sorts after them.
	require.NoError(t, restored.Cancel("B"))
	require.NoError(t, restored.Push(simtime.FromFloat(0.5), "D"))
	h, _, err = restored.PeekMin()
	require.NoError(t, err)
	assert.Equal(t, "C", h)
}

// TestRestoreRejectsDuplicateHandles verifies the uniqueness invariant on
// restore.
func TestRestoreRejectsDuplicateHandles(t *testing.T) {
	q := New[string]()
	err := q.Restore([]Entry[string]{
		{Time: simtime.FromFloat(1.0), Seq: 1, Handle: "A"},
		{Time: simtime.FromFloat(2.0), Seq: 2, Handle: "A"},
	})
	assert.ErrorIs(t, err, ErrDuplicateEntry)
}

// TestRandomizedAgainstReference verifies, over a random push/cancel
// sequence with growing times, that the peeked minimum always matches a
// straightforward reference model and that every handle owns at most one
// live entry.
func TestRandomizedAgainstReference(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	q := New[string]()
	reference := make(map[string]simtime.Time)
	watermark := 0.0
	next := 0

	for op := 0; op < 500; op++ {
		if len(reference) == 0 || r.Float64() < 0.6 {
			name := "h" + strconv.Itoa(next)
			next++
			tm := simtime.FromFloat(watermark + r.Float64()*10.0)
			require.NoError(t, q.Push(tm, name))
			reference[name] = tm
		} else {
			for name := range reference {
				require.NoError(t, q.Cancel(name))
				delete(reference, name)
				break
			}
		}

		require.Equal(t, len(reference), q.Len())
		if len(reference) == 0 {
			continue
		}

		h, tm, err := q.PeekMin()
		require.NoError(t, err)
		watermark = tm.Float()

		refTime, ok := reference[h]
		require.True(t, ok)
		assert.True(t, tm.Equal(refTime))
		for _, other := range reference {
			assert.False(t, other.Before(tm))
		}
	}
}
