// Package scheduler provides the kernel's priority structure over candidate
// events: push a (time, handle) pair, peek at the globally smallest time,
// cancel by handle.
//
// The queue is an indexed binary min heap: a position map per handle makes
// cancellation O(log n) and enforces the invariant that a handle never owns
// more than one live entry. Ties between equal times are broken by a
// monotonic insertion counter, never by float identity or map order, so
// replays of the same run reproduce the same commit sequence.
package scheduler

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/avandermeer/eventchain/pkg/eventchain/simtime"
)

var (
	// ErrEmpty is returned by PeekMin when no live entries exist.
	ErrEmpty = errors.New("scheduler: no live entries")

	// ErrDuplicateEntry is returned by Push when the handle already owns a
	// live entry. At most one candidate event per handler may be scheduled.
	ErrDuplicateEntry = errors.New("scheduler: handle already owns a live entry")

	// ErrNotFound is returned by Cancel when the handle owns no live entry.
	// Cancelling an absent entry is a kernel invariant violation, not a
	// recoverable condition.
	ErrNotFound = errors.New("scheduler: no live entry for handle")
)

// TimeOrderError reports a peek that returned a time earlier than a
// previously returned one. Event times must never decrease during a run;
// a decrease means an upstream handler produced an inconsistent candidate.
type TimeOrderError struct {
	Last simtime.Time
	Next simtime.Time
}

func (e *TimeOrderError) Error() string {
	return fmt.Sprintf("scheduler: event time %s is earlier than the previously returned %s", e.Next, e.Last)
}

// Entry is one live scheduled event, exposed for run snapshots.
type Entry[H comparable] struct {
	Time   simtime.Time `json:"time"`
	Seq    uint64       `json:"seq"`
	Handle H            `json:"handle"`
}

type config struct {
	warnOnEqual bool
	logger      *slog.Logger
}

// Option configures a Queue.
type Option func(*config)

// WithWarnOnEqual logs a warning whenever two distinct entries are returned
// with exactly equal times. Equal times are legal but often indicate a
// degenerate configuration worth knowing about.
func WithWarnOnEqual() Option {
	return func(c *config) { c.warnOnEqual = true }
}

// WithLogger sets the logger used by WithWarnOnEqual. A nil logger disables
// the warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// Queue is the indexed min heap of candidate events. It is not safe for
// concurrent use; each run's mediator exclusively owns one queue.
type Queue[H comparable] struct {
	heap []Entry[H]
	pos  map[H]int
	seq  uint64

	last    simtime.Time
	lastSeq uint64
	hasLast bool

	cfg config
}

// New returns an empty queue.
func New[H comparable](opts ...Option) *Queue[H] {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Queue[H]{pos: make(map[H]int), cfg: cfg}
}

// Len returns the number of live entries.
func (q *Queue[H]) Len() int { return len(q.heap) }

// Push inserts a candidate event. Infinite times are stored like any other
// so that a later Cancel of the handle stays valid.
func (q *Queue[H]) Push(t simtime.Time, h H) error {
	if _, ok := q.pos[h]; ok {
		return fmt.Errorf("push of %v: %w", h, ErrDuplicateEntry)
	}
	q.seq++
	q.heap = append(q.heap, Entry[H]{Time: t, Seq: q.seq, Handle: h})
	q.pos[h] = len(q.heap) - 1
	q.siftUp(len(q.heap) - 1)
	return nil
}

// PeekMin returns the handle owning the globally smallest time without
// removing it. It is callable repeatedly. A result earlier than a previously
// returned time fails with a TimeOrderError.
func (q *Queue[H]) PeekMin() (H, simtime.Time, error) {
	if len(q.heap) == 0 {
		var zero H
		return zero, simtime.Time{}, ErrEmpty
	}
	min := q.heap[0]
	if q.hasLast {
		switch c := min.Time.Compare(q.last); {
		case c < 0:
			var zero H
			return zero, simtime.Time{}, &TimeOrderError{Last: q.last, Next: min.Time}
		case c == 0 && min.Seq != q.lastSeq && q.cfg.warnOnEqual && q.cfg.logger != nil:
			q.cfg.logger.Warn("equal succeeding event times",
				slog.String("time", min.Time.String()))
		}
	}
	q.last, q.lastSeq, q.hasLast = min.Time, min.Seq, true
	return min.Handle, min.Time, nil
}

// Cancel removes the live entry owned by h, re-establishing heap order.
func (q *Queue[H]) Cancel(h H) error {
	i, ok := q.pos[h]
	if !ok {
		return fmt.Errorf("cancel of %v: %w", h, ErrNotFound)
	}
	delete(q.pos, h)
	last := len(q.heap) - 1
	if i != last {
		q.heap[i] = q.heap[last]
		q.pos[q.heap[i].Handle] = i
	}
	q.heap = q.heap[:last]
	if i < last {
		q.siftDown(i)
		q.siftUp(i)
	}
	return nil
}

// Snapshot returns the live entries in ascending order for run snapshots.
func (q *Queue[H]) Snapshot() []Entry[H] {
	out := append([]Entry[H](nil), q.heap...)
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Restore replaces the queue contents with previously snapshotted entries
// and advances the tie-break counter past the largest restored one.
func (q *Queue[H]) Restore(entries []Entry[H]) error {
	q.heap = q.heap[:0]
	q.pos = make(map[H]int, len(entries))
	q.seq = 0
	q.hasLast = false
	for _, e := range entries {
		if _, ok := q.pos[e.Handle]; ok {
			return fmt.Errorf("restore of %v: %w", e.Handle, ErrDuplicateEntry)
		}
		q.heap = append(q.heap, e)
		q.pos[e.Handle] = len(q.heap) - 1
		if e.Seq > q.seq {
			q.seq = e.Seq
		}
	}
	for i := len(q.heap)/2 - 1; i >= 0; i-- {
		q.siftDown(i)
	}
	return nil
}

func less[H comparable](a, b Entry[H]) bool {
	if c := a.Time.Compare(b.Time); c != 0 {
		return c < 0
	}
	return a.Seq < b.Seq
}

func (q *Queue[H]) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !less(q.heap[i], q.heap[parent]) {
			return
		}
		q.swap(i, parent)
		i = parent
	}
}

func (q *Queue[H]) siftDown(i int) {
	n := len(q.heap)
	for {
		smallest := i
		if l := 2*i + 1; l < n && less(q.heap[l], q.heap[smallest]) {
			smallest = l
		}
		if r := 2*i + 2; r < n && less(q.heap[r], q.heap[smallest]) {
			smallest = r
		}
		if smallest == i {
			return
		}
		q.swap(i, smallest)
		i = smallest
	}
}

func (q *Queue[H]) swap(i, j int) {
	q.heap[i], q.heap[j] = q.heap[j], q.heap[i]
	q.pos[q.heap[i].Handle] = i
	q.pos[q.heap[j].Handle] = j
}
