package dispatch

import "sync"

// Snapshot is a consistent point-in-time view of the bucket sizes of a WorkQueue.
type Snapshot struct {
	Pending     int `json:"pending"`
	Converted   int `json:"converted"`
	Failed      int `json:"failed"`
	OutOfMemory int `json:"outOfMemory"`
	// Next is the record the next claim would return, if any.
	Next    FileRecord `json:"-"`
	HasNext bool       `json:"-"`
}

// Processed returns the number of records that have left the pending bucket.
func (s Snapshot) Processed() int {
	return s.Converted + s.Failed + s.OutOfMemory
}

// WorkQueue is the single piece of shared mutable state of a run: four
// disjoint ordered sequences of FileRecord guarded by one mutex. Records only
// move between buckets; they are never created or destroyed mid-round.
//
// Every method holds the lock for O(1) work per record. Callers never log,
// convert or do I/O while the lock is held.
type WorkQueue struct {
	mu          sync.Mutex
	pending     []FileRecord
	converted   []FileRecord
	failed      []FileRecord
	outOfMemory []FileRecord
	causes      map[string]error
}

// NewWorkQueue creates an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{causes: make(map[string]error)}
}

// Push appends records to the pending bucket. The last pushed record is the
// first one claimed.
func (q *WorkQueue) Push(records ...FileRecord) {
	q.mu.Lock()
	q.pending = append(q.pending, records...)
	q.mu.Unlock()
}

// TryClaimNext removes and returns the last pending record. The boolean is
// false when nothing is pending, which is the worker termination signal.
func (q *WorkQueue) TryClaimNext() (FileRecord, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.pending)
	if n == 0 {
		return FileRecord{}, false
	}
	rec := q.pending[n-1]
	q.pending[n-1] = FileRecord{}
	q.pending = q.pending[:n-1]
	return rec, true
}

// ReportConverted records a successful conversion.
func (q *WorkQueue) ReportConverted(rec FileRecord) {
	q.mu.Lock()
	q.converted = append(q.converted, rec)
	q.mu.Unlock()
}

// ReportFailed records a permanent failure and its cause.
func (q *WorkQueue) ReportFailed(rec FileRecord, cause error) {
	if cause == nil {
		cause = ErrConversionFailed
	}
	q.mu.Lock()
	q.failed = append(q.failed, rec)
	q.causes[rec.Key()] = cause
	q.mu.Unlock()
}

// ReportOutOfMemory records a conversion that ran out of memory.
func (q *WorkQueue) ReportOutOfMemory(rec FileRecord) {
	q.mu.Lock()
	q.outOfMemory = append(q.outOfMemory, rec)
	q.mu.Unlock()
}

// Snapshot reads all bucket sizes under one lock acquisition.
func (q *WorkQueue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := Snapshot{
		Pending:     len(q.pending),
		Converted:   len(q.converted),
		Failed:      len(q.failed),
		OutOfMemory: len(q.outOfMemory),
	}
	if n := len(q.pending); n > 0 {
		s.Next = q.pending[n-1]
		s.HasNext = true
	}
	return s
}

// DrainOutOfMemoryIntoPending moves every out-of-memory record back into
// pending. Must only be called while no worker is running.
func (q *WorkQueue) DrainOutOfMemoryIntoPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.outOfMemory)
	q.pending = append(q.pending, q.outOfMemory...)
	q.outOfMemory = nil
	return n
}

// FailOutOfMemory moves every out-of-memory record into failed and returns them.
func (q *WorkQueue) FailOutOfMemory(cause error) []FileRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	moved := q.outOfMemory
	q.outOfMemory = nil
	q.failLocked(moved, cause)
	return moved
}

// FailPending moves every pending record into failed in bulk and returns them.
// Used when cancellation is requested.
func (q *WorkQueue) FailPending(cause error) []FileRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	moved := q.pending
	q.pending = nil
	q.failLocked(moved, cause)
	return moved
}

func (q *WorkQueue) failLocked(records []FileRecord, cause error) {
	q.failed = append(q.failed, records...)
	for _, rec := range records {
		q.causes[rec.Key()] = cause
	}
}

// FailureCause returns the cause recorded for a failed record, or nil.
func (q *WorkQueue) FailureCause(rec FileRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.causes[rec.Key()]
}

// Pending returns a copy of the pending bucket.
func (q *WorkQueue) Pending() []FileRecord { return q.copyOf(&q.pending) }

// Converted returns a copy of the converted bucket.
func (q *WorkQueue) Converted() []FileRecord { return q.copyOf(&q.converted) }

// Failed returns a copy of the failed bucket.
func (q *WorkQueue) Failed() []FileRecord { return q.copyOf(&q.failed) }

// OutOfMemory returns a copy of the out-of-memory bucket.
func (q *WorkQueue) OutOfMemory() []FileRecord { return q.copyOf(&q.outOfMemory) }

func (q *WorkQueue) copyOf(bucket *[]FileRecord) []FileRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]FileRecord, len(*bucket))
	copy(out, *bucket)
	return out
}
