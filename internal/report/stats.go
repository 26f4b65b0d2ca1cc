// Package report aggregates session statistics and task results into the
// JSON report written at the end of every ingestion session.
package report

import "sync/atomic"

// Stats holds the counters of one session. All methods are safe for
// concurrent use; pipeline instances running in parallel tasks share one.
type Stats struct {
	seen            atomic.Int64
	validated       atomic.Int64
	validationDrops atomic.Int64
	duplicates      atomic.Int64
	classified      atomic.Int64
	persisted       atomic.Int64
	storageErrors   atomic.Int64
	batchesOK       atomic.Int64
	batchesFailed   atomic.Int64
	itemsAccepted   atomic.Int64
	itemsRejected   atomic.Int64
	tasksRun        atomic.Int64
	taskErrors      atomic.Int64
}

// NewStats returns zeroed counters.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) RecordSeen()           { s.seen.Add(1) }
func (s *Stats) RecordValidated()      { s.validated.Add(1) }
func (s *Stats) RecordValidationDrop() { s.validationDrops.Add(1) }
func (s *Stats) RecordDuplicate()      { s.duplicates.Add(1) }
func (s *Stats) RecordClassified()     { s.classified.Add(1) }
func (s *Stats) RecordPersisted()      { s.persisted.Add(1) }
func (s *Stats) RecordStorageError()   { s.storageErrors.Add(1) }
func (s *Stats) RecordTaskRun()        { s.tasksRun.Add(1) }
func (s *Stats) RecordTaskError()      { s.taskErrors.Add(1) }

// RecordBatch records the result of one ingestion batch.
func (s *Stats) RecordBatch(ok bool, accepted, rejected int) {
	if ok {
		s.batchesOK.Add(1)
	} else {
		s.batchesFailed.Add(1)
	}
	s.itemsAccepted.Add(int64(accepted))
	s.itemsRejected.Add(int64(rejected))
}

// RecordIngestRejected counts items rejected locally from a batch that was
// never sent because none of its items were valid.
func (s *Stats) RecordIngestRejected(n int) { s.itemsRejected.Add(int64(n)) }

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	RecordsSeen     int64 `json:"records_seen"`
	Validated       int64 `json:"validated"`
	ValidationDrops int64 `json:"validation_drops"`
	Duplicates      int64 `json:"duplicates_dropped"`
	Classified      int64 `json:"classified"`
	Persisted       int64 `json:"persisted"`
	StorageErrors   int64 `json:"storage_errors"`
	BatchesOK       int64 `json:"ingest_batches_succeeded"`
	BatchesFailed   int64 `json:"ingest_batches_failed"`
	ItemsAccepted   int64 `json:"ingest_items_accepted"`
	ItemsRejected   int64 `json:"ingest_items_rejected"`
	TasksRun        int64 `json:"tasks_run"`
	TaskErrors      int64 `json:"task_errors"`
}

// Snapshot copies the current counter values. Counters are read one at a
// time, so a snapshot taken mid-session is not a single atomic cut.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RecordsSeen:     s.seen.Load(),
		Validated:       s.validated.Load(),
		ValidationDrops: s.validationDrops.Load(),
		Duplicates:      s.duplicates.Load(),
		Classified:      s.classified.Load(),
		Persisted:       s.persisted.Load(),
		StorageErrors:   s.storageErrors.Load(),
		BatchesOK:       s.batchesOK.Load(),
		BatchesFailed:   s.batchesFailed.Load(),
		ItemsAccepted:   s.itemsAccepted.Load(),
		ItemsRejected:   s.itemsRejected.Load(),
		TasksRun:        s.tasksRun.Load(),
		TaskErrors:      s.taskErrors.Load(),
	}
}
