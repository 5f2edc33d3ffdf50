package treepool

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// A collector may be shared by contexts running on different goroutines and
// must be safe for concurrent use.
type MetricsCollector interface {
	// RecordAllocation is called after each node allocation.
	// size is the record size in bytes, err is nil if successful.
	RecordAllocation(size int, err error)

	// RecordClone is called after each deep copy attempt.
	RecordClone(duration time.Duration, err error)

	// RecordMove is called after each move that relocated bytes.
	RecordMove(bytes int)

	// RecordRelease is called after each handle release.
	// reclaimed is the number of records destroyed by it.
	RecordRelease(reclaimed int)

	// RecordSubstitution is called after a subtree was replaced by a failure sentinel.
	// reclaimed is the number of records of the replaced subtree.
	RecordSubstitution(reclaimed int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAllocation(int, error)      {}
func (NoopMetricsCollector) RecordClone(time.Duration, error) {}
func (NoopMetricsCollector) RecordMove(int)                   {}
func (NoopMetricsCollector) RecordRelease(int)                {}
func (NoopMetricsCollector) RecordSubstitution(int)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AllocationCount   atomic.Int64
	AllocationErrors  atomic.Int64
	AllocatedBytes    atomic.Int64
	CloneCount        atomic.Int64
	CloneErrors       atomic.Int64
	CloneTotalNanos   atomic.Int64
	MoveCount         atomic.Int64
	MovedBytes        atomic.Int64
	ReleaseCount      atomic.Int64
	ReclaimedNodes    atomic.Int64
	SubstitutionCount atomic.Int64
	SubstitutedNodes  atomic.Int64
}

// RecordAllocation implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAllocation(size int, err error) {
	b.AllocationCount.Add(1)
	if err != nil {
		b.AllocationErrors.Add(1)
		return
	}
	b.AllocatedBytes.Add(int64(size))
}

// RecordClone implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClone(duration time.Duration, err error) {
	b.CloneCount.Add(1)
	b.CloneTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CloneErrors.Add(1)
	}
}

// RecordMove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMove(bytes int) {
	b.MoveCount.Add(1)
	b.MovedBytes.Add(int64(bytes))
}

// RecordRelease implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRelease(reclaimed int) {
	b.ReleaseCount.Add(1)
	b.ReclaimedNodes.Add(int64(reclaimed))
}

// RecordSubstitution implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSubstitution(reclaimed int) {
	b.SubstitutionCount.Add(1)
	b.SubstitutedNodes.Add(int64(reclaimed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocationCount:   b.AllocationCount.Load(),
		AllocationErrors:  b.AllocationErrors.Load(),
		AllocatedBytes:    b.AllocatedBytes.Load(),
		CloneCount:        b.CloneCount.Load(),
		CloneErrors:       b.CloneErrors.Load(),
		CloneAvgNanos:     b.getAvgCloneNanos(),
		MoveCount:         b.MoveCount.Load(),
		MovedBytes:        b.MovedBytes.Load(),
		ReleaseCount:      b.ReleaseCount.Load(),
		ReclaimedNodes:    b.ReclaimedNodes.Load(),
		SubstitutionCount: b.SubstitutionCount.Load(),
		SubstitutedNodes:  b.SubstitutedNodes.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgCloneNanos() int64 {
	count := b.CloneCount.Load()
	if count == 0 {
		return 0
	}
	return b.CloneTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AllocationCount   int64
	AllocationErrors  int64
	AllocatedBytes    int64
	CloneCount        int64
	CloneErrors       int64
	CloneAvgNanos     int64
	MoveCount         int64
	MovedBytes        int64
	ReleaseCount      int64
	ReclaimedNodes    int64
	SubstitutionCount int64
	SubstitutedNodes  int64
}
