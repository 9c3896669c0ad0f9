// Package metrics collects per-run statistics for archiving and retention.
package metrics

import (
	"sync/atomic"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/plog"
)

// Metrics defines the interface for collecting and reporting run statistics.
type Metrics interface {
	AddArchivesWritten(n int64)
	AddArchivesSkipped(n int64)
	AddArchivesFailed(n int64)
	AddUnitsMissing(n int64)
	AddBucketsDeleted(n int64)
	AddBucketsFailed(n int64)
	AddBytesWritten(n int64)
	LogSummary(msg string)
}

// Counters holds the atomic counters for a run.
type Counters struct {
	ArchivesWritten atomic.Int64
	ArchivesSkipped atomic.Int64
	ArchivesFailed  atomic.Int64
	UnitsMissing    atomic.Int64
	BucketsDeleted  atomic.Int64
	BucketsFailed   atomic.Int64
	BytesWritten    atomic.Int64
}

func (m *Counters) AddArchivesWritten(n int64) { m.ArchivesWritten.Add(n) }
func (m *Counters) AddArchivesSkipped(n int64) { m.ArchivesSkipped.Add(n) }
func (m *Counters) AddArchivesFailed(n int64)  { m.ArchivesFailed.Add(n) }
func (m *Counters) AddUnitsMissing(n int64)    { m.UnitsMissing.Add(n) }
func (m *Counters) AddBucketsDeleted(n int64)  { m.BucketsDeleted.Add(n) }
func (m *Counters) AddBucketsFailed(n int64)   { m.BucketsFailed.Add(n) }
func (m *Counters) AddBytesWritten(n int64)    { m.BytesWritten.Add(n) }

func (m *Counters) LogSummary(msg string) {
	plog.Info(msg,
		"archives_written", m.ArchivesWritten.Load(),
		"archives_skipped", m.ArchivesSkipped.Load(),
		"archives_failed", m.ArchivesFailed.Load(),
		"units_missing", m.UnitsMissing.Load(),
		"buckets_deleted", m.BucketsDeleted.Load(),
		"buckets_failed", m.BucketsFailed.Load(),
		"bytes_written", m.BytesWritten.Load(),
	)
}

// NoopMetrics is an implementation of the Metrics interface that performs no operations.
type NoopMetrics struct{}

func (m *NoopMetrics) AddArchivesWritten(n int64) {}
func (m *NoopMetrics) AddArchivesSkipped(n int64) {}
func (m *NoopMetrics) AddArchivesFailed(n int64)  {}
func (m *NoopMetrics) AddUnitsMissing(n int64)    {}
func (m *NoopMetrics) AddBucketsDeleted(n int64)  {}
func (m *NoopMetrics) AddBucketsFailed(n int64)   {}
func (m *NoopMetrics) AddBytesWritten(n int64)    {}
func (m *NoopMetrics) LogSummary(msg string)      {}

var _ Metrics = (*Counters)(nil)
var _ Metrics = (*NoopMetrics)(nil)
