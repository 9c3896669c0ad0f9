package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pgl_plugin_backup"

// Prometheus mirrors every update into the process-wide Prometheus collectors
// while keeping per-run atomic counters for the log summary.
type Prometheus struct {
	*Counters
	c *Collectors
}

// Collectors holds the Prometheus collectors shared by all runs of a process.
type Collectors struct {
	archives     *prometheus.CounterVec
	unitsMissing prometheus.Counter
	buckets      *prometheus.CounterVec
	bytesWritten prometheus.Counter
}

// NewCollectors creates and registers the collectors on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		archives: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Unit archives processed, by result (written, skipped, failed).",
		}, []string{"result"}),
		unitsMissing: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_missing_total",
			Help:      "Configured units that could not be resolved.",
		}),
		buckets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buckets_pruned_total",
			Help:      "Date buckets removed by retention, by result (deleted, failed).",
		}, []string{"result"}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_bytes_written_total",
			Help:      "Compressed bytes written to unit archives.",
		}),
	}
}

// NewRun returns a Metrics for a single run that reports into c.
func (c *Collectors) NewRun() *Prometheus {
	return &Prometheus{Counters: &Counters{}, c: c}
}

func (m *Prometheus) AddArchivesWritten(n int64) {
	m.Counters.AddArchivesWritten(n)
	m.c.archives.WithLabelValues("written").Add(float64(n))
}

func (m *Prometheus) AddArchivesSkipped(n int64) {
	m.Counters.AddArchivesSkipped(n)
	m.c.archives.WithLabelValues("skipped").Add(float64(n))
}

func (m *Prometheus) AddArchivesFailed(n int64) {
	m.Counters.AddArchivesFailed(n)
	m.c.archives.WithLabelValues("failed").Add(float64(n))
}

func (m *Prometheus) AddUnitsMissing(n int64) {
	m.Counters.AddUnitsMissing(n)
	m.c.unitsMissing.Add(float64(n))
}

func (m *Prometheus) AddBucketsDeleted(n int64) {
	m.Counters.AddBucketsDeleted(n)
	m.c.buckets.WithLabelValues("deleted").Add(float64(n))
}

func (m *Prometheus) AddBucketsFailed(n int64) {
	m.Counters.AddBucketsFailed(n)
	m.c.buckets.WithLabelValues("failed").Add(float64(n))
}

func (m *Prometheus) AddBytesWritten(n int64) {
	m.Counters.AddBytesWritten(n)
	m.c.bytesWritten.Add(float64(n))
}

var _ Metrics = (*Prometheus)(nil)
