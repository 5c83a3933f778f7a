package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "logsink"

var severityLabels = [5]string{"DEBUG", "INFO", "WARNING", "ERROR", "FATAL"}

// PrometheusCollector exposes a Collector's counters as Prometheus metrics.
// Values are read from a Snapshot on every scrape.
type PrometheusCollector struct {
	source *Collector

	routed         *prometheus.Desc
	recordsWritten *prometheus.Desc
	bytesWritten   *prometheus.Desc
	dropped        *prometheus.Desc
	rotations      *prometheus.Desc
	opens          *prometheus.Desc
	openFailures   *prometheus.Desc
	flushes        *prometheus.Desc
	diskFull       *prometheus.Desc
	writers        *prometheus.Desc
	pruned         *prometheus.Desc
	errors         *prometheus.Desc
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)

// NewPrometheusCollector wraps c for registration with a prometheus.Registerer.
func NewPrometheusCollector(c *Collector) *PrometheusCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &PrometheusCollector{
		source:         c,
		routed:         desc("records", "routed_total", "Records handed to the sink", "severity"),
		recordsWritten: desc("records", "written_total", "Records appended to a log file"),
		bytesWritten:   desc("file", "bytes_written_total", "Payload bytes appended to log files"),
		dropped:        desc("records", "dropped_total", "Records not written", "reason"),
		rotations:      desc("file", "rotations_total", "Log file rotations", "reason"),
		opens:          desc("file", "opens_total", "Log files opened"),
		openFailures:   desc("file", "open_failures_total", "Failed log file opens"),
		flushes:        desc("file", "flushes_total", "Writer flushes"),
		diskFull:       desc("disk", "full_events_total", "Entries into the disk guard stop state"),
		writers:        desc("writers", "created_total", "File writers constructed"),
		pruned:         desc("retention", "files_pruned_total", "Log files removed by retention"),
		errors:         desc("errors", "total", "Absorbed errors", "source"),
	}
}

// Describe implements prometheus.Collector.
func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		p.routed, p.recordsWritten, p.bytesWritten, p.dropped, p.rotations, p.opens,
		p.openFailures, p.flushes, p.diskFull, p.writers, p.pruned, p.errors,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.source.Snapshot()
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	for i, n := range s.RoutedBySeverity {
		counter(p.routed, n, severityLabels[i])
	}
	counter(p.recordsWritten, s.RecordsWritten)
	counter(p.bytesWritten, s.BytesWritten)
	for reason, n := range s.Dropped {
		counter(p.dropped, n, reason)
	}
	for reason, n := range s.Rotations {
		counter(p.rotations, n, reason)
	}
	counter(p.opens, s.Opens)
	counter(p.openFailures, s.OpenFailures)
	counter(p.flushes, s.Flushes)
	counter(p.diskFull, s.DiskFullEvents)
	counter(p.writers, s.WritersCreated)
	counter(p.pruned, s.FilesPruned)
	for source, n := range s.ErrorsBySource {
		counter(p.errors, n, source)
	}
}
