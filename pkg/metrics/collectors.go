package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
)

// DBStatsCollector exports connection pool statistics from database/sql.
type DBStatsCollector struct {
	db *sql.DB

	maxOpen       *prometheus.Desc
	open          *prometheus.Desc
	inUse         *prometheus.Desc
	idle          *prometheus.Desc
	waitCount     *prometheus.Desc
	waitDuration  *prometheus.Desc
	maxIdleClosed *prometheus.Desc
}

// NewDBStatsCollector creates a collector for the given pool.
func NewDBStatsCollector(db *sql.DB) *DBStatsCollector {
	return &DBStatsCollector{
		db: db,
		maxOpen: prometheus.NewDesc(
			"takedown_db_max_open_connections",
			"Maximum number of open database connections", nil, nil),
		open: prometheus.NewDesc(
			"takedown_db_open_connections",
			"Established database connections", nil, nil),
		inUse: prometheus.NewDesc(
			"takedown_db_in_use_connections",
			"Database connections currently in use", nil, nil),
		idle: prometheus.NewDesc(
			"takedown_db_idle_connections",
			"Idle database connections", nil, nil),
		waitCount: prometheus.NewDesc(
			"takedown_db_wait_count_total",
			"Total connections waited for", nil, nil),
		waitDuration: prometheus.NewDesc(
			"takedown_db_wait_duration_seconds_total",
			"Total time blocked waiting for a connection", nil, nil),
		maxIdleClosed: prometheus.NewDesc(
			"takedown_db_max_idle_closed_total",
			"Connections closed due to SetMaxIdleConns", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *DBStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.maxOpen
	ch <- c.open
	ch <- c.inUse
	ch <- c.idle
	ch <- c.waitCount
	ch <- c.waitDuration
	ch <- c.maxIdleClosed
}

// Collect implements prometheus.Collector.
func (c *DBStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.db.Stats()
	ch <- prometheus.MustNewConstMetric(c.maxOpen, prometheus.GaugeValue, float64(stats.MaxOpenConnections))
	ch <- prometheus.MustNewConstMetric(c.open, prometheus.GaugeValue, float64(stats.OpenConnections))
	ch <- prometheus.MustNewConstMetric(c.inUse, prometheus.GaugeValue, float64(stats.InUse))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(stats.Idle))
	ch <- prometheus.MustNewConstMetric(c.waitCount, prometheus.CounterValue, float64(stats.WaitCount))
	ch <- prometheus.MustNewConstMetric(c.waitDuration, prometheus.CounterValue, stats.WaitDuration.Seconds())
	ch <- prometheus.MustNewConstMetric(c.maxIdleClosed, prometheus.CounterValue, float64(stats.MaxIdleClosed))
}

// RegisterDBStats registers pool statistics on the shared registry.
func RegisterDBStats(db *sql.DB) {
	GetRegistry().MustRegister(NewDBStatsCollector(db))
}
