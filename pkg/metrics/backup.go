package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BackupMetrics records backup/restore passes.
type BackupMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	restores *prometheus.CounterVec
	lastOK   prometheus.Gauge
}

// NewBackupMetrics registers the backup metrics on the provided registerer.
func NewBackupMetrics(reg prometheus.Registerer) *BackupMetrics {
	if reg == nil {
		return &BackupMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backup_runs_total",
		Help: "Backup passes by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backup_duration_seconds",
		Help:    "Duration of backup passes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	restores := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restore_runs_total",
		Help: "Restore attempts by outcome.",
	}, []string{"outcome"})
	lastOK := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backup_last_success_timestamp_seconds",
		Help: "Unix time of the last uploaded backup.",
	})
	reg.MustRegister(runs, duration, restores, lastOK)
	return &BackupMetrics{
		runs:     runs,
		duration: duration,
		restores: restores,
		lastOK:   lastOK,
	}
}

// ObserveRun records one finished backup pass.
func (b *BackupMetrics) ObserveRun(outcome string, duration time.Duration, finishedAt time.Time) {
	if b == nil || b.runs == nil {
		return
	}
	label := normalizeLabel(outcome)
	b.runs.WithLabelValues(label).Inc()
	b.duration.WithLabelValues(label).Observe(duration.Seconds())
	if outcome == "uploaded" {
		b.lastOK.Set(float64(finishedAt.Unix()))
	}
}

// IncRestore counts one restore attempt.
func (b *BackupMetrics) IncRestore(outcome string) {
	if b == nil || b.restores == nil {
		return
	}
	b.restores.WithLabelValues(normalizeLabel(outcome)).Inc()
}
