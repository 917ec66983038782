package minrec

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordIngest is called once per run after the ingest stage.
	// edges is the number of raw edges read, dropped the number of
	// incomplete records discarded by the source.
	RecordIngest(edges, dropped int64, duration time.Duration)

	// RecordBotFilter is called once per run after the bot-filter stage.
	RecordBotFilter(usersDropped, edgesKept int64)

	// RecordRound is called after each similarity round with the number of
	// candidate pairs scored.
	RecordRound(pairs int, duration time.Duration)

	// RecordRun is called once at the end of a run. err is nil on success.
	RecordRun(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIngest(int64, int64, time.Duration) {}
func (NoopMetricsCollector) RecordBotFilter(int64, int64)             {}
func (NoopMetricsCollector) RecordRound(int, time.Duration)           {}
func (NoopMetricsCollector) RecordRun(time.Duration, error)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	EdgesIngested   atomic.Int64
	RecordsDropped  atomic.Int64
	IngestNanos     atomic.Int64
	UsersFiltered   atomic.Int64
	EdgesKept       atomic.Int64
	RoundCount      atomic.Int64
	PairsScored     atomic.Int64
	RoundTotalNanos atomic.Int64
	RunCount        atomic.Int64
	RunErrors       atomic.Int64
	RunTotalNanos   atomic.Int64
}

// RecordIngest implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIngest(edges, dropped int64, duration time.Duration) {
	b.EdgesIngested.Add(edges)
	b.RecordsDropped.Add(dropped)
	b.IngestNanos.Add(duration.Nanoseconds())
}

// RecordBotFilter implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBotFilter(usersDropped, edgesKept int64) {
	b.UsersFiltered.Add(usersDropped)
	b.EdgesKept.Add(edgesKept)
}

// RecordRound implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRound(pairs int, duration time.Duration) {
	b.RoundCount.Add(1)
	b.PairsScored.Add(int64(pairs))
	b.RoundTotalNanos.Add(duration.Nanoseconds())
}

// RecordRun implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRun(duration time.Duration, err error) {
	b.RunCount.Add(1)
	b.RunTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RunErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		EdgesIngested:  b.EdgesIngested.Load(),
		RecordsDropped: b.RecordsDropped.Load(),
		UsersFiltered:  b.UsersFiltered.Load(),
		EdgesKept:      b.EdgesKept.Load(),
		RoundCount:     b.RoundCount.Load(),
		PairsScored:    b.PairsScored.Load(),
		RoundAvgNanos:  b.getAvgRoundNanos(),
		RunCount:       b.RunCount.Load(),
		RunErrors:      b.RunErrors.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgRoundNanos() int64 {
	count := b.RoundCount.Load()
	if count == 0 {
		return 0
	}
	return b.RoundTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	EdgesIngested  int64
	RecordsDropped int64
	UsersFiltered  int64
	EdgesKept      int64
	RoundCount     int64
	PairsScored    int64
	RoundAvgNanos  int64
	RunCount       int64
	RunErrors      int64
}
