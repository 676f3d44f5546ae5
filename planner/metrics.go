package planner

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsAggregator keeps cross-run quality counters. It exports through the
// injected meter and mirrors everything into local counters so Snapshot and
// Reset work without a metrics backend (tests pass a noop meter).
type MetricsAggregator struct {
	mu sync.Mutex

	daysTotal        int
	daysFirstPass    int
	daysScaled       int
	daysRegenerated  int
	daysOutOfRange   int
	weeksTotal       int
	weeksFailed      int
	totalDayLatency  time.Duration
	latencySampleCnt int

	daysCounter     metric.Int64Counter
	weeksCounter    metric.Int64Counter
	weeksFailedCtr  metric.Int64Counter
	dayLatencyHist  metric.Float64Histogram
}

// NewMetricsAggregator creates the aggregator's instruments on the given
// meter. Instrument creation errors are ignored the way the rest of the
// codebase treats metric plumbing: observability must never fail the pipeline.
func NewMetricsAggregator(meter metric.Meter) *MetricsAggregator {
	m := &MetricsAggregator{}
	m.daysCounter, _ = meter.Int64Counter("planner_days_total",
		metric.WithDescription("Day plans produced, labeled by fix method and in-range outcome"))
	m.weeksCounter, _ = meter.Int64Counter("planner_weeks_total",
		metric.WithDescription("Weekly batch runs started"))
	m.weeksFailedCtr, _ = meter.Int64Counter("planner_weeks_failed_total",
		metric.WithDescription("Weekly batch runs that failed"))
	m.dayLatencyHist, _ = meter.Float64Histogram("planner_day_duration_seconds",
		metric.WithDescription("Wall-clock duration of one day's generation and repair"))
	return m
}

// RecordDay folds one day outcome into the counters.
func (m *MetricsAggregator) RecordDay(ctx context.Context, o DayOutcome) {
	m.mu.Lock()
	m.daysTotal++
	switch {
	case o.Method == FixNone && o.FixedInRange:
		m.daysFirstPass++
	case o.Method == FixScaling && o.FixedInRange:
		m.daysScaled++
	case o.Method == FixRegeneration && o.FixedInRange:
		m.daysRegenerated++
	}
	if !o.FixedInRange {
		m.daysOutOfRange++
	}
	if o.Latency > 0 {
		m.totalDayLatency += o.Latency
		m.latencySampleCnt++
	}
	m.mu.Unlock()

	if m.daysCounter != nil {
		m.daysCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", string(o.Method)),
			attribute.Bool("in_range", o.FixedInRange),
		))
	}
	if m.dayLatencyHist != nil && o.Latency > 0 {
		m.dayLatencyHist.Record(ctx, o.Latency.Seconds())
	}
}

// RecordWeek counts one weekly batch run.
func (m *MetricsAggregator) RecordWeek(ctx context.Context, failed bool) {
	m.mu.Lock()
	m.weeksTotal++
	if failed {
		m.weeksFailed++
	}
	m.mu.Unlock()

	if m.weeksCounter != nil {
		m.weeksCounter.Add(ctx, 1)
	}
	if failed && m.weeksFailedCtr != nil {
		m.weeksFailedCtr.Add(ctx, 1)
	}
}

// MetricsSnapshot is a point-in-time summary of accumulated quality signals.
type MetricsSnapshot struct {
	DaysTotal           int           `json:"days_total"`
	DaysFirstPass       int           `json:"days_first_pass"`
	DaysFixedByScaling  int           `json:"days_fixed_by_scaling"`
	DaysFixedByRegen    int           `json:"days_fixed_by_regeneration"`
	DaysStillOutOfRange int           `json:"days_still_out_of_range"`
	WeeksTotal          int           `json:"weeks_total"`
	WeeksFailed         int           `json:"weeks_failed"`
	FirstPassRate       float64       `json:"first_pass_rate"`
	FixSuccessRate      float64       `json:"fix_success_rate"`
	AvgDayLatency       time.Duration `json:"avg_day_latency"`
}

// Snapshot returns the current counters plus derived rates. FixSuccessRate is
// the share of days needing repair that ended in range.
func (m *MetricsAggregator) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := MetricsSnapshot{
		DaysTotal:           m.daysTotal,
		DaysFirstPass:       m.daysFirstPass,
		DaysFixedByScaling:  m.daysScaled,
		DaysFixedByRegen:    m.daysRegenerated,
		DaysStillOutOfRange: m.daysOutOfRange,
		WeeksTotal:          m.weeksTotal,
		WeeksFailed:         m.weeksFailed,
	}
	if m.daysTotal > 0 {
		s.FirstPassRate = float64(m.daysFirstPass) / float64(m.daysTotal)
	}
	if fixed := m.daysScaled + m.daysRegenerated + m.daysOutOfRange; fixed > 0 {
		s.FixSuccessRate = float64(m.daysScaled+m.daysRegenerated) / float64(fixed)
	}
	if m.latencySampleCnt > 0 {
		s.AvgDayLatency = m.totalDayLatency / time.Duration(m.latencySampleCnt)
	}
	return s
}

// Reset zeroes the local counters for test isolation. Exported instruments
// are cumulative by design and are not reset.
func (m *MetricsAggregator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daysTotal = 0
	m.daysFirstPass = 0
	m.daysScaled = 0
	m.daysRegenerated = 0
	m.daysOutOfRange = 0
	m.weeksTotal = 0
	m.weeksFailed = 0
	m.totalDayLatency = 0
	m.latencySampleCnt = 0
}
