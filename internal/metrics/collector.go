package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	runnerTicksDesc = prometheus.NewDesc(
		"nullengine_runner_ticks_total",
		"Ticks executed by a world runner.",
		[]string{"world_id"}, nil,
	)
	runnerFailuresDesc = prometheus.NewDesc(
		"nullengine_runner_tick_failures_total",
		"Failed ticks of a world runner.",
		[]string{"world_id"}, nil,
	)
	runnerSuccessDesc = prometheus.NewDesc(
		"nullengine_runner_success_rate",
		"Fraction of successful ticks of a world runner.",
		[]string{"world_id"}, nil,
	)
	runnerDurationDesc = prometheus.NewDesc(
		"nullengine_runner_last_tick_duration_seconds",
		"Duration of the most recent tick.",
		[]string{"world_id"}, nil,
	)
	runnerStatusDesc = prometheus.NewDesc(
		"nullengine_runner_status",
		"Current runner status; the series for the active status is 1.",
		[]string{"world_id", "status"}, nil,
	)
	loopRestartsDesc = prometheus.NewDesc(
		"nullengine_loop_restarts_total",
		"Restarts of a supervised background job.",
		[]string{"loop"}, nil,
	)
	loopStatusDesc = prometheus.NewDesc(
		"nullengine_loop_status",
		"Current job status; the series for the active status is 1.",
		[]string{"loop", "status"}, nil,
	)
)

// Collector exports a Store through Prometheus. Values are read from the
// store at scrape time.
type Collector struct {
	store *Store
}

// NewCollector wraps s.
func NewCollector(s *Store) *Collector {
	return &Collector{store: s}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- runnerTicksDesc
	ch <- runnerFailuresDesc
	ch <- runnerSuccessDesc
	ch <- runnerDurationDesc
	ch <- runnerStatusDesc
	ch <- loopRestartsDesc
	ch <- loopStatusDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, r := range c.store.Runners() {
		ch <- prometheus.MustNewConstMetric(runnerTicksDesc, prometheus.CounterValue, float64(r.TicksTotal), r.WorldID)
		ch <- prometheus.MustNewConstMetric(runnerFailuresDesc, prometheus.CounterValue, float64(r.TickFailures), r.WorldID)
		ch <- prometheus.MustNewConstMetric(runnerSuccessDesc, prometheus.GaugeValue, r.SuccessRate, r.WorldID)
		if r.LastDurationMs != nil {
			ch <- prometheus.MustNewConstMetric(runnerDurationDesc, prometheus.GaugeValue, float64(*r.LastDurationMs)/1000, r.WorldID)
		}
		ch <- prometheus.MustNewConstMetric(runnerStatusDesc, prometheus.GaugeValue, 1, r.WorldID, r.Status)
	}
	for _, l := range c.store.Loops() {
		ch <- prometheus.MustNewConstMetric(loopRestartsDesc, prometheus.CounterValue, float64(l.RestartCount), l.Name)
		ch <- prometheus.MustNewConstMetric(loopStatusDesc, prometheus.GaugeValue, 1, l.Name, string(l.Status))
	}
}

var _ prometheus.Collector = (*Collector)(nil)

