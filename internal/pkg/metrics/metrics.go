// internal/pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "fulfillment"

// Collector 汇总 worker 的业务指标。所有方法对 nil 接收者安全，测试中可以直接传 nil。
type Collector struct {
	outcomes          *prometheus.CounterVec
	pollDuration      prometheus.Histogram
	pollFailures      prometheus.Counter
	ordersReceived    prometheus.Counter
	inventoryUnits    *prometheus.GaugeVec
	staleReservations prometheus.Gauge
}

// NewCollector 创建并注册所有指标。reg 通常为 prometheus.DefaultRegisterer。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_outcomes_total",
			Help:      "Per-order pipeline outcomes.",
		}, []string{"outcome"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of one poll cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		pollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_failures_total",
			Help:      "Poll cycles aborted by an error or panic.",
		}),
		ordersReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_received_total",
			Help:      "Orders returned by the marketplace across all polls.",
		}),
		inventoryUnits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inventory_units",
			Help:      "Inventory units by lifecycle state.",
		}, []string{"state"}),
		staleReservations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_reservations",
			Help:      "Units reserved longer than the stale threshold and never sold.",
		}),
	}
	reg.MustRegister(c.outcomes, c.pollDuration, c.pollFailures, c.ordersReceived, c.inventoryUnits, c.staleReservations)
	return c
}

func (c *Collector) ObserveOutcome(outcome string) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObservePoll(d time.Duration, received int) {
	if c == nil {
		return
	}
	c.pollDuration.Observe(d.Seconds())
	c.ordersReceived.Add(float64(received))
}

func (c *Collector) PollFailed() {
	if c == nil {
		return
	}
	c.pollFailures.Inc()
}

// SetInventory 用最新的按状态计数覆盖库存仪表
func (c *Collector) SetInventory(counts map[string]int) {
	if c == nil {
		return
	}
	for state, n := range counts {
		c.inventoryUnits.WithLabelValues(state).Set(float64(n))
	}
}

func (c *Collector) SetStaleReservations(n int) {
	if c == nil {
		return
	}
	c.staleReservations.Set(float64(n))
}
