package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReportEvery is how many published messages trigger a metrics report
const ReportEvery = 100

// Counter tracks published messages since start. Safe for concurrent reads from
// the health server.
type Counter struct {
	mu    sync.Mutex
	count int
	start time.Time
	now   func() time.Time
}

// Snapshot is a point-in-time view of a Counter
type Snapshot struct {
	Total      int
	Elapsed    time.Duration
	Throughput float64 // messages per second
}

func NewCounter(now func() time.Time) *Counter {
	if now == nil {
		now = time.Now
	}
	return &Counter{start: now(), now: now}
}

// Inc records one published message and returns the new total
func (c *Counter) Inc() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.count++
	return c.count
}

func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := c.now().Sub(c.start)
	return Snapshot{
		Total:      c.count,
		Elapsed:    elapsed,
		Throughput: Throughput(c.count, elapsed),
	}
}

// Throughput returns messages per second, 0 when no time has elapsed
func Throughput(total int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(total) / elapsed.Seconds()
}

// ShouldReport is true for positive multiples of every
func ShouldReport(count, every int) bool {
	return every > 0 && count > 0 && count%every == 0
}

// Collectors holds the Prometheus instruments of the generator
type Collectors struct {
	Registry     *prometheus.Registry
	Published    *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	Latency      prometheus.Histogram
	BreakerState prometheus.Gauge
}

// NewCollectors creates the instruments on a dedicated registry
func NewCollectors() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		Published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sbs_messages_published_total",
			Help: "Total messages published by parameter.",
		}, []string{"parameter"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sbs_publish_failures_total",
			Help: "Total failed publish attempts by parameter.",
		}, []string{"parameter"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sbs_publish_latency_seconds",
			Help:    "Histogram of live publish round trip latency.",
			Buckets: prometheus.DefBuckets,
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sbs_breaker_state",
			Help: "Circuit breaker state of the live sink (0 closed, 1 half-open, 2 open).",
		}),
	}

	c.Registry.MustRegister(
		c.Published,
		c.Failures,
		c.Latency,
		c.BreakerState,
	)
	return c
}
