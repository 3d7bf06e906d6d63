// monitor/monitor.go
package monitor

import (
	"expvar"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 回合推进与模拟的核心指标。包级变量方便各层直接打点。
var (
	TurnsAdvanced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turnserver",
		Name:      "turns_advanced_total",
		Help:      "Total number of successfully advanced turns",
	})
	TurnMismatches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turnserver",
		Name:      "turn_mismatches_total",
		Help:      "Turn advancement attempts rejected because the turn number was stale",
	})
	SimulationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turnserver",
		Name:      "simulation_failures_total",
		Help:      "Simulation subprocess failures (crashes and timeouts)",
	})
	SimulationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "turnserver",
		Name:      "turn_advancement_seconds",
		Help:      "Wall time of a full turn advancement including simulation",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	UnusedIDPool = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "turnserver",
		Name:      "unused_game_id_pool",
		Help:      "Number of pre-generated game ids available in the pool",
	})
)

func init() {
	prometheus.MustRegister(
		TurnsAdvanced,
		TurnMismatches,
		SimulationFailures,
		SimulationDuration,
		UnusedIDPool,
	)
}

type Monitor struct {
	startTime time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{startTime: time.Now()}
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	// 添加expvar指标
	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	go http.ListenAndServe(addr, nil)
}
