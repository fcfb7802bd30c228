// Package metrics 定义 catsync 的 Prometheus 指标。
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics 持有全部指标。nil *Metrics 的所有方法都是空操作。
type Metrics struct {
	Reconciliations *prometheus.CounterVec   // catsync_reconciliations_total{decision,outcome}
	Duration        *prometheus.HistogramVec // catsync_reconcile_duration_seconds{decision}
	HookCalls       *prometheus.CounterVec   // catsync_hook_calls_total{point,mode}
	RPCs            *prometheus.CounterVec   // catsync_rpc_requests_total{method,code}
}

// Init 返回进程级单例，只注册一次
func Init(registry prometheus.Registerer) *Metrics {
	once.Do(func() {
		if registry == nil {
			registry = prometheus.DefaultRegisterer
		}
		instance = New(registry)
	})
	return instance
}

// New 在给定的 registry 上注册一组新的指标，测试中使用独立的 registry
func New(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		Reconciliations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catsync_reconciliations_total",
			Help: "Reconciliations by decision and outcome",
		}, []string{"decision", "outcome"}),

		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catsync_reconcile_duration_seconds",
			Help:    "Reconciliation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"decision"}),

		HookCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catsync_hook_calls_total",
			Help: "Hook dispatches by point and whether the hook or the default ran",
		}, []string{"point", "mode"}),

		RPCs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "catsync_rpc_requests_total",
			Help: "Catalog RPC requests by method and status code",
		}, []string{"method", "code"}),
	}
}

// ObserveReconcile 记录一次 reconciliation
func (m *Metrics) ObserveReconcile(decision string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Reconciliations.WithLabelValues(decision, outcome).Inc()
	m.Duration.WithLabelValues(decision).Observe(elapsed.Seconds())
}

// HookCalled 实现 hooks.Recorder
func (m *Metrics) HookCalled(point, mode string) {
	if m == nil {
		return
	}
	m.HookCalls.WithLabelValues(point, mode).Inc()
}

func (m *Metrics) ObserveRPC(method, code string) {
	if m == nil {
		return
	}
	m.RPCs.WithLabelValues(method, code).Inc()
}
