package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveReconcile("register", nil, 10*time.Millisecond)
	m.ObserveReconcile("register", errors.New("boom"), time.Millisecond)
	m.HookCalled("put", "hook")
	m.HookCalled("put", "hook")
	m.ObserveRPC("Register", "OK")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("register", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("register", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HookCalls.WithLabelValues("put", "hook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCs.WithLabelValues("Register", "OK")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveReconcile("skipped", nil, time.Second)
		m.HookCalled("sync", "default")
		m.ObserveRPC("Put", "OK")
	})
}

func TestInit_Once(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := Init(reg)
	b := Init(reg)
	assert.Same(t, a, b)
}
