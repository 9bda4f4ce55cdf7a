package services

import (
	"testing"

	"zhulink-cascade/internal/config"
	"zhulink-cascade/internal/observability"
	"zhulink-cascade/internal/testutils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store   *testutils.MemoryStore
	pool    *WorkerPool
	engine  *CascadeEngine
	auth    *Authorizer
	metrics *observability.Metrics
}

func newTestEnv(t *testing.T, mutate ...func(*config.CascadeConfig)) *testEnv {
	t.Helper()
	conf := config.Default().Cascade
	for _, m := range mutate {
		m(&conf)
	}

	s := testutils.NewMemoryStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	pool := NewWorkerPool(conf.Workers, conf.QueueSize, metrics)
	t.Cleanup(pool.Close)

	resolver, err := NewOwnershipResolver(s, 100, 0)
	require.NoError(t, err)

	return &testEnv{
		store:   s,
		pool:    pool,
		engine:  NewCascadeEngine(s, pool, conf, metrics),
		auth:    NewAuthorizer(resolver),
		metrics: metrics,
	}
}
