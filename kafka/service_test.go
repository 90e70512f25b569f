package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, brokers ...string) (*Service, *atomic.Int64) {
	t.Helper()

	cfg := Config{}
	cfg.SetDefaults()
	cfg.Brokers = brokers

	connects := atomic.NewInt64(0)
	svc := NewService(cfg, zap.NewNop(), "test", prometheus.NewRegistry())
	svc.testConnection = func(_ context.Context, _ *Handle) error {
		connects.Inc()
		return nil
	}
	t.Cleanup(svc.Close)

	return svc, connects
}

func TestService_EnsureConnectedCachesHandle(t *testing.T) {
	svc, connects := newTestService(t, "localhost:9092")

	first, err := svc.EnsureConnected(context.Background())
	require.NoError(t, err)
	second, err := svc.EnsureConnected(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "localhost:9092", first.ConnectionString)
	assert.NotNil(t, first.Admin)
	assert.Equal(t, int64(1), connects.Load())
}

func TestService_ConcurrentCallersShareHandle(t *testing.T) {
	svc, _ := newTestService(t, "localhost:9092")

	wg := sync.WaitGroup{}
	handles := make([]*Handle, 10)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle, err := svc.EnsureConnected(context.Background())
			assert.NoError(t, err)
			handles[i] = handle
		}(i)
	}
	wg.Wait()

	for _, handle := range handles {
		assert.Same(t, handles[0], handle)
	}
}

func TestService_HandlesPerConnectionString(t *testing.T) {
	svc, connects := newTestService(t, "b:9092", "a:9092")

	other := svc.Config()
	other.Brokers = []string{"c:9092"}

	first, err := svc.EnsureConnected(context.Background())
	require.NoError(t, err)
	second, err := svc.HandleFor(context.Background(), other)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, "a:9092,b:9092", first.ConnectionString)
	assert.Equal(t, "c:9092", second.ConnectionString)
	assert.Equal(t, int64(2), connects.Load())
}

func TestService_Reset(t *testing.T) {
	svc, connects := newTestService(t, "localhost:9092")

	first, err := svc.EnsureConnected(context.Background())
	require.NoError(t, err)
	svc.Reset(first.ConnectionString)

	second, err := svc.EnsureConnected(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int64(2), connects.Load())
}

func TestService_FailedConnectionIsNotCached(t *testing.T) {
	svc, _ := newTestService(t, "localhost:9092")
	attempts := 0
	svc.testConnection = func(_ context.Context, _ *Handle) error {
		attempts++
		if attempts == 1 {
			return errors.New("connection refused")
		}
		return nil
	}

	_, err := svc.EnsureConnected(context.Background())
	require.Error(t, err)

	handle, err := svc.EnsureConnected(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, handle)
	assert.Equal(t, 2, attempts)
}
