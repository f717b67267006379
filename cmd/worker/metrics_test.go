package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/platform/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListenMetrics_DisabledOnZeroPort(t *testing.T) {
	t.Parallel()

	ln, err := listenMetrics(0)
	require.NoError(t, err)
	assert.Nil(t, ln)
}

func TestServeMetrics_ExposesWorkerCounters(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewTestLogger()
	m := metrics.New()
	m.ObserveProcessed(metrics.OutcomeRetried)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveMetrics(ctx, ln, m.Handler(), 2*time.Second, log)
	}()

	url := "http://" + ln.Addr().String() + "/metrics"
	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		if err != nil || resp.StatusCode != http.StatusOK {
			return false
		}
		body = string(b)
		return true
	}, 5*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, `textproc_tasks_processed_total{outcome="retried"} 1`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serveMetrics did not return after cancellation")
	}
}
