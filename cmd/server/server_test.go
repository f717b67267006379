package main

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/phrazzld/textproc/internal/config"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/platform/rabbitmq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		Port:            0,
		LogLevel:        "debug",
		ShutdownTimeout: 2 * time.Second,
	}
}

func TestServe_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewTestLogger()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, testServerConfig(), http.NotFoundHandler(), nil, log)
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestServe_FailsWhenBrokerLost(t *testing.T) {
	t.Parallel()

	log, buf := logger.NewTestLogger()
	brokerDone := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- serve(context.Background(), testServerConfig(), http.NotFoundHandler(), brokerDone, log)
	}()

	close(brokerDone)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, rabbitmq.ErrBrokerUnavailable)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after broker loss")
	}
	assert.Contains(t, buf.String(), "broker connection lost")
}
