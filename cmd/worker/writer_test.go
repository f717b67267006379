package main

import (
	"context"
	"testing"
	"time"

	"github.com/phrazzld/textproc/internal/config"
	"github.com/phrazzld/textproc/internal/platform/logger"
	"github.com/phrazzld/textproc/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResultWriter(t *testing.T) {
	t.Parallel()

	log, _ := logger.NewTestLogger()

	t.Run("http writer", func(t *testing.T) {
		cfg := &config.Config{Worker: config.WorkerConfig{
			ResultWriter: "http",
			APIBaseURL:   "http://localhost:8080",
			HTTPTimeout:  time.Second,
		}}

		w, cleanup, err := newResultWriter(context.Background(), cfg, log)
		require.NoError(t, err)
		defer cleanup()
		assert.IsType(t, &task.HTTPResultWriter{}, w)
	})

	t.Run("unknown writer", func(t *testing.T) {
		cfg := &config.Config{Worker: config.WorkerConfig{ResultWriter: "carrier-pigeon"}}

		_, _, err := newResultWriter(context.Background(), cfg, log)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "carrier-pigeon")
	})

	t.Run("store writer with bad url", func(t *testing.T) {
		cfg := &config.Config{
			Worker:   config.WorkerConfig{ResultWriter: "store"},
			Database: config.DatabaseConfig{URL: "not a url ::"},
		}

		_, _, err := newResultWriter(context.Background(), cfg, log)
		require.Error(t, err)
	})
}
