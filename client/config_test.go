package client

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gclaussn/go-extask/worker"
	"github.com/stretchr/testify/assert"
)

func TestReadConfig(t *testing.T) {
	assert := assert.New(t)

	t.Run("from file", func(t *testing.T) {
		// given
		fileName := filepath.Join(t.TempDir(), "config.yaml")

		content := `url: http://localhost:8080
token: test-token
worker:
  lockDuration: 60s
  maxTasks: 5
`
		if err := os.WriteFile(fileName, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		// when
		config, err := ReadConfig(fileName)
		if err != nil {
			t.Fatal(err)
		}

		// then
		assert.Equal("http://localhost:8080", config.Url)
		assert.Equal("test-token", config.Token)
		assert.Equal(40*time.Second, config.Timeout)

		assert.Equal(WorkerConfig{
			LockDuration:        60 * time.Second,
			LockRenewalBuffer:   5 * time.Second,
			LongPollingTimeout:  1 * time.Second,
			MaxTasks:            5,
			PollInterval:        1 * time.Second,
			ReportRetryInterval: 500 * time.Millisecond,
			ReportRetryLimit:    3,
		}, config.Worker)
	})

	t.Run("from file with environment override", func(t *testing.T) {
		// given
		fileName := filepath.Join(t.TempDir(), "config.yaml")

		if err := os.WriteFile(fileName, []byte("url: http://localhost:8080\n"), 0600); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		t.Setenv("GO_EXTASK_URL", "http://engine:8080")
		t.Setenv("GO_EXTASK_WORKER_MAX_TASKS", "20")

		// when
		config, err := ReadConfig(fileName)
		if err != nil {
			t.Fatal(err)
		}

		// then
		assert.Equal("http://engine:8080", config.Url)
		assert.Equal(20, config.Worker.MaxTasks)
	})

	t.Run("from environment", func(t *testing.T) {
		// given
		t.Setenv("GO_EXTASK_URL", "http://engine:8080")
		t.Setenv("GO_EXTASK_TIMEOUT", "10s")
		t.Setenv("GO_EXTASK_WORKER_POLL_INTERVAL", "250ms")

		// when
		config, err := ReadConfig("")
		if err != nil {
			t.Fatal(err)
		}

		// then
		assert.Equal("http://engine:8080", config.Url)
		assert.Equal("dummy_token", config.Token)
		assert.Equal(10*time.Second, config.Timeout)
		assert.Equal(250*time.Millisecond, config.Worker.PollInterval)
	})

	t.Run("returns error when URL is missing", func(t *testing.T) {
		if _, ok := os.LookupEnv("GO_EXTASK_URL"); ok {
			t.Skip("GO_EXTASK_URL is set")
		}

		_, err := ReadConfig("")
		assert.ErrorContains(err, "failed to read config")
	})

	t.Run("returns error when file not exists", func(t *testing.T) {
		_, err := ReadConfig(filepath.Join(t.TempDir(), "not-existing.yaml"))
		assert.ErrorContains(err, "failed to read config")
	})
}

func TestConfigWorkerOptions(t *testing.T) {
	assert := assert.New(t)

	config := Config{
		Worker: WorkerConfig{
			LockDuration:        10 * time.Second,
			LockRenewalBuffer:   2 * time.Second,
			LongPollingTimeout:  5 * time.Second,
			MaxTasks:            3,
			PollInterval:        100 * time.Millisecond,
			ReportRetryInterval: time.Second,
			ReportRetryLimit:    1,
		},
	}

	options := worker.NewOptions()
	config.WorkerOptions()(&options)

	assert.Nil(options.Validate())
	assert.Equal(10*time.Second, options.LockDuration)
	assert.Equal(2*time.Second, options.LockRenewalBuffer)
	assert.Equal(5*time.Second, options.LongPollingTimeout)
	assert.Equal(3, options.MaxTasks)
	assert.Equal(100*time.Millisecond, options.PollInterval)
	assert.Equal(time.Second, options.ReportRetryInterval)
	assert.Equal(1, options.ReportRetryLimit)
}
