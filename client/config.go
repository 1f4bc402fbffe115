package client

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-extask/engine"
	httpclient "github.com/gclaussn/go-extask/http/client"
	"github.com/gclaussn/go-extask/worker"
	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the configuration of a client, read from a YAML file and/or environment variables.
type Config struct {
	Url     string        `yaml:"url" env:"GO_EXTASK_URL" env-required:"true" env-description:"URL of the engine's HTTP API"`
	Token   string        `yaml:"token" env:"GO_EXTASK_TOKEN" env-default:"dummy_token" env-description:"bearer token, used for authentication"`
	Timeout time.Duration `yaml:"timeout" env:"GO_EXTASK_TIMEOUT" env-default:"40s" env-description:"time limit for HTTP requests"`

	Worker WorkerConfig `yaml:"worker"`
}

// WorkerConfig is the configuration of the workers, created by a client.
type WorkerConfig struct {
	LockDuration        time.Duration `yaml:"lockDuration" env:"GO_EXTASK_WORKER_LOCK_DURATION" env-default:"30s"`
	LockRenewalBuffer   time.Duration `yaml:"lockRenewalBuffer" env:"GO_EXTASK_WORKER_LOCK_RENEWAL_BUFFER" env-default:"5s"`
	LongPollingTimeout  time.Duration `yaml:"longPollingTimeout" env:"GO_EXTASK_WORKER_LONG_POLLING_TIMEOUT" env-default:"1s"`
	MaxTasks            int           `yaml:"maxTasks" env:"GO_EXTASK_WORKER_MAX_TASKS" env-default:"10"`
	PollInterval        time.Duration `yaml:"pollInterval" env:"GO_EXTASK_WORKER_POLL_INTERVAL" env-default:"1s"`
	ReportRetryInterval time.Duration `yaml:"reportRetryInterval" env:"GO_EXTASK_WORKER_REPORT_RETRY_INTERVAL" env-default:"500ms"`
	ReportRetryLimit    int           `yaml:"reportRetryLimit" env:"GO_EXTASK_WORKER_REPORT_RETRY_LIMIT" env-default:"3"`
}

// ReadConfig reads a configuration file (YAML, JSON or TOML) and overrides its values with environment variables.
// If the file name is empty, the configuration is read from environment variables only.
func ReadConfig(fileName string) (Config, error) {
	var config Config

	var err error
	if fileName != "" {
		err = cleanenv.ReadConfig(fileName, &config)
	} else {
		err = cleanenv.ReadEnv(&config)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %v", err)
	}

	return config, nil
}

// NewFromConfig creates a client, using the given configuration.
func NewFromConfig(config Config) (*Client, error) {
	return New(config.Url, engine.NewIdentity(config.Token), func(o *httpclient.Options) {
		o.Timeout = config.Timeout
	})
}

// WorkerOptions returns a customizer, which applies the worker configuration.
func (c Config) WorkerOptions() func(*worker.Options) {
	return func(o *worker.Options) {
		o.LockDuration = c.Worker.LockDuration
		o.LockRenewalBuffer = c.Worker.LockRenewalBuffer
		o.LongPollingTimeout = c.Worker.LongPollingTimeout
		o.MaxTasks = c.Worker.MaxTasks
		o.PollInterval = c.Worker.PollInterval
		o.ReportRetryInterval = c.Worker.ReportRetryInterval
		o.ReportRetryLimit = c.Worker.ReportRetryLimit
	}
}
