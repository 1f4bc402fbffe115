package worker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/google/uuid"
)

var (
	ErrAlreadyStarted = errors.New("worker has already been started")
	ErrStopped        = errors.New("worker has been stopped")
)

const (
	stateIdle int32 = iota
	statePolling
	stateStopped
)

func New(api engine.ExternalTaskApi, customizers ...func(*Options)) (*Worker, error) {
	if api == nil {
		return nil, errors.New("external task API is nil")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	worker := Worker{
		api:     api,
		id:      options.WorkerId,
		logger:  options.Logger.With("worker_id", options.WorkerId),
		options: options,

		done:  make(chan struct{}),
		stopC: make(chan struct{}),
	}

	return &worker, nil
}

func NewOptions() Options {
	return Options{
		LockDuration:        30 * time.Second,
		LockRenewalBuffer:   5 * time.Second,
		Logger:              slog.Default(),
		LongPollingTimeout:  1 * time.Second,
		MaxTasks:            10,
		PollInterval:        1 * time.Second,
		ReportRetryInterval: 500 * time.Millisecond,
		ReportRetryLimit:    3,
		WorkerId:            uuid.NewString(),
	}
}

type Options struct {
	LockDuration        time.Duration // Duration, a fetched task is locked for the worker.
	LockRenewalBuffer   time.Duration // Time before the lock expires, at which the lock is extended.
	Logger              *slog.Logger  // Logger for fetch, lock renewal and report failures.
	LongPollingTimeout  time.Duration // Maximum time, the engine waits for pending tasks, before responding to a fetch.
	MaxTasks            int           // Maximum number of tasks to fetch, lock and execute at once.
	PollInterval        time.Duration // Interval between fetches, when no task was fetched.
	ReportRetryInterval time.Duration // Interval between attempts to report the outcome of a task.
	ReportRetryLimit    int           // Number of retries, when the outcome of a task could not be reported.
	WorkerId            string        // Worker ID, presented to the engine as proof of lock ownership.

	// Called when the outcome of a task could not be reported.
	OnExecutionFailure func(engine.ExternalTask, error)
}

func (o Options) Validate() error {
	if strings.TrimSpace(o.WorkerId) == "" {
		return errors.New("worker ID must not be empty or blank")
	}
	if o.MaxTasks < 1 || o.MaxTasks > 1000 {
		return errors.New("max tasks must be between 1 and 1000")
	}
	if o.LockRenewalBuffer.Milliseconds() < 1 {
		return errors.New("lock renewal buffer must be greater than or equal to 1 ms")
	}
	if o.LockDuration <= o.LockRenewalBuffer {
		return errors.New("lock duration must be greater than lock renewal buffer")
	}
	if o.LongPollingTimeout < 0 || o.LongPollingTimeout > time.Minute {
		return errors.New("long polling timeout must be between 0 and 60 s")
	}
	if o.PollInterval.Milliseconds() < 1 {
		return errors.New("poll interval must be greater than or equal to 1 ms")
	}
	if o.ReportRetryLimit < 0 {
		return errors.New("report retry limit must be greater than or equal to 0")
	}
	if o.Logger == nil {
		return errors.New("logger is nil")
	}

	return nil
}

// Worker fetches, locks and executes the tasks of a single topic.
//
// A worker is single-use: it can be started once and is not restartable after it has been stopped.
type Worker struct {
	api     engine.ExternalTaskApi
	id      string
	logger  *slog.Logger
	options Options

	state    atomic.Int32
	stopOnce sync.Once
	done     chan struct{} // closed, when the polling loop returned
	stopC    chan struct{} // closed, when the worker is stopped
}

// Done returns a channel, which is closed when the worker stopped polling and the last batch of tasks has been executed.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) Id() string {
	return w.id
}

func (w *Worker) IsActive() bool {
	return w.state.Load() == statePolling
}

// Start starts polling the tasks of a topic, which are executed by the given handler.
// Operations are performed on behalf of the given identity.
//
// Start returns immediately. The polling runs until Stop is called.
func (w *Worker) Start(identity engine.Identity, topic string, handler Handler) error {
	if identity.IsZero() {
		return errors.New("identity is empty")
	}
	if strings.TrimSpace(topic) == "" {
		return errors.New("topic must not be empty or blank")
	}
	if handler == nil {
		return errors.New("handler is nil")
	}

	if !w.state.CompareAndSwap(stateIdle, statePolling) {
		if w.state.Load() == stateStopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}

	w.logger.Info("worker started", "topic", topic)

	go w.poll(identity, topic, handler)
	return nil
}

// Stop stops the polling. An in-flight fetch or the execution of a fetched batch is not interrupted.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		previous := w.state.Swap(stateStopped)
		close(w.stopC)

		if previous == stateIdle {
			close(w.done)
		}
	})
}

func (w *Worker) poll(identity engine.Identity, topic string, handler Handler) {
	defer close(w.done)

	cmd := engine.FetchAndLockCmd{
		LockDuration:       int(w.options.LockDuration.Milliseconds()),
		LongPollingTimeout: int(w.options.LongPollingTimeout.Milliseconds()),
		MaxTasks:           w.options.MaxTasks,
		TopicName:          topic,
		WorkerId:           w.id,
	}

	for w.IsActive() {
		tasks, err := w.api.FetchAndLockExternalTasks(context.Background(), identity, cmd)
		if err != nil {
			w.logger.Error("failed to fetch and lock external tasks", "topic", topic, "err", err)
			fetchFailuresTotal.WithLabelValues(topic).Inc()
			tasks = nil
		}

		if len(tasks) == 0 {
			w.sleep(w.options.PollInterval)
			continue
		}

		fetchedTasksTotal.WithLabelValues(topic).Add(float64(len(tasks)))

		var wg sync.WaitGroup
		for _, task := range tasks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.execute(identity, task, handler)
			}()
		}

		wg.Wait()
	}

	w.logger.Info("worker stopped", "topic", topic)
}

// sleep waits for the given duration or until the worker is stopped.
func (w *Worker) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-w.stopC:
	}
}
