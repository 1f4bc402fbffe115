package mem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/internal"
)

func New(customizers ...func(*Options)) (engine.Engine, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	ctx := newMemContext(options)

	memEngine := memEngine{
		ctx:      ctx,
		notifier: internal.NewNotifier(),

		defaultQueryLimit:   options.Common.DefaultQueryLimit,
		longPollingInterval: options.Common.LongPollingInterval,
	}

	if options.Common.LockSweepCron != "" {
		memEngine.lockSweeper = internal.NewLockSweeper(
			&memEngine,
			options.Common.LockSweepCron,
			options.Common.OnLockSweepFailure,
		)

		memEngine.lockSweeper.Execute()
	}

	return &memEngine, nil
}

func NewOptions() Options {
	return Options{
		Common: engine.Options{
			DefaultQueryLimit:   1000,
			EngineId:            engine.DefaultEngineId,
			LockSweepCron:       "",
			LongPollingInterval: 250 * time.Millisecond,
		},
	}
}

type Options struct {
	Common engine.Options // Common options
}

func (o Options) Validate() error {
	return o.Common.Validate()
}

type memEngine struct {
	ctxMutex   sync.RWMutex
	ctx        *memContext
	isReadLock bool
	notifier   *internal.Notifier

	defaultQueryLimit   int
	longPollingInterval time.Duration

	offset      time.Duration
	lockSweeper *internal.LockSweeper
}

func (e *memEngine) CreateExternalTask(_ context.Context, cmd engine.CreateExternalTaskCmd) (engine.ExternalTask, error) {
	task, err := e.createExternalTask(cmd)
	if err == nil {
		e.notifier.Notify()
	}
	return task, err
}

func (e *memEngine) createExternalTask(cmd engine.CreateExternalTaskCmd) (engine.ExternalTask, error) {
	defer e.unlock()
	return internal.CreateExternalTask(e.wlock(), cmd)
}

func (e *memEngine) CreateQuery() engine.Query {
	return &query{
		e: e,

		defaultQueryLimit: e.defaultQueryLimit,
		options:           engine.QueryOptions{Limit: e.defaultQueryLimit},
	}
}

func (e *memEngine) ExtendLock(_ context.Context, identity engine.Identity, cmd engine.ExtendLockCmd) error {
	defer e.unlock()
	return internal.ExtendLock(e.wlock(), identity, cmd)
}

func (e *memEngine) FetchAndLockExternalTasks(ctx context.Context, identity engine.Identity, cmd engine.FetchAndLockCmd) ([]engine.ExternalTask, error) {
	timeout := time.Duration(cmd.LongPollingTimeout) * time.Millisecond
	return internal.LongPoll(ctx, timeout, e.longPollingInterval, e.notifier, func() ([]engine.ExternalTask, error) {
		defer e.unlock()
		return internal.FetchAndLockExternalTasks(e.wlock(), identity, cmd)
	})
}

func (e *memEngine) FinishExternalTask(_ context.Context, identity engine.Identity, cmd engine.FinishExternalTaskCmd) error {
	defer e.unlock()
	return internal.FinishExternalTask(e.wlock(), identity, cmd)
}

func (e *memEngine) HandleBpmnError(_ context.Context, identity engine.Identity, cmd engine.HandleBpmnErrorCmd) error {
	defer e.unlock()
	return internal.HandleBpmnError(e.wlock(), identity, cmd)
}

func (e *memEngine) HandleServiceError(_ context.Context, identity engine.Identity, cmd engine.HandleServiceErrorCmd) error {
	defer e.unlock()
	return internal.HandleServiceError(e.wlock(), identity, cmd)
}

func (e *memEngine) SetTime(_ context.Context, cmd engine.SetTimeCmd) error {
	defer e.unlock()
	ctx := e.wlock()

	old := ctx.Time()
	new := cmd.Time.UTC().Truncate(time.Millisecond)

	sub := new.Sub(old)
	if sub.Milliseconds() < 0 {
		return engine.Error{
			Type:  engine.ErrorConflict,
			Title: "failed to set time",
			Detail: fmt.Sprintf(
				"time %s is before engine time %s",
				new.Format(time.RFC3339),
				old.Format(time.RFC3339),
			),
		}
	}

	e.offset = e.offset + sub
	return nil
}

func (e *memEngine) UnlockExternalTasks(_ context.Context, cmd engine.UnlockExternalTasksCmd) (int, error) {
	count, err := e.unlockExternalTasks(cmd)
	if count > 0 {
		e.notifier.Notify()
	}
	return count, err
}

func (e *memEngine) unlockExternalTasks(cmd engine.UnlockExternalTasksCmd) (int, error) {
	defer e.unlock()
	return internal.UnlockExternalTasks(e.wlock(), cmd)
}

func (e *memEngine) Shutdown() {
	if e.lockSweeper != nil {
		e.lockSweeper.Stop()
	}

	defer e.unlock()
	e.wlock().clear()
}

func (e *memEngine) rlock() *memContext {
	now := time.Now()

	e.ctxMutex.RLock()
	e.isReadLock = true

	// must be UTC and truncated to millis (see engine/pg/pg.go:pgEngine#acquire)
	e.ctx.time = now.UTC().Add(e.offset).Truncate(time.Millisecond)

	return e.ctx
}

func (e *memEngine) wlock() *memContext {
	now := time.Now()

	e.ctxMutex.Lock()
	e.isReadLock = false

	// must be UTC and truncated to millis (see engine/pg/pg.go:pgEngine#acquire)
	e.ctx.time = now.UTC().Add(e.offset).Truncate(time.Millisecond)

	return e.ctx
}

func (e *memEngine) unlock() {
	if e.isReadLock {
		e.ctxMutex.RUnlock()
	} else {
		e.ctxMutex.Unlock()
	}
}
