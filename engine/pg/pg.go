package pg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/internal"
	"github.com/jackc/pgx/v5/pgxpool"
)

func New(databaseUrl string, customizers ...func(*Options)) (engine.Engine, error) {
	if databaseUrl == "" {
		return nil, errors.New("database URL is empty")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	pgPoolConfig, err := pgxpool.ParseConfig(databaseUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %v", err)
	}

	if _, ok := pgPoolConfig.ConnConfig.RuntimeParams["application_name"]; !ok {
		pgPoolConfig.ConnConfig.RuntimeParams["application_name"] = options.Common.EngineId
	}

	if databaseSchema, ok := pgPoolConfig.ConnConfig.RuntimeParams["search_path"]; ok {
		options.databaseSchema = databaseSchema
	}

	pgPoolCtx, pgPoolCancel := context.WithTimeout(context.Background(), options.Timeout)
	defer pgPoolCancel()

	pgPool, err := pgxpool.NewWithConfig(pgPoolCtx, pgPoolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %v", err)
	}

	pgCtxPoolSize := int(pgPoolConfig.MaxConns)
	pgCtxPool := make(chan *pgContext, pgCtxPoolSize)

	for i := 0; i < pgCtxPoolSize; i++ {
		pgCtxPool <- &pgContext{options: options}
	}

	acquireCtx, acquireCancel := context.WithCancel(context.Background())

	pgEngine := pgEngine{
		acquireCtx:    acquireCtx,
		acquireCancel: acquireCancel,

		pgCtxPool: pgCtxPool,
		pgPool:    pgPool,
		txTimeout: options.Timeout,

		defaultQueryLimit:   options.Common.DefaultQueryLimit,
		longPollingInterval: options.Common.LongPollingInterval,
	}

	if err := pgEngine.migrateDatabase(); err != nil {
		pgEngine.Shutdown()
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	if options.Common.LockSweepCron != "" {
		pgEngine.lockSweeper = internal.NewLockSweeper(
			&pgEngine,
			options.Common.LockSweepCron,
			options.Common.OnLockSweepFailure,
		)

		pgEngine.lockSweeper.Execute()
	}

	return &pgEngine, nil
}

func NewOptions() Options {
	return Options{
		Common: engine.Options{
			DefaultQueryLimit:   1000,
			EngineId:            engine.DefaultEngineId,
			LockSweepCron:       "*/1 * * * *",
			LongPollingInterval: 250 * time.Millisecond,
		},

		Timeout: 30 * time.Second,

		databaseSchema: "public",
	}
}

type Options struct {
	Common engine.Options // Common engine options.

	Timeout time.Duration // Time limit for database transactions.

	databaseSchema string // derived from database URL - see runtime parameter "search_path"
}

func (o Options) Validate() error {
	if o.Timeout.Milliseconds() < 1 {
		return errors.New("timeout must be greater than or equal to 1 ms")
	}
	return o.Common.Validate()
}

type pgEngine struct {
	acquireCtx    context.Context    // used to prevent the acquiring of a context, when the engine is shut down
	acquireCancel context.CancelFunc // invoked when a shutdown is initiated
	shutdownOnce  sync.Once          // used to prevent more than one shutdown

	pgCtxPool chan *pgContext
	pgPool    *pgxpool.Pool
	txTimeout time.Duration

	defaultQueryLimit   int
	longPollingInterval time.Duration

	lockSweeper *internal.LockSweeper

	setTimeMutex sync.Mutex    // used to call SetTime exclusively
	offset       time.Duration // engine time offset
}

// acquire acquires a context from the pool and begins a transaction.
// The transaction is bound to the given context, which is limited by the configured timeout.
func (e *pgEngine) acquire(ctx context.Context) (*pgContext, context.CancelFunc, error) {
	now := time.Now()

	txCtx, cancel := context.WithTimeout(ctx, e.txTimeout)

	select {
	case <-e.acquireCtx.Done():
		cancel()
		return nil, nil, e.acquireCtx.Err()
	case <-txCtx.Done():
		cancel()
		return nil, nil, txCtx.Err()
	case pgCtx := <-e.pgCtxPool:
		tx, err := e.pgPool.Begin(txCtx)
		if err != nil {
			e.pgCtxPool <- pgCtx
			cancel()
			return nil, nil, err
		}

		// must be UTC and truncated to millis, since TIMESTAMP(3) is used
		// otherwise tests are flaky
		pgCtx.time = now.UTC().Add(e.offset).Truncate(time.Millisecond)

		pgCtx.tx = tx
		pgCtx.txCtx = txCtx

		return pgCtx, cancel, nil
	}
}

func (e *pgEngine) release(pgCtx *pgContext, err error) error {
	if err != nil {
		_ = pgCtx.tx.Rollback(pgCtx.txCtx)
	} else {
		err = pgCtx.tx.Commit(pgCtx.txCtx)
	}

	pgCtx.tx = nil
	pgCtx.txCtx = nil

	e.pgCtxPool <- pgCtx
	return err
}

func (e *pgEngine) migrateDatabase() error {
	ctx, cancel, err := e.acquire(context.Background())
	if err != nil {
		return err
	}

	defer cancel()
	return e.release(ctx, migrateDatabase(ctx))
}

func (e *pgEngine) CreateExternalTask(ctx context.Context, cmd engine.CreateExternalTaskCmd) (engine.ExternalTask, error) {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return engine.ExternalTask{}, err
	}

	defer cancel()
	task, err := internal.CreateExternalTask(pgCtx, cmd)
	return task, e.release(pgCtx, err)
}

func (e *pgEngine) CreateQuery() engine.Query {
	return &query{
		e: e,

		defaultQueryLimit: e.defaultQueryLimit,
		options:           engine.QueryOptions{Limit: e.defaultQueryLimit},
	}
}

func (e *pgEngine) ExtendLock(ctx context.Context, identity engine.Identity, cmd engine.ExtendLockCmd) error {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return err
	}

	defer cancel()
	err = internal.ExtendLock(pgCtx, identity, cmd)
	return e.release(pgCtx, err)
}

func (e *pgEngine) FetchAndLockExternalTasks(ctx context.Context, identity engine.Identity, cmd engine.FetchAndLockCmd) ([]engine.ExternalTask, error) {
	timeout := time.Duration(cmd.LongPollingTimeout) * time.Millisecond
	return internal.LongPoll(ctx, timeout, e.longPollingInterval, nil, func() ([]engine.ExternalTask, error) {
		pgCtx, cancel, err := e.acquire(ctx)
		if err != nil {
			return nil, err
		}

		defer cancel()
		tasks, err := internal.FetchAndLockExternalTasks(pgCtx, identity, cmd)
		return tasks, e.release(pgCtx, err)
	})
}

func (e *pgEngine) FinishExternalTask(ctx context.Context, identity engine.Identity, cmd engine.FinishExternalTaskCmd) error {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return err
	}

	defer cancel()
	err = internal.FinishExternalTask(pgCtx, identity, cmd)
	return e.release(pgCtx, err)
}

func (e *pgEngine) HandleBpmnError(ctx context.Context, identity engine.Identity, cmd engine.HandleBpmnErrorCmd) error {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return err
	}

	defer cancel()
	err = internal.HandleBpmnError(pgCtx, identity, cmd)
	return e.release(pgCtx, err)
}

func (e *pgEngine) HandleServiceError(ctx context.Context, identity engine.Identity, cmd engine.HandleServiceErrorCmd) error {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return err
	}

	defer cancel()
	err = internal.HandleServiceError(pgCtx, identity, cmd)
	return e.release(pgCtx, err)
}

func (e *pgEngine) SetTime(ctx context.Context, cmd engine.SetTimeCmd) error {
	e.setTimeMutex.Lock()
	defer e.setTimeMutex.Unlock()

	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return err
	}

	defer cancel()

	old := pgCtx.Time()
	new := cmd.Time.UTC().Truncate(time.Millisecond)

	sub := new.Sub(old)
	if sub.Milliseconds() < 0 {
		return e.release(pgCtx, engine.Error{
			Type:  engine.ErrorConflict,
			Title: "failed to set time",
			Detail: fmt.Sprintf(
				"time %s is before engine time %s",
				new.Format(time.RFC3339),
				old.Format(time.RFC3339),
			),
		})
	}

	if err := e.release(pgCtx, nil); err != nil {
		return err
	}

	e.offset = e.offset + sub
	return nil
}

func (e *pgEngine) UnlockExternalTasks(ctx context.Context, cmd engine.UnlockExternalTasksCmd) (int, error) {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return -1, err
	}

	defer cancel()
	count, err := internal.UnlockExternalTasks(pgCtx, cmd)
	return count, e.release(pgCtx, err)
}

func (e *pgEngine) Shutdown() {
	e.shutdownOnce.Do(func() {
		if e.lockSweeper != nil {
			e.lockSweeper.Stop()
		}

		e.acquireCancel()
		e.pgPool.Close()
	})
}

// API key manager

func (e *pgEngine) CreateApiKey(ctx context.Context, secretId string) (ApiKey, string, error) {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return ApiKey{}, "", err
	}

	defer cancel()
	apiKey, authorization, err := createApiKey(pgCtx, secretId)
	return apiKey, authorization, e.release(pgCtx, err)
}

func (e *pgEngine) DeleteApiKey(ctx context.Context, secretId string) error {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return err
	}

	defer cancel()
	return e.release(pgCtx, deleteApiKey(pgCtx, secretId))
}

func (e *pgEngine) GetApiKey(ctx context.Context, authorization string) (ApiKey, error) {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return ApiKey{}, err
	}

	defer cancel()
	apiKey, err := getApiKey(pgCtx, authorization)
	return apiKey, e.release(pgCtx, err)
}

func (e *pgEngine) ListApiKeys(ctx context.Context) ([]ApiKey, error) {
	pgCtx, cancel, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	defer cancel()
	apiKeys, err := listApiKeys(pgCtx)
	return apiKeys, e.release(pgCtx, err)
}
