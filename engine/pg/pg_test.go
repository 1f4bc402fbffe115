package pg

import (
	"context"
	"testing"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	_, err := New("")
	assert.Error(err)

	_, err = New("postgres://localhost:5432/test", func(o *Options) {
		o.Timeout = 0
	})
	assert.Error(err)
}

func TestMigrateDatabase(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	pgEngine := e.(*pgEngine)

	// when migrated again
	err := pgEngine.migrateDatabase()

	// then
	assert.Nil(err)

	ctx, cancel, err := pgEngine.acquire(context.Background())
	if err != nil {
		t.Fatalf("failed to acquire context: %v", err)
	}

	defer cancel()

	schemaVersion, err := selectSchemaVersion(ctx)
	if err := pgEngine.release(ctx, err); err != nil {
		t.Fatalf("failed to select schema version: %v", err)
	}

	assert.Equal("0.1.0", schemaVersion)
}

func TestSetTime(t *testing.T) {
	assert := assert.New(t)

	e := mustCreateEngine(t)
	defer e.Shutdown()

	t.Run("returns error when time is before engine time", func(t *testing.T) {
		// when
		err := e.SetTime(context.Background(), engine.SetTimeCmd{})

		// then
		assert.IsTypef(engine.Error{}, err, "expected engine error")

		engineErr := err.(engine.Error)
		assert.Equal(engine.ErrorConflict, engineErr.Type)
	})

	t.Run("set time expires lock", func(t *testing.T) {
		// given
		task, err := e.CreateExternalTask(context.Background(), engine.CreateExternalTaskCmd{Topic: "set-time"})
		if err != nil {
			t.Fatalf("failed to create external task: %v", err)
		}

		tasks, err := e.FetchAndLockExternalTasks(context.Background(), engine.DefaultIdentity(), engine.FetchAndLockCmd{
			LockDuration: 60000,
			MaxTasks:     1,
			TopicName:    "set-time",
			WorkerId:     "worker-a",
		})
		if err != nil {
			t.Fatalf("failed to fetch and lock external tasks: %v", err)
		}

		assert.Len(tasks, 1)

		// when
		err = e.SetTime(context.Background(), engine.SetTimeCmd{Time: time.Now().Add(time.Hour)})

		// then
		assert.Nil(err)

		tasks, err = e.FetchAndLockExternalTasks(context.Background(), engine.DefaultIdentity(), engine.FetchAndLockCmd{
			LockDuration: 60000,
			MaxTasks:     1,
			TopicName:    "set-time",
			WorkerId:     "worker-b",
		})
		if err != nil {
			t.Fatalf("failed to fetch and lock external tasks: %v", err)
		}

		assert.Len(tasks, 1)
		assert.Equal(task.Id, tasks[0].Id)
		assert.Equal("worker-b", tasks[0].LockedBy)
	})
}
