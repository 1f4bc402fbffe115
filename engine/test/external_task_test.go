package test

import (
	"context"
	"testing"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/stretchr/testify/assert"
)

func assertEngineError(t *testing.T, err error, expectedType engine.ErrorType) {
	assert := assert.New(t)

	assert.IsTypef(engine.Error{}, err, "expected engine error")
	if engineErr, ok := err.(engine.Error); ok {
		assert.Equal(expectedType, engineErr.Type)
		assert.NotEmpty(engineErr.Title)
		assert.NotEmpty(engineErr.Detail)
	}
}

func TestCreateExternalTask(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	for i, e := range engines {
		t.Run(engineTypes[i]+"create", func(t *testing.T) {
			// when
			task, err := e.CreateExternalTask(context.Background(), engine.CreateExternalTaskCmd{
				CorrelationId:      "ck",
				FlowNodeInstanceId: "fni",
				Payload:            []byte(`{"amount":42}`),
				ProcessInstanceId:  "pi",
				Topic:              "create",
			})

			// then
			assert.Nil(err)

			assert.NotEmpty(task.Id)
			assert.Equal("ck", task.CorrelationId)
			assert.Equal("fni", task.FlowNodeInstanceId)
			assert.Equal("pi", task.ProcessInstanceId)
			assert.False(task.CreatedAt.IsZero())
			assert.Equal(engine.DefaultEngineId, task.CreatedBy)
			assert.Equal(0, task.LockCount)
			assert.Nil(task.LockExpiresAt)
			assert.Empty(task.LockedBy)
			assert.JSONEq(`{"amount":42}`, string(task.Payload))
			assert.Equal(engine.ExternalTaskPending, task.State)
			assert.Equal("create", task.Topic)

			assert.Equal(task, mustQueryExternalTask(t, e, task.Id))
		})
	}
}

func TestFetchAndLockExternalTasks(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	for i, e := range engines {
		t.Run(engineTypes[i]+"returns error when identity has no token", func(t *testing.T) {
			// when
			_, err := e.FetchAndLockExternalTasks(context.Background(), engine.Identity{}, engine.FetchAndLockCmd{
				LockDuration: 30000,
				MaxTasks:     1,
				TopicName:    "unauthorized",
				WorkerId:     testWorkerId,
			})

			// then
			assertEngineError(t, err, engine.ErrorUnauthorized)
		})

		t.Run(engineTypes[i]+"locks tasks of topic", func(t *testing.T) {
			// given
			task1 := mustCreateExternalTask(t, e, "fetch")
			task2 := mustCreateExternalTask(t, e, "fetch")
			task3 := mustCreateExternalTask(t, e, "fetch")
			mustCreateExternalTask(t, e, "fetch-other")

			// when
			tasks := mustFetchAndLock(t, e, "fetch", 2)

			// then
			assert.Len(tasks, 2)
			assert.Equal(task1.Id, tasks[0].Id)
			assert.Equal(task2.Id, tasks[1].Id)

			for _, task := range tasks {
				assert.Equal(testWorkerId, task.LockedBy)
				assert.NotNil(task.LockExpiresAt)
				assert.Equal(1, task.LockCount)
				assert.Equal(engine.ExternalTaskPending, task.State)
				assert.JSONEq(`{"amount":42}`, string(task.Payload))
			}

			// when
			tasks = mustFetchAndLock(t, e, "fetch", 10)

			// then
			assert.Len(tasks, 1)
			assert.Equal(task3.Id, tasks[0].Id)

			// when
			tasks = mustFetchAndLock(t, e, "fetch", 10)

			// then
			assert.Len(tasks, 0)
		})

		t.Run(engineTypes[i]+"locks task when lock expired", func(t *testing.T) {
			// given
			task := mustCreateExternalTask(t, e, "fetch-expired")

			_, err := e.FetchAndLockExternalTasks(context.Background(), engine.DefaultIdentity(), engine.FetchAndLockCmd{
				LockDuration: 1,
				MaxTasks:     1,
				TopicName:    "fetch-expired",
				WorkerId:     "expired-worker",
			})
			assert.Nil(err)

			time.Sleep(10 * time.Millisecond)

			// when
			tasks := mustFetchAndLock(t, e, "fetch-expired", 1)

			// then
			assert.Len(tasks, 1)
			assert.Equal(task.Id, tasks[0].Id)
			assert.Equal(testWorkerId, tasks[0].LockedBy)
			assert.Equal(2, tasks[0].LockCount)
		})
	}
}

func TestExtendLock(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	for i, e := range engines {
		t.Run(engineTypes[i]+"returns error when task not exists", func(t *testing.T) {
			// when
			err := e.ExtendLock(context.Background(), engine.DefaultIdentity(), engine.ExtendLockCmd{
				TaskId:             "not-existing",
				AdditionalDuration: 1000,
				WorkerId:           testWorkerId,
			})

			// then
			assertEngineError(t, err, engine.ErrorNotFound)
		})

		t.Run(engineTypes[i]+"returns error when task is not locked", func(t *testing.T) {
			// given
			task := mustCreateExternalTask(t, e, "extend-not-locked")

			// when
			err := e.ExtendLock(context.Background(), engine.DefaultIdentity(), engine.ExtendLockCmd{
				TaskId:             task.Id,
				AdditionalDuration: 1000,
				WorkerId:           testWorkerId,
			})

			// then
			assertEngineError(t, err, engine.ErrorConflict)
		})

		t.Run(engineTypes[i]+"returns error when task is locked by other worker", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "extend-other")
			task := mustFetchAndLock(t, e, "extend-other", 1)[0]

			// when
			err := e.ExtendLock(context.Background(), engine.DefaultIdentity(), engine.ExtendLockCmd{
				TaskId:             task.Id,
				AdditionalDuration: 1000,
				WorkerId:           "other-worker",
			})

			// then
			assertEngineError(t, err, engine.ErrorConflict)
		})

		t.Run(engineTypes[i]+"extend", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "extend")
			task := mustFetchAndLock(t, e, "extend", 1)[0]

			// when
			err := e.ExtendLock(context.Background(), engine.DefaultIdentity(), engine.ExtendLockCmd{
				TaskId:             task.Id,
				AdditionalDuration: 3600000,
				WorkerId:           testWorkerId,
			})

			// then
			assert.Nil(err)

			extendedTask := mustQueryExternalTask(t, e, task.Id)
			assert.NotNil(extendedTask.LockExpiresAt)
			assert.True(extendedTask.LockExpiresAt.After(*task.LockExpiresAt))
			assert.Equal(testWorkerId, extendedTask.LockedBy)
		})
	}
}

func TestFinishExternalTask(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	for i, e := range engines {
		t.Run(engineTypes[i]+"returns error when task not exists", func(t *testing.T) {
			// when
			err := e.FinishExternalTask(context.Background(), engine.DefaultIdentity(), engine.FinishExternalTaskCmd{
				TaskId:   "not-existing",
				WorkerId: testWorkerId,
			})

			// then
			assertEngineError(t, err, engine.ErrorNotFound)
		})

		t.Run(engineTypes[i]+"finish", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "finish")
			task := mustFetchAndLock(t, e, "finish", 1)[0]

			// when
			err := e.FinishExternalTask(context.Background(), engine.DefaultIdentity(), engine.FinishExternalTaskCmd{
				TaskId:   task.Id,
				Result:   []byte(`{"ok":true}`),
				WorkerId: testWorkerId,
			})

			// then
			assert.Nil(err)

			finishedTask := mustQueryExternalTask(t, e, task.Id)
			assert.Equal(engine.ExternalTaskFinished, finishedTask.State)
			assert.True(finishedTask.IsFinished())
			assert.NotNil(finishedTask.FinishedAt)
			assert.Nil(finishedTask.LockExpiresAt)
			assert.Equal(testWorkerId, finishedTask.LockedBy)
			assert.JSONEq(`{"ok":true}`, string(finishedTask.Result))

			// when finished again
			err = e.FinishExternalTask(context.Background(), engine.DefaultIdentity(), engine.FinishExternalTaskCmd{
				TaskId:   task.Id,
				WorkerId: testWorkerId,
			})

			// then
			assertEngineError(t, err, engine.ErrorConflict)

			// finished task is not fetched again
			assert.Len(mustFetchAndLock(t, e, "finish", 1), 0)
		})

		t.Run(engineTypes[i]+"returns error when lock expired", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "finish-expired")

			tasks, err := e.FetchAndLockExternalTasks(context.Background(), engine.DefaultIdentity(), engine.FetchAndLockCmd{
				LockDuration: 1,
				MaxTasks:     1,
				TopicName:    "finish-expired",
				WorkerId:     testWorkerId,
			})
			assert.Nil(err)
			assert.Len(tasks, 1)

			time.Sleep(10 * time.Millisecond)

			// when
			err = e.FinishExternalTask(context.Background(), engine.DefaultIdentity(), engine.FinishExternalTaskCmd{
				TaskId:   tasks[0].Id,
				WorkerId: testWorkerId,
			})

			// then
			assertEngineError(t, err, engine.ErrorConflict)
		})
	}
}

func TestHandleBpmnError(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	for i, e := range engines {
		t.Run(engineTypes[i]+"handle", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "bpmn-error")
			task := mustFetchAndLock(t, e, "bpmn-error", 1)[0]

			// when
			err := e.HandleBpmnError(context.Background(), engine.DefaultIdentity(), engine.HandleBpmnErrorCmd{
				TaskId:    task.Id,
				ErrorCode: "INSUFFICIENT_FUNDS",
				WorkerId:  testWorkerId,
			})

			// then
			assert.Nil(err)

			finishedTask := mustQueryExternalTask(t, e, task.Id)
			assert.Equal(engine.ExternalTaskBpmnError, finishedTask.State)
			assert.Equal("INSUFFICIENT_FUNDS", finishedTask.ErrorCode)
			assert.NotNil(finishedTask.FinishedAt)
			assert.Nil(finishedTask.LockExpiresAt)
			assert.Equal(testWorkerId, finishedTask.LockedBy)
		})

		t.Run(engineTypes[i]+"returns error when error code is blank", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "bpmn-error-blank")
			task := mustFetchAndLock(t, e, "bpmn-error-blank", 1)[0]

			// when
			err := e.HandleBpmnError(context.Background(), engine.DefaultIdentity(), engine.HandleBpmnErrorCmd{
				TaskId:    task.Id,
				ErrorCode: " ",
				WorkerId:  testWorkerId,
			})

			// then
			assertEngineError(t, err, engine.ErrorValidation)

			assert.Equal(engine.ExternalTaskPending, mustQueryExternalTask(t, e, task.Id).State)
		})

		t.Run(engineTypes[i]+"returns error when task is locked by other worker", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "bpmn-error-other")
			task := mustFetchAndLock(t, e, "bpmn-error-other", 1)[0]

			// when
			err := e.HandleBpmnError(context.Background(), engine.DefaultIdentity(), engine.HandleBpmnErrorCmd{
				TaskId:    task.Id,
				ErrorCode: "INSUFFICIENT_FUNDS",
				WorkerId:  "other-worker",
			})

			// then
			assertEngineError(t, err, engine.ErrorConflict)
		})
	}
}

func TestHandleServiceError(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	for i, e := range engines {
		t.Run(engineTypes[i]+"handle", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "service-error")
			task := mustFetchAndLock(t, e, "service-error", 1)[0]

			// when
			err := e.HandleServiceError(context.Background(), engine.DefaultIdentity(), engine.HandleServiceErrorCmd{
				TaskId:       task.Id,
				ErrorDetails: "stack trace",
				ErrorMessage: "connection refused",
				WorkerId:     testWorkerId,
			})

			// then
			assert.Nil(err)

			finishedTask := mustQueryExternalTask(t, e, task.Id)
			assert.Equal(engine.ExternalTaskServiceError, finishedTask.State)
			assert.Equal("connection refused", finishedTask.ErrorMessage)
			assert.Equal("stack trace", finishedTask.ErrorDetails)
			assert.NotNil(finishedTask.FinishedAt)
		})

		t.Run(engineTypes[i]+"returns error when error message is empty", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "service-error-empty")
			task := mustFetchAndLock(t, e, "service-error-empty", 1)[0]

			// when
			err := e.HandleServiceError(context.Background(), engine.DefaultIdentity(), engine.HandleServiceErrorCmd{
				TaskId:   task.Id,
				WorkerId: testWorkerId,
			})

			// then
			assertEngineError(t, err, engine.ErrorValidation)
		})
	}
}

func TestUnlockExternalTasks(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	for i, e := range engines {
		t.Run(engineTypes[i]+"returns error when neither worker ID nor expired is specified", func(t *testing.T) {
			// when
			_, err := e.UnlockExternalTasks(context.Background(), engine.UnlockExternalTasksCmd{})

			// then
			assertEngineError(t, err, engine.ErrorValidation)
		})

		t.Run(engineTypes[i]+"unlock by worker", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "unlock")
			mustCreateExternalTask(t, e, "unlock")
			tasks := mustFetchAndLock(t, e, "unlock", 2)
			assert.Len(tasks, 2)

			// when
			count, err := e.UnlockExternalTasks(context.Background(), engine.UnlockExternalTasksCmd{WorkerId: testWorkerId})

			// then
			assert.Nil(err)
			assert.GreaterOrEqual(count, 2)

			unlockedTask := mustQueryExternalTask(t, e, tasks[0].Id)
			assert.Empty(unlockedTask.LockedBy)
			assert.Nil(unlockedTask.LockExpiresAt)
			assert.Equal(engine.ExternalTaskPending, unlockedTask.State)
		})

		t.Run(engineTypes[i]+"unlock expired", func(t *testing.T) {
			// given
			mustCreateExternalTask(t, e, "unlock-expired")
			mustCreateExternalTask(t, e, "unlock-expired")

			expired, err := e.FetchAndLockExternalTasks(context.Background(), engine.DefaultIdentity(), engine.FetchAndLockCmd{
				LockDuration: 1,
				MaxTasks:     1,
				TopicName:    "unlock-expired",
				WorkerId:     "expired-worker",
			})
			assert.Nil(err)
			assert.Len(expired, 1)

			locked := mustFetchAndLock(t, e, "unlock-expired", 1)
			assert.Len(locked, 1)

			time.Sleep(10 * time.Millisecond)

			// when
			count, err := e.UnlockExternalTasks(context.Background(), engine.UnlockExternalTasksCmd{Expired: true})

			// then
			assert.Nil(err)
			assert.Equal(1, count)

			assert.Empty(mustQueryExternalTask(t, e, expired[0].Id).LockedBy)
			assert.Equal(testWorkerId, mustQueryExternalTask(t, e, locked[0].Id).LockedBy)
		})
	}
}

func TestQueryExternalTasks(t *testing.T) {
	assert := assert.New(t)

	engines, engineTypes := mustCreateEngines(t)
	for _, e := range engines {
		defer e.Shutdown()
	}

	for i, e := range engines {
		// given
		mustCreateExternalTask(t, e, "query-a")
		mustCreateExternalTask(t, e, "query-a")
		mustCreateExternalTask(t, e, "query-b")

		mustFetchAndLock(t, e, "query-b", 1)

		t.Run(engineTypes[i]+"topic", func(t *testing.T) {
			results, err := e.CreateQuery().QueryExternalTasks(context.Background(), engine.ExternalTaskCriteria{Topic: "query-a"})
			assert.Nil(err)
			assert.Len(results, 2)
		})

		t.Run(engineTypes[i]+"locked by", func(t *testing.T) {
			results, err := e.CreateQuery().QueryExternalTasks(context.Background(), engine.ExternalTaskCriteria{
				LockedBy: testWorkerId,
				Topic:    "query-b",
			})
			assert.Nil(err)
			assert.Len(results, 1)
		})

		t.Run(engineTypes[i]+"state", func(t *testing.T) {
			results, err := e.CreateQuery().QueryExternalTasks(context.Background(), engine.ExternalTaskCriteria{
				State: engine.ExternalTaskFinished,
				Topic: "query-a",
			})
			assert.Nil(err)
			assert.Len(results, 0)
		})

		t.Run(engineTypes[i]+"limit and offset", func(t *testing.T) {
			q := e.CreateQuery()
			q.SetOptions(engine.QueryOptions{Limit: 1, Offset: 1})

			results, err := q.QueryExternalTasks(context.Background(), engine.ExternalTaskCriteria{Topic: "query-a"})
			assert.Nil(err)
			assert.Len(results, 1)
		})
	}
}
