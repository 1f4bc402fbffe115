package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/gclaussn/go-extask/engine"
)

// Assert creates an assert, used to test the execution of tasks of a topic by a handler.
// The engine is usually a mem engine. Operations are performed on behalf of the default identity.
func Assert(t *testing.T, w *Worker, e engine.Engine, topic string) *TopicAssert {
	return &TopicAssert{
		t:     t,
		w:     w,
		e:     e,
		topic: topic,
	}
}

type TopicAssert struct {
	t     *testing.T
	w     *Worker
	e     engine.Engine
	topic string

	taskId string // ID of the last created or executed task
}

// CreateExternalTask creates a task with a JSON encoded payload.
func (a *TopicAssert) CreateExternalTask(payload any) engine.ExternalTask {
	cmd := engine.CreateExternalTaskCmd{Topic: a.topic}

	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			a.t.Fatalf("failed to encode payload: %v", err)
		}
		cmd.Payload = b
	}

	task, err := a.e.CreateExternalTask(context.Background(), cmd)
	if err != nil {
		a.t.Fatalf("failed to create external task: %v", err)
	}

	a.taskId = task.Id
	return task
}

// ExecuteExternalTask fetches and locks the next pending task of the topic and executes it, using the given handler.
func (a *TopicAssert) ExecuteExternalTask(handler Handler) {
	identity := engine.DefaultIdentity()

	tasks, err := a.e.FetchAndLockExternalTasks(context.Background(), identity, engine.FetchAndLockCmd{
		LockDuration: int(a.w.options.LockDuration.Milliseconds()),
		MaxTasks:     1,
		TopicName:    a.topic,
		WorkerId:     a.w.id,
	})
	if err != nil {
		a.t.Fatalf("failed to fetch and lock external task: %v", err)
	}

	if len(tasks) == 0 {
		a.t.Fatalf("no external task of topic %s locked", a.topic)
	}

	a.taskId = tasks[0].Id

	if err := a.w.ExecuteExternalTask(identity, tasks[0], handler); err != nil {
		a.t.Fatalf("failed to execute external task %s: %v", tasks[0], err)
	}
}

// ExternalTask returns the current state of the last created or executed task.
func (a *TopicAssert) ExternalTask() engine.ExternalTask {
	if a.taskId == "" {
		a.t.Fatal("no external task created or executed")
	}

	results, err := a.e.CreateQuery().QueryExternalTasks(context.Background(), engine.ExternalTaskCriteria{Id: a.taskId})
	if err != nil {
		a.t.Fatalf("failed to query external task %s: %v", a.taskId, err)
	}

	if len(results) == 0 {
		a.t.Fatalf("failed to find external task %s", a.taskId)
	}

	return results[0]
}

// HasBpmnError asserts that the last task has been finished with a BPMN error.
func (a *TopicAssert) HasBpmnError(errorCode string) {
	task := a.ExternalTask()
	if task.State != engine.ExternalTaskBpmnError {
		a.t.Fatalf("expected external task %s to be in state %s, but is %s", task, engine.ExternalTaskBpmnError, task.State)
	}
	if task.ErrorCode != errorCode {
		a.t.Fatalf("expected external task %s to have error code %s, but has %s", task, errorCode, task.ErrorCode)
	}
}

// HasServiceError asserts that the last task has been finished with a service error.
func (a *TopicAssert) HasServiceError(errorMessage string) {
	task := a.ExternalTask()
	if task.State != engine.ExternalTaskServiceError {
		a.t.Fatalf("expected external task %s to be in state %s, but is %s", task, engine.ExternalTaskServiceError, task.State)
	}
	if task.ErrorMessage != errorMessage {
		a.t.Fatalf("expected external task %s to have error message %q, but has %q", task, errorMessage, task.ErrorMessage)
	}
}

// IsFinished asserts that the last task has been finished successfully and decodes its result into v, if not nil.
func (a *TopicAssert) IsFinished(v any) {
	task := a.ExternalTask()
	if task.State != engine.ExternalTaskFinished {
		a.t.Fatalf("expected external task %s to be in state %s, but is %s", task, engine.ExternalTaskFinished, task.State)
	}

	if v == nil {
		return
	}
	if err := json.Unmarshal(task.Result, v); err != nil {
		a.t.Fatalf("failed to decode result of external task %s: %v", task, err)
	}
}

// IsPending asserts that the last task is pending.
func (a *TopicAssert) IsPending() {
	task := a.ExternalTask()
	if task.State != engine.ExternalTaskPending {
		a.t.Fatalf("expected external task %s to be in state %s, but is %s", task, engine.ExternalTaskPending, task.State)
	}
}
