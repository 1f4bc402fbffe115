package client

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/mem"
	httpclient "github.com/gclaussn/go-extask/http/client"
	"github.com/gclaussn/go-extask/http/server"
	"github.com/gclaussn/go-extask/worker"
	"github.com/stretchr/testify/assert"
)

type testPayload struct {
	A int `json:"a"`
	B int `json:"b"`
}

type testResult struct {
	Sum int `json:"sum"`
}

var testSumHandler = worker.HandlerFunc[testPayload, testResult](func(_ context.Context, payload testPayload, _ engine.ExternalTask) (testResult, error) {
	if payload.A < 0 {
		return testResult{}, worker.NewBpmnError("NEGATIVE")
	}
	if payload.B < 0 {
		return testResult{}, errors.New("b is negative")
	}
	return testResult{Sum: payload.A + payload.B}, nil
})

func createTestTask(t *testing.T, e engine.Engine, topic string, payload testPayload) engine.ExternalTask {
	b, _ := json.Marshal(payload)

	task, err := e.CreateExternalTask(context.Background(), engine.CreateExternalTaskCmd{
		Topic:   topic,
		Payload: b,
	})
	if err != nil {
		t.Fatalf("failed to create external task: %v", err)
	}

	return task
}

func awaitTask(t *testing.T, e engine.Engine, taskId string) engine.ExternalTask {
	var task engine.ExternalTask

	ok := assert.Eventually(t, func() bool {
		results, err := e.CreateQuery().QueryExternalTasks(context.Background(), engine.ExternalTaskCriteria{Id: taskId})
		if err != nil || len(results) != 1 {
			return false
		}

		task = results[0]
		return task.IsFinished()
	}, 5*time.Second, 10*time.Millisecond)

	if !ok {
		t.Fatalf("external task %s has not been finished", taskId)
	}

	return task
}

func TestClient(t *testing.T) {
	assert := assert.New(t)

	e, err := mem.New()
	if err != nil {
		t.Fatalf("failed to create mem engine: %v", err)
	}

	s, err := server.New(e, func(o *server.Options) {
		o.BindAddress = "127.0.0.1:8092"
		o.ShutdownDelay = 0
		o.Tokens = []string{engine.DefaultToken}
	})
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}

	s.ListenAndServe()
	defer s.Shutdown()

	time.Sleep(100 * time.Millisecond)

	c, err := New("http://127.0.0.1:8092", engine.DefaultIdentity(), func(o *httpclient.Options) {
		o.Timeout = 5 * time.Second
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	defer c.Shutdown()

	w, err := c.SubscribeToTopic("sum", testSumHandler, func(o *worker.Options) {
		o.LongPollingTimeout = 200 * time.Millisecond
	})
	if err != nil {
		t.Fatalf("failed to subscribe to topic: %v", err)
	}

	assert.True(w.IsActive())
	assert.NotEmpty(w.Id())

	t.Run("finished", func(t *testing.T) {
		task := createTestTask(t, c.Engine(), "sum", testPayload{A: 1, B: 2})

		task = awaitTask(t, c.Engine(), task.Id)
		assert.Equal(engine.ExternalTaskFinished, task.State)
		assert.JSONEq(`{"sum":3}`, string(task.Result))
		assert.Equal(w.Id(), task.LockedBy)
	})

	t.Run("BPMN error", func(t *testing.T) {
		task := createTestTask(t, c.Engine(), "sum", testPayload{A: -1})

		task = awaitTask(t, c.Engine(), task.Id)
		assert.Equal(engine.ExternalTaskBpmnError, task.State)
		assert.Equal("NEGATIVE", task.ErrorCode)
	})

	t.Run("service error", func(t *testing.T) {
		task := createTestTask(t, c.Engine(), "sum", testPayload{B: -1})

		task = awaitTask(t, c.Engine(), task.Id)
		assert.Equal(engine.ExternalTaskServiceError, task.State)
		assert.Equal("b is negative", task.ErrorMessage)
	})

	t.Run("service error when BPMN error code is empty", func(t *testing.T) {
		emptyCodeHandler := worker.HandlerFunc[testPayload, testResult](func(context.Context, testPayload, engine.ExternalTask) (testResult, error) {
			return testResult{}, worker.NewBpmnError("")
		})

		w, err := c.SubscribeToTopic("empty-code", emptyCodeHandler, func(o *worker.Options) {
			o.LongPollingTimeout = 200 * time.Millisecond
		})
		if err != nil {
			t.Fatalf("failed to subscribe to topic: %v", err)
		}

		defer func() {
			w.Stop()
			<-w.Done()
		}()

		task := createTestTask(t, c.Engine(), "empty-code", testPayload{})

		task = awaitTask(t, c.Engine(), task.Id)
		assert.Equal(engine.ExternalTaskServiceError, task.State)
		assert.Equal("BPMN error code must not be empty or blank", task.ErrorMessage)
		assert.Equal(1, task.LockCount)
	})

	t.Run("stop", func(t *testing.T) {
		w.Stop()
		<-w.Done()

		assert.False(w.IsActive())

		task := createTestTask(t, c.Engine(), "sum", testPayload{A: 1, B: 1})

		time.Sleep(300 * time.Millisecond)

		results, err := c.Engine().CreateQuery().QueryExternalTasks(context.Background(), engine.ExternalTaskCriteria{Id: task.Id})
		assert.Nil(err)
		assert.Len(results, 1)
		assert.Equal(engine.ExternalTaskPending, results[0].State)
		assert.Empty(results[0].LockedBy)
	})
}

func TestClientWithEngine(t *testing.T) {
	assert := assert.New(t)

	e, err := mem.New()
	if err != nil {
		t.Fatalf("failed to create mem engine: %v", err)
	}

	c := NewWithEngine(e, engine.DefaultIdentity())
	defer c.Shutdown()

	t.Run("returns error when topic is blank", func(t *testing.T) {
		_, err := c.SubscribeToTopic(" ", testSumHandler)
		assert.EqualError(err, "topic must not be empty or blank")
	})

	t.Run("returns error when options are invalid", func(t *testing.T) {
		_, err := c.SubscribeToTopic("sum", testSumHandler, func(o *worker.Options) {
			o.MaxTasks = 0
		})
		assert.Error(err)
	})

	t.Run("subscribes with new worker ID", func(t *testing.T) {
		w1, err := c.SubscribeToTopic("a", testSumHandler)
		assert.Nil(err)

		w2, err := c.SubscribeToTopic("b", testSumHandler)
		assert.Nil(err)

		assert.NotEqual(w1.Id(), w2.Id())
		assert.True(w1.IsActive())
		assert.True(w2.IsActive())
	})

	t.Run("executes tasks", func(t *testing.T) {
		w, err := c.SubscribeToTopic("c", testSumHandler, func(o *worker.Options) {
			o.LongPollingTimeout = 100 * time.Millisecond
			o.MaxTasks = 2
		})
		assert.Nil(err)

		var taskIds []string
		for i := 0; i < 3; i++ {
			taskIds = append(taskIds, createTestTask(t, e, "c", testPayload{A: i, B: i}).Id)
		}

		for i, taskId := range taskIds {
			task := awaitTask(t, e, taskId)
			assert.Equal(engine.ExternalTaskFinished, task.State)
			assert.Equal(w.Id(), task.LockedBy)

			var result testResult
			assert.Nil(json.Unmarshal(task.Result, &result))
			assert.Equal(2*i, result.Sum)
		}
	})

	t.Run("shutdown stops all workers", func(t *testing.T) {
		e, err := mem.New()
		if err != nil {
			t.Fatalf("failed to create mem engine: %v", err)
		}

		c := NewWithEngine(e, engine.DefaultIdentity())

		w1, _ := c.SubscribeToTopic("d", testSumHandler)
		w2, _ := c.SubscribeToTopic("e", testSumHandler)

		c.Shutdown()

		assert.False(w1.IsActive())
		assert.False(w2.IsActive())

		_, err = c.SubscribeToTopic("f", testSumHandler)
		assert.EqualError(err, "client is shut down")
	})
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	t.Run("returns error when identity is empty", func(t *testing.T) {
		_, err := New("http://127.0.0.1:8092", engine.Identity{})
		assert.EqualError(err, "identity is empty")
	})

	t.Run("returns error when URL is empty", func(t *testing.T) {
		_, err := New("", engine.DefaultIdentity())
		assert.EqualError(err, "URL is empty")
	})
}
