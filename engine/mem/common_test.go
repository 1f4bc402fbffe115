package mem

import (
	"context"
	"testing"

	"github.com/gclaussn/go-extask/engine"
)

func mustCreateEngine(t *testing.T, customizers ...func(*Options)) engine.Engine {
	e, err := New(customizers...)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func mustCreateExternalTask(t *testing.T, e engine.Engine, topic string) engine.ExternalTask {
	task, err := e.CreateExternalTask(context.Background(), engine.CreateExternalTaskCmd{
		Payload: []byte(`{"key":"value"}`),
		Topic:   topic,
	})
	if err != nil {
		t.Fatalf("failed to create external task: %v", err)
	}
	return task
}

func mustFetchAndLock(t *testing.T, e engine.Engine, topic string, workerId string) []engine.ExternalTask {
	tasks, err := e.FetchAndLockExternalTasks(context.Background(), engine.DefaultIdentity(), engine.FetchAndLockCmd{
		LockDuration: 30000,
		MaxTasks:     10,
		TopicName:    topic,
		WorkerId:     workerId,
	})
	if err != nil {
		t.Fatalf("failed to fetch and lock external tasks: %v", err)
	}
	return tasks
}
