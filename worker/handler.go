package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gclaussn/go-extask/engine"
)

// Handler must be implemented to execute the tasks of a topic.
//
// A handler returns a result, which is JSON encoded, when the task is finished.
// To finish a task with a BPMN error, an error created via [NewBpmnError] must be returned.
// Any other error finishes the task with a service error.
//
// Since a task can be fetched again, when its outcome could not be reported, a handler should be idempotent.
type Handler interface {
	Handle(ctx context.Context, task engine.ExternalTask) (any, error)
}

// HandlerFunc is a [Handler], which is typed by the payload P and the result R of a task.
//
// The payload of a task is decoded from JSON, before the function is called.
// A task without payload results in the zero value of P.
type HandlerFunc[P, R any] func(ctx context.Context, payload P, task engine.ExternalTask) (R, error)

func (f HandlerFunc[P, R]) Handle(ctx context.Context, task engine.ExternalTask) (any, error) {
	var payload P
	if len(task.Payload) != 0 {
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of task %s: %v", task, err)
		}
	}

	return f(ctx, payload, task)
}

// NewBpmnError creates an error, which finishes a task with a BPMN error, identified by the given code.
func NewBpmnError(code string) error {
	return bpmnError{code: code}
}

// NewServiceError creates an error, which finishes a task with a service error.
// The error message is reported along with the given details like a stack trace.
func NewServiceError(err error, details string) error {
	return serviceError{err: err, details: details}
}

type bpmnError struct {
	code string
}

func (e bpmnError) Error() string {
	return e.code
}

type serviceError struct {
	err     error
	details string
}

func (e serviceError) Error() string {
	if e.err != nil {
		return e.err.Error()
	} else {
		return "service error"
	}
}

func (e serviceError) Unwrap() error {
	return e.err
}
