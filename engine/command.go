package engine

import (
	"encoding/json"
	"time"
)

// CreateExternalTaskCmd provides data for the creation of an external task.
type CreateExternalTaskCmd struct {
	// Optional key, used to correlate a task with a business entity.
	CorrelationId string `json:"correlationId,omitempty" validate:"max=255"`
	// Optional ID of the flow node instance, which the task belongs to.
	FlowNodeInstanceId string `json:"flowNodeInstanceId,omitempty" validate:"max=255"`
	// Business data, provided as JSON, that is handed over to the worker.
	Payload json.RawMessage `json:"payload,omitempty"`
	// Optional ID of the process instance, which the task belongs to.
	ProcessInstanceId string `json:"processInstanceId,omitempty" validate:"max=255"`
	// Topic, workers subscribe to.
	Topic string `json:"topic" validate:"required,max=255,topic_name"`
}

// ExtendLockCmd is used to extend the lock of a task, which is locked by a specific worker.
type ExtendLockCmd struct {
	// Task ID.
	TaskId string `json:"-"`

	// Duration in milliseconds, the lock is extended by, starting at the engine's current time.
	AdditionalDuration int `json:"additionalDuration" validate:"gte=1"`
	// ID of the worker that locked the task.
	WorkerId string `json:"workerId" validate:"required"`
}

// FetchAndLockCmd specifies which and how many pending tasks are fetched and locked by a worker.
type FetchAndLockCmd struct {
	// Duration in milliseconds, a fetched task is locked for the worker.
	LockDuration int `json:"lockDuration" validate:"gte=1"`
	// Maximum time in milliseconds to wait for pending tasks. If `0`, the engine responds immediately.
	LongPollingTimeout int `json:"longPollingTimeout" validate:"gte=0,lte=60000"`
	// Maximum number of tasks to fetch and lock.
	MaxTasks int `json:"maxTasks" validate:"gte=1,lte=1000"`
	// Topic condition.
	TopicName string `json:"topicName" validate:"required,topic_name"`
	// ID of the worker that locks the tasks.
	WorkerId string `json:"workerId" validate:"required"`
}

// FinishExternalTaskCmd is used to finish a locked task successfully.
type FinishExternalTaskCmd struct {
	// Task ID.
	TaskId string `json:"-"`

	// Optional result, provided as JSON.
	Result json.RawMessage `json:"result,omitempty"`
	// ID of the worker that locked the task.
	WorkerId string `json:"workerId" validate:"required"`
}

// HandleBpmnErrorCmd is used to finish a locked task with a BPMN error.
type HandleBpmnErrorCmd struct {
	// Task ID.
	TaskId string `json:"-"`

	// Code of the BPMN error, used to select a matching error boundary event.
	ErrorCode string `json:"errorCode" validate:"required"`
	// ID of the worker that locked the task.
	WorkerId string `json:"workerId" validate:"required"`
}

// HandleServiceErrorCmd is used to finish a locked task with a technical failure.
type HandleServiceErrorCmd struct {
	// Task ID.
	TaskId string `json:"-"`

	// Optional details like a stack trace.
	ErrorDetails string `json:"errorDetails,omitempty"`
	// Message, describing the failure.
	ErrorMessage string `json:"errorMessage"`
	// ID of the worker that locked the task.
	WorkerId string `json:"workerId" validate:"required"`
}

// SetTimeCmd is a command for increasing the engine's time for testing purposes.
type SetTimeCmd struct {
	// A future point in time.
	Time time.Time `json:"time" validate:"required"`
}

// UnlockExternalTasksCmd is used to unlock pending tasks.
//
// Either a worker ID must be provided or expired must be true.
type UnlockExternalTasksCmd struct {
	// Unlocks tasks, whose lock expired, regardless of the worker.
	Expired bool `json:"expired,omitempty"`
	// ID of the worker that locked the tasks.
	WorkerId string `json:"workerId,omitempty" validate:"required_without=Expired"`
}
