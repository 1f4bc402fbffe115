package engine

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExternalTaskState describes possible external task states.
//
// A task is created in state [ExternalTaskPending]. When a worker reports the outcome of a locked task,
// the task ends in one of the terminal states [ExternalTaskFinished], [ExternalTaskBpmnError] or [ExternalTaskServiceError].
type ExternalTaskState int

const (
	ExternalTaskBpmnError ExternalTaskState = iota + 1
	ExternalTaskFinished
	ExternalTaskPending
	ExternalTaskServiceError
)

func MapExternalTaskState(s string) ExternalTaskState {
	switch s {
	case "BPMN_ERROR":
		return ExternalTaskBpmnError
	case "FINISHED":
		return ExternalTaskFinished
	case "PENDING":
		return ExternalTaskPending
	case "SERVICE_ERROR":
		return ExternalTaskServiceError
	default:
		return 0
	}
}

func (v ExternalTaskState) IsTerminal() bool {
	return v == ExternalTaskBpmnError || v == ExternalTaskFinished || v == ExternalTaskServiceError
}

func (v ExternalTaskState) MarshalJSON() ([]byte, error) {
	s := v.String()
	if s == "" {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", s)), nil
}

func (v ExternalTaskState) String() string {
	switch v {
	case ExternalTaskBpmnError:
		return "BPMN_ERROR"
	case ExternalTaskFinished:
		return "FINISHED"
	case ExternalTaskPending:
		return "PENDING"
	case ExternalTaskServiceError:
		return "SERVICE_ERROR"
	default:
		return ""
	}
}

func (v *ExternalTaskState) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		return nil
	}
	if len(s) > 2 {
		s = s[1 : len(s)-1]
		*v = MapExternalTaskState(s)
	}
	if *v == 0 {
		return fmt.Errorf("invalid external task state data %s", s)
	}
	return nil
}

// ExternalTask is a unit of work of a topic, which must be fetched, locked and finished by a worker.
type ExternalTask struct {
	Id string `json:"id" validate:"required"` // Task ID.

	CorrelationId      string `json:"correlationId,omitempty"`      // Optional key, used to correlate the task with a business entity.
	FlowNodeInstanceId string `json:"flowNodeInstanceId,omitempty"` // ID of the related flow node instance.
	ProcessInstanceId  string `json:"processInstanceId,omitempty"`  // ID of the related process instance.

	CreatedAt     time.Time         `json:"createdAt" validate:"required"` // Creation time.
	CreatedBy     string            `json:"createdBy" validate:"required"` // ID of the engine that created the task.
	ErrorCode     string            `json:"errorCode,omitempty"`           // Code of a reported BPMN error.
	ErrorDetails  string            `json:"errorDetails,omitempty"`        // Details of a reported service error.
	ErrorMessage  string            `json:"errorMessage,omitempty"`        // Message of a reported service error.
	FinishedAt    *time.Time        `json:"finishedAt,omitempty"`          // Point in time when an outcome was reported.
	LockCount     int               `json:"lockCount" validate:"gte=0"`    // Number of times the task has been locked by a worker.
	LockExpiresAt *time.Time        `json:"lockExpirationTime,omitempty"`  // Point in time when the lock expires.
	LockedBy      string            `json:"lockedBy,omitempty"`            // ID of the worker that locked the task.
	Payload       json.RawMessage   `json:"payload,omitempty"`             // Business data, provided as JSON.
	Result        json.RawMessage   `json:"result,omitempty"`              // Result of a finished task, provided as JSON.
	State         ExternalTaskState `json:"state" validate:"required"`     // Task state.
	Topic         string            `json:"topic" validate:"required"`     // Topic, the task belongs to.
}

func (v ExternalTask) IsFinished() bool {
	return v.State.IsTerminal()
}

// IsLocked determines if the task is locked by a worker at a specific point in time.
func (v ExternalTask) IsLocked(now time.Time) bool {
	return v.LockedBy != "" && v.LockExpiresAt != nil && v.LockExpiresAt.After(now)
}

func (v ExternalTask) String() string {
	return fmt.Sprintf("%s/%s", v.Topic, v.Id)
}

// ExternalTaskCriteria specifies the results, returned by an external task query.
type ExternalTaskCriteria struct {
	Id string `json:"id,omitempty"` // Task filter.

	CorrelationId     string            `json:"correlationId,omitempty"`     // Correlation filter.
	LockedBy          string            `json:"lockedBy,omitempty"`          // Worker filter.
	ProcessInstanceId string            `json:"processInstanceId,omitempty"` // Process instance filter.
	State             ExternalTaskState `json:"state,omitempty"`             // State filter.
	Topic             string            `json:"topic,omitempty"`             // Topic filter.
}
