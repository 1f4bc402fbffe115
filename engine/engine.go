package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

const (
	DefaultEngineId = "default-engine" // Default ID of an engine, used when no specific ID is provided via [Options].
)

// ExternalTaskApi is the part of an engine, which is needed by external task workers.
//
// Each operation is performed on behalf of an [Identity], which must be authorized to access the engine.
type ExternalTaskApi interface {
	// FetchAndLockExternalTasks fetches and locks up to max tasks of a topic for a specific worker.
	//
	// If no task is available, the engine waits up to the long polling timeout for new tasks.
	// An empty result is returned, when the timeout elapsed without any task becoming available.
	FetchAndLockExternalTasks(context.Context, Identity, FetchAndLockCmd) ([]ExternalTask, error)

	// ExtendLock extends the lock of a task, which is locked by the specified worker.
	//
	// The new lock expiration time is the engine's current time plus the additional duration.
	ExtendLock(context.Context, Identity, ExtendLockCmd) error

	// FinishExternalTask finishes a locked task successfully, storing an optional result.
	FinishExternalTask(context.Context, Identity, FinishExternalTaskCmd) error

	// HandleBpmnError finishes a locked task with a BPMN error, identified by an error code.
	HandleBpmnError(context.Context, Identity, HandleBpmnErrorCmd) error

	// HandleServiceError finishes a locked task with a technical failure.
	HandleServiceError(context.Context, Identity, HandleServiceErrorCmd) error
}

// An Engine manages external tasks, which are fetched, locked and finished by external task workers.
type Engine interface {
	ExternalTaskApi

	// CreateExternalTask creates a pending task for a topic.
	CreateExternalTask(context.Context, CreateExternalTaskCmd) (ExternalTask, error)

	// CreateQuery creates a query with default options.
	CreateQuery() Query

	// SetTime increases the engine's time for testing purposes.
	SetTime(context.Context, SetTimeCmd) error

	// UnlockExternalTasks unlocks pending tasks, which are locked by a specific worker or whose lock expired.
	UnlockExternalTasks(context.Context, UnlockExternalTasksCmd) (int, error)

	// Shutdown shuts the engine down.
	Shutdown()
}

// A Query allows to query entities, using query options.
type Query interface {
	QueryExternalTasks(context.Context, ExternalTaskCriteria) ([]ExternalTask, error)

	// SetOptions sets options that are used when performing a query.
	SetOptions(QueryOptions)
}

// Options are common configuration options that are shared between engine implementations.
type Options struct {
	DefaultQueryLimit   int           // Default limit for queries, executed without an explicit limit.
	EngineId            string        // ID of the engine.
	LockSweepCron       string        // CRON expression, scheduling the unlocking of tasks with an expired lock. An empty expression disables the sweeping.
	LongPollingInterval time.Duration // Interval between checks for new tasks, while a fetch and lock request is waiting.

	OnLockSweepFailure func(error) // Called when the engine failed to unlock tasks with an expired lock.
}

func (o Options) Validate() error {
	if o.DefaultQueryLimit < 1 {
		return errors.New("default query limit must be greater than or equal to 1")
	}
	if strings.TrimSpace(o.EngineId) == "" {
		return errors.New("engine ID must not be empty or blank")
	}
	if o.LockSweepCron != "" && !gronx.IsValid(o.LockSweepCron) {
		return fmt.Errorf("lock sweep CRON expression %q is invalid", o.LockSweepCron)
	}
	if o.LongPollingInterval.Milliseconds() < 10 {
		return errors.New("long polling interval must be greater than or equal to 10 ms")
	}

	return nil
}

// QueryOptions are used to limit or offset query results.
// The zero value does not affect a query.
type QueryOptions struct {
	// Limit specifies the maximum number of results to return.
	// If Limit <= 0, the option's DefaultQueryLimit is applied.
	Limit int
	// Offset specifies the number of results to skip, before returning any result.
	// If Offset <= 0, no results are skipped.
	Offset int
}

type Error struct {
	Type   ErrorType
	Title  string
	Detail string
	Causes []ErrorCause
}

func (e Error) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s: %s: %s", e.Type, e.Title, e.Detail))

	for _, cause := range e.Causes {
		sb.WriteRune('\n')
		sb.WriteString(cause.String())
	}

	return sb.String()
}

type ErrorType int

const (
	ErrorBug ErrorType = iota + 1
	ErrorConflict
	ErrorNotFound
	ErrorQuery
	ErrorUnauthorized
	ErrorValidation
)

func MapErrorType(s string) ErrorType {
	switch s {
	case "BUG":
		return ErrorBug
	case "CONFLICT":
		return ErrorConflict
	case "NOT_FOUND":
		return ErrorNotFound
	case "QUERY":
		return ErrorQuery
	case "UNAUTHORIZED":
		return ErrorUnauthorized
	case "VALIDATION":
		return ErrorValidation
	default:
		return 0
	}
}

func (v ErrorType) String() string {
	switch v {
	case ErrorBug:
		return "BUG"
	case ErrorConflict:
		return "CONFLICT"
	case ErrorNotFound:
		return "NOT_FOUND"
	case ErrorQuery:
		return "QUERY"
	case ErrorUnauthorized:
		return "UNAUTHORIZED"
	case ErrorValidation:
		return "VALIDATION"
	default:
		return "UNKNOWN"
	}
}

// A cause of a validation [Error] like an invalid command field.
type ErrorCause struct {
	Pointer string // A JSON pointer, locating the invalid field.
	Type    string // Type indicator.
	Detail  string // Human-readable, detailed information about the cause.
}

func (e ErrorCause) String() string {
	return fmt.Sprintf("%s: %s: %s", e.Type, e.Pointer, e.Detail)
}
