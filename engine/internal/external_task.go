package internal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type ExternalTaskEntity struct {
	Id string

	CorrelationId      pgtype.Text
	FlowNodeInstanceId pgtype.Text
	ProcessInstanceId  pgtype.Text

	CreatedAt     time.Time
	CreatedBy     string
	ErrorCode     pgtype.Text
	ErrorDetails  pgtype.Text
	ErrorMessage  pgtype.Text
	FinishedAt    pgtype.Timestamp
	LockCount     int
	LockExpiresAt pgtype.Timestamp
	LockedBy      pgtype.Text
	Payload       []byte
	Result        []byte
	State         engine.ExternalTaskState
	Topic         string
}

func (e ExternalTaskEntity) ExternalTask() engine.ExternalTask {
	return engine.ExternalTask{
		Id: e.Id,

		CorrelationId:      e.CorrelationId.String,
		FlowNodeInstanceId: e.FlowNodeInstanceId.String,
		ProcessInstanceId:  e.ProcessInstanceId.String,

		CreatedAt:     e.CreatedAt,
		CreatedBy:     e.CreatedBy,
		ErrorCode:     e.ErrorCode.String,
		ErrorDetails:  e.ErrorDetails.String,
		ErrorMessage:  e.ErrorMessage.String,
		FinishedAt:    timeOrNil(e.FinishedAt),
		LockCount:     e.LockCount,
		LockExpiresAt: timeOrNil(e.LockExpiresAt),
		LockedBy:      e.LockedBy.String,
		Payload:       e.Payload,
		Result:        e.Result,
		State:         e.State,
		Topic:         e.Topic,
	}
}

// isLockedBy determines if the task is pending and locked by a specific worker at a specific point in time.
func (e ExternalTaskEntity) isLockedBy(workerId string, now time.Time) bool {
	return e.State == engine.ExternalTaskPending &&
		e.LockedBy.Valid && e.LockedBy.String == workerId &&
		e.LockExpiresAt.Valid && e.LockExpiresAt.Time.After(now)
}

type ExternalTaskRepository interface {
	Insert(*ExternalTaskEntity) error
	Select(id string) (*ExternalTaskEntity, error)
	Update(*ExternalTaskEntity) error

	Query(engine.ExternalTaskCriteria, engine.QueryOptions) ([]engine.ExternalTask, error)

	// Lock locks pending tasks of a topic, which are not locked or whose lock expired at the given point in time.
	// Tasks are locked in the order of their creation.
	Lock(cmd engine.FetchAndLockCmd, lockedAt time.Time) ([]*ExternalTaskEntity, error)
	// Unlock unlocks pending tasks that are locked by a specific worker or whose lock expired at the given point in time.
	Unlock(cmd engine.UnlockExternalTasksCmd, unlockedAt time.Time) (int, error)
}

func CreateExternalTask(ctx Context, cmd engine.CreateExternalTaskCmd) (engine.ExternalTask, error) {
	entity := ExternalTaskEntity{
		Id: uuid.NewString(),

		CorrelationId:      textOrNull(cmd.CorrelationId),
		FlowNodeInstanceId: textOrNull(cmd.FlowNodeInstanceId),
		ProcessInstanceId:  textOrNull(cmd.ProcessInstanceId),

		CreatedAt: ctx.Time(),
		CreatedBy: ctx.Options().EngineId,
		Payload:   cmd.Payload,
		State:     engine.ExternalTaskPending,
		Topic:     cmd.Topic,
	}

	if err := ctx.ExternalTasks().Insert(&entity); err != nil {
		return engine.ExternalTask{}, err
	}

	return entity.ExternalTask(), nil
}

func FetchAndLockExternalTasks(ctx Context, identity engine.Identity, cmd engine.FetchAndLockCmd) ([]engine.ExternalTask, error) {
	if err := authorize(identity, "failed to fetch and lock external tasks"); err != nil {
		return nil, err
	}

	entities, err := ctx.ExternalTasks().Lock(cmd, ctx.Time())
	if err != nil {
		return nil, err
	}

	tasks := make([]engine.ExternalTask, len(entities))
	for i, entity := range entities {
		tasks[i] = entity.ExternalTask()
	}

	return tasks, nil
}

func ExtendLock(ctx Context, identity engine.Identity, cmd engine.ExtendLockCmd) error {
	title := "failed to extend lock"

	entity, err := selectLockedExternalTask(ctx, identity, cmd.TaskId, cmd.WorkerId, title)
	if err != nil {
		return err
	}

	lockExpiresAt := ctx.Time().Add(time.Duration(cmd.AdditionalDuration) * time.Millisecond)

	entity.LockExpiresAt = pgtype.Timestamp{Time: lockExpiresAt, Valid: true}

	return ctx.ExternalTasks().Update(entity)
}

func FinishExternalTask(ctx Context, identity engine.Identity, cmd engine.FinishExternalTaskCmd) error {
	entity, err := selectLockedExternalTask(ctx, identity, cmd.TaskId, cmd.WorkerId, "failed to finish external task")
	if err != nil {
		return err
	}

	entity.Result = cmd.Result

	return finishExternalTask(ctx, entity, engine.ExternalTaskFinished)
}

func HandleBpmnError(ctx Context, identity engine.Identity, cmd engine.HandleBpmnErrorCmd) error {
	if strings.TrimSpace(cmd.ErrorCode) == "" {
		return engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to handle BPMN error",
			Detail: "error code must not be empty or blank",
		}
	}

	entity, err := selectLockedExternalTask(ctx, identity, cmd.TaskId, cmd.WorkerId, "failed to handle BPMN error")
	if err != nil {
		return err
	}

	entity.ErrorCode = pgtype.Text{String: cmd.ErrorCode, Valid: true}

	return finishExternalTask(ctx, entity, engine.ExternalTaskBpmnError)
}

func HandleServiceError(ctx Context, identity engine.Identity, cmd engine.HandleServiceErrorCmd) error {
	if strings.TrimSpace(cmd.ErrorMessage) == "" {
		return engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to handle service error",
			Detail: "error message must not be empty or blank",
		}
	}

	entity, err := selectLockedExternalTask(ctx, identity, cmd.TaskId, cmd.WorkerId, "failed to handle service error")
	if err != nil {
		return err
	}

	entity.ErrorDetails = textOrNull(cmd.ErrorDetails)
	entity.ErrorMessage = pgtype.Text{String: cmd.ErrorMessage, Valid: true}

	return finishExternalTask(ctx, entity, engine.ExternalTaskServiceError)
}

func UnlockExternalTasks(ctx Context, cmd engine.UnlockExternalTasksCmd) (int, error) {
	if cmd.WorkerId == "" && !cmd.Expired {
		return -1, engine.Error{
			Type:   engine.ErrorValidation,
			Title:  "failed to unlock external tasks",
			Detail: "either a worker ID must be provided or expired must be true",
		}
	}

	return ctx.ExternalTasks().Unlock(cmd, ctx.Time())
}

func authorize(identity engine.Identity, title string) error {
	if identity.IsZero() {
		return engine.Error{
			Type:   engine.ErrorUnauthorized,
			Title:  title,
			Detail: "identity has no token",
		}
	}
	return nil
}

// finishExternalTask ends a locked task in a terminal state and releases the lock.
// LockedBy is kept and identifies the worker that reported the outcome.
func finishExternalTask(ctx Context, entity *ExternalTaskEntity, state engine.ExternalTaskState) error {
	entity.FinishedAt = pgtype.Timestamp{Time: ctx.Time(), Valid: true}
	entity.LockExpiresAt = pgtype.Timestamp{}
	entity.State = state

	return ctx.ExternalTasks().Update(entity)
}

// selectLockedExternalTask selects a task, which must be pending and locked by the given worker.
func selectLockedExternalTask(ctx Context, identity engine.Identity, taskId string, workerId string, title string) (*ExternalTaskEntity, error) {
	if err := authorize(identity, title); err != nil {
		return nil, err
	}

	entity, err := ctx.ExternalTasks().Select(taskId)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.Error{
			Type:   engine.ErrorNotFound,
			Title:  title,
			Detail: fmt.Sprintf("external task %s could not be found", taskId),
		}
	}
	if err != nil {
		return nil, err
	}

	if entity.State != engine.ExternalTaskPending {
		return nil, engine.Error{
			Type:   engine.ErrorConflict,
			Title:  title,
			Detail: fmt.Sprintf("external task %s is finished with state %s", taskId, entity.State),
		}
	}
	if !entity.LockedBy.Valid {
		return nil, engine.Error{
			Type:   engine.ErrorConflict,
			Title:  title,
			Detail: fmt.Sprintf("external task %s is not locked", taskId),
		}
	}
	if entity.LockedBy.String != workerId {
		return nil, engine.Error{
			Type:  engine.ErrorConflict,
			Title: title,
			Detail: fmt.Sprintf(
				"external task %s is not locked by worker %s, but %s",
				taskId,
				workerId,
				entity.LockedBy.String,
			),
		}
	}
	if !entity.isLockedBy(workerId, ctx.Time()) {
		return nil, engine.Error{
			Type:  engine.ErrorConflict,
			Title: title,
			Detail: fmt.Sprintf(
				"lock of external task %s expired at %s",
				taskId,
				entity.LockExpiresAt.Time.Format(time.RFC3339Nano),
			),
		}
	}

	return entity, nil
}
