package pg

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/internal"
	"github.com/jackc/pgx/v5"
)

type externalTaskRepository struct {
	tx    pgx.Tx
	txCtx context.Context
}

func (r externalTaskRepository) Insert(entity *internal.ExternalTaskEntity) error {
	if _, err := r.tx.Exec(r.txCtx, `
INSERT INTO external_task (
	id,

	correlation_id,
	flow_node_instance_id,
	process_instance_id,

	created_at,
	created_by,
	lock_count,
	payload,
	state,
	topic
) VALUES (
	$1,

	$2,
	$3,
	$4,

	$5,
	$6,
	$7,
	$8,
	$9,
	$10
)
`,
		entity.Id,

		entity.CorrelationId,
		entity.FlowNodeInstanceId,
		entity.ProcessInstanceId,

		entity.CreatedAt,
		entity.CreatedBy,
		entity.LockCount,
		entity.Payload,
		entity.State.String(),
		entity.Topic,
	); err != nil {
		return fmt.Errorf("failed to insert external task %s: %v", entity.Id, err)
	}

	return nil
}

func (r externalTaskRepository) Select(id string) (*internal.ExternalTaskEntity, error) {
	row := r.tx.QueryRow(r.txCtx, `
SELECT
	correlation_id,
	flow_node_instance_id,
	process_instance_id,

	created_at,
	created_by,
	error_code,
	error_details,
	error_message,
	finished_at,
	lock_count,
	lock_expires_at,
	locked_by,
	payload,
	result,
	state,
	topic
FROM
	external_task
WHERE
	id = $1
FOR UPDATE
`, id)

	var (
		entity     internal.ExternalTaskEntity
		stateValue string
	)
	if err := row.Scan(
		&entity.CorrelationId,
		&entity.FlowNodeInstanceId,
		&entity.ProcessInstanceId,

		&entity.CreatedAt,
		&entity.CreatedBy,
		&entity.ErrorCode,
		&entity.ErrorDetails,
		&entity.ErrorMessage,
		&entity.FinishedAt,
		&entity.LockCount,
		&entity.LockExpiresAt,
		&entity.LockedBy,
		&entity.Payload,
		&entity.Result,
		&stateValue,
		&entity.Topic,
	); err != nil {
		return nil, fmt.Errorf("failed to select external task %s: %w", id, err)
	}

	entity.Id = id
	entity.State = engine.MapExternalTaskState(stateValue)

	return &entity, nil
}

func (r externalTaskRepository) Update(entity *internal.ExternalTaskEntity) error {
	if _, err := r.tx.Exec(r.txCtx, `
UPDATE
	external_task
SET
	error_code = $2,
	error_details = $3,
	error_message = $4,
	finished_at = $5,
	lock_expires_at = $6,
	locked_by = $7,
	result = $8,
	state = $9
WHERE
	id = $1
`,
		entity.Id,

		entity.ErrorCode,
		entity.ErrorDetails,
		entity.ErrorMessage,
		entity.FinishedAt,
		entity.LockExpiresAt,
		entity.LockedBy,
		entity.Result,
		entity.State.String(),
	); err != nil {
		return fmt.Errorf("failed to update external task %s: %v", entity.Id, err)
	}

	return nil
}

func (r externalTaskRepository) Query(criteria engine.ExternalTaskCriteria, options engine.QueryOptions) ([]engine.ExternalTask, error) {
	var sql bytes.Buffer
	if err := sqlExternalTaskQuery.Execute(&sql, map[string]any{
		"c": criteria,
		"o": options,
	}); err != nil {
		return nil, fmt.Errorf("failed to execute external task query template: %v", err)
	}

	rows, err := r.tx.Query(r.txCtx, sql.String())
	if err != nil {
		return nil, fmt.Errorf("failed to execute external task query: %v", err)
	}

	defer rows.Close()

	var results []engine.ExternalTask
	for rows.Next() {
		var (
			entity     internal.ExternalTaskEntity
			stateValue string
		)

		if err := rows.Scan(
			&entity.Id,

			&entity.CorrelationId,
			&entity.FlowNodeInstanceId,
			&entity.ProcessInstanceId,

			&entity.CreatedAt,
			&entity.CreatedBy,
			&entity.ErrorCode,
			&entity.ErrorDetails,
			&entity.ErrorMessage,
			&entity.FinishedAt,
			&entity.LockCount,
			&entity.LockExpiresAt,
			&entity.LockedBy,
			&entity.Payload,
			&entity.Result,
			&stateValue,
			&entity.Topic,
		); err != nil {
			return nil, fmt.Errorf("failed to scan external task row: %v", err)
		}

		entity.State = engine.MapExternalTaskState(stateValue)

		results = append(results, entity.ExternalTask())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query external tasks: %v", err)
	}

	return results, nil
}

func (r externalTaskRepository) Lock(cmd engine.FetchAndLockCmd, lockedAt time.Time) ([]*internal.ExternalTaskEntity, error) {
	lockExpiresAt := lockedAt.Add(time.Duration(cmd.LockDuration) * time.Millisecond)

	rows, err := r.tx.Query(r.txCtx, `
WITH lockable AS (
	SELECT
		id
	FROM
		external_task
	WHERE
		topic = $1 AND
		state = 'PENDING' AND
		(lock_expires_at IS NULL OR lock_expires_at <= $2)
	ORDER BY
		seq
	LIMIT $3
	FOR UPDATE SKIP LOCKED
)
UPDATE
	external_task
SET
	lock_count = lock_count + 1,
	lock_expires_at = $4,
	locked_by = $5
FROM
	lockable
WHERE
	external_task.id = lockable.id
RETURNING
	external_task.id,
	external_task.seq,

	external_task.correlation_id,
	external_task.flow_node_instance_id,
	external_task.process_instance_id,

	external_task.created_at,
	external_task.created_by,
	external_task.lock_count,
	external_task.lock_expires_at,
	external_task.locked_by,
	external_task.payload,
	external_task.topic
`,
		cmd.TopicName,
		lockedAt,
		cmd.MaxTasks,
		lockExpiresAt,
		cmd.WorkerId,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lock external tasks: %v", err)
	}

	defer rows.Close()

	type lockedEntity struct {
		seq    int64
		entity *internal.ExternalTaskEntity
	}

	var lockedEntities []lockedEntity
	for rows.Next() {
		var (
			entity internal.ExternalTaskEntity
			seq    int64
		)

		if err := rows.Scan(
			&entity.Id,
			&seq,

			&entity.CorrelationId,
			&entity.FlowNodeInstanceId,
			&entity.ProcessInstanceId,

			&entity.CreatedAt,
			&entity.CreatedBy,
			&entity.LockCount,
			&entity.LockExpiresAt,
			&entity.LockedBy,
			&entity.Payload,
			&entity.Topic,
		); err != nil {
			return nil, fmt.Errorf("failed to scan external task row: %v", err)
		}

		entity.State = engine.ExternalTaskPending

		lockedEntities = append(lockedEntities, lockedEntity{seq: seq, entity: &entity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock external tasks: %v", err)
	}

	// RETURNING does not preserve the order of the lockable tasks
	slices.SortFunc(lockedEntities, func(a, b lockedEntity) int {
		return int(a.seq - b.seq)
	})

	results := make([]*internal.ExternalTaskEntity, len(lockedEntities))
	for i := range lockedEntities {
		results[i] = lockedEntities[i].entity
	}

	return results, nil
}

func (r externalTaskRepository) Unlock(cmd engine.UnlockExternalTasksCmd, unlockedAt time.Time) (int, error) {
	tag, err := r.tx.Exec(r.txCtx, `
UPDATE
	external_task
SET
	lock_expires_at = NULL,
	locked_by = NULL
WHERE
	state = 'PENDING' AND
	locked_by IS NOT NULL AND
	($1 = '' OR locked_by = $1) AND
	(NOT $2 OR lock_expires_at IS NULL OR lock_expires_at <= $3)
`,
		cmd.WorkerId,
		cmd.Expired,
		unlockedAt,
	)
	if err != nil {
		return -1, fmt.Errorf("failed to unlock external tasks: %v", err)
	}

	return int(tag.RowsAffected()), nil
}
