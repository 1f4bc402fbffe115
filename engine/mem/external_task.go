package mem

import (
	"fmt"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/internal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// externalTaskRepository stores tasks in the order of their creation.
type externalTaskRepository struct {
	entities []internal.ExternalTaskEntity
}

func (r *externalTaskRepository) Insert(entity *internal.ExternalTaskEntity) error {
	r.entities = append(r.entities, *entity)
	return nil
}

func (r *externalTaskRepository) Select(id string) (*internal.ExternalTaskEntity, error) {
	for _, e := range r.entities {
		if e.Id == id {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("failed to select external task %s: %w", id, pgx.ErrNoRows)
}

func (r *externalTaskRepository) Update(entity *internal.ExternalTaskEntity) error {
	for i, e := range r.entities {
		if e.Id == entity.Id {
			r.entities[i] = *entity
			return nil
		}
	}
	return fmt.Errorf("failed to update external task %s: %w", entity.Id, pgx.ErrNoRows)
}

func (r *externalTaskRepository) Query(c engine.ExternalTaskCriteria, o engine.QueryOptions) ([]engine.ExternalTask, error) {
	var (
		results []engine.ExternalTask
		offset  int
	)

	for _, e := range r.entities {
		if c.Id != "" && c.Id != e.Id {
			continue
		}

		if c.CorrelationId != "" && c.CorrelationId != e.CorrelationId.String {
			continue
		}
		if c.LockedBy != "" && c.LockedBy != e.LockedBy.String {
			continue
		}
		if c.ProcessInstanceId != "" && c.ProcessInstanceId != e.ProcessInstanceId.String {
			continue
		}
		if c.State != 0 && c.State != e.State {
			continue
		}
		if c.Topic != "" && c.Topic != e.Topic {
			continue
		}

		if offset < o.Offset {
			offset++
			continue
		}

		results = append(results, e.ExternalTask())

		if o.Limit > 0 && len(results) == o.Limit {
			break
		}
	}

	return results, nil
}

func (r *externalTaskRepository) Lock(cmd engine.FetchAndLockCmd, lockedAt time.Time) ([]*internal.ExternalTaskEntity, error) {
	var results []*internal.ExternalTaskEntity

	lockExpiresAt := lockedAt.Add(time.Duration(cmd.LockDuration) * time.Millisecond)

	for i, e := range r.entities {
		if cmd.MaxTasks == len(results) {
			break
		}

		if e.State != engine.ExternalTaskPending || e.Topic != cmd.TopicName {
			continue
		}
		if e.LockExpiresAt.Valid && e.LockExpiresAt.Time.After(lockedAt) {
			continue
		}

		e.LockCount = e.LockCount + 1
		e.LockExpiresAt = pgtype.Timestamp{Time: lockExpiresAt, Valid: true}
		e.LockedBy = pgtype.Text{String: cmd.WorkerId, Valid: true}

		r.entities[i] = e

		results = append(results, &e)
	}

	return results, nil
}

func (r *externalTaskRepository) Unlock(cmd engine.UnlockExternalTasksCmd, unlockedAt time.Time) (int, error) {
	var count int
	for i, e := range r.entities {
		if e.State != engine.ExternalTaskPending || !e.LockedBy.Valid {
			continue
		}

		if cmd.WorkerId != "" && cmd.WorkerId != e.LockedBy.String {
			continue
		}
		if cmd.Expired && e.LockExpiresAt.Valid && e.LockExpiresAt.Time.After(unlockedAt) {
			continue
		}

		e.LockExpiresAt = pgtype.Timestamp{}
		e.LockedBy = pgtype.Text{}

		r.entities[i] = e
		count++
	}

	return count, nil
}
