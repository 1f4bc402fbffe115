package pg

import (
	"context"

	"github.com/gclaussn/go-extask/engine"
)

type query struct {
	e *pgEngine

	defaultQueryLimit int
	options           engine.QueryOptions
}

func (q *query) QueryExternalTasks(ctx context.Context, criteria engine.ExternalTaskCriteria) ([]engine.ExternalTask, error) {
	pgCtx, cancel, err := q.e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	defer cancel()
	results, err := pgCtx.ExternalTasks().Query(criteria, q.options)
	return results, q.e.release(pgCtx, err)
}

func (q *query) SetOptions(options engine.QueryOptions) {
	if options.Limit <= 0 {
		options.Limit = q.defaultQueryLimit
	}

	q.options = options
}
