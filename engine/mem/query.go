package mem

import (
	"context"

	"github.com/gclaussn/go-extask/engine"
)

type query struct {
	e *memEngine

	defaultQueryLimit int
	options           engine.QueryOptions
}

func (q *query) QueryExternalTasks(_ context.Context, criteria engine.ExternalTaskCriteria) ([]engine.ExternalTask, error) {
	defer q.e.unlock()
	memCtx := q.e.rlock()
	return memCtx.ExternalTasks().Query(criteria, q.options)
}

func (q *query) SetOptions(options engine.QueryOptions) {
	if options.Limit <= 0 {
		options.Limit = q.defaultQueryLimit
	}
	q.options = options
}
