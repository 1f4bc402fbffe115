package client

import (
	"context"
	"net/http"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/http/common"
)

type query struct {
	c *client

	options engine.QueryOptions
}

func (q *query) QueryExternalTasks(ctx context.Context, criteria engine.ExternalTaskCriteria) ([]engine.ExternalTask, error) {
	ctx, cancel := context.WithTimeout(ctx, q.c.options.Timeout)
	defer cancel()

	path := common.PathTasksQuery + encodeQueryOptions(q.options)

	var resBody common.ExternalTaskRes
	if err := q.c.doRequest(ctx, http.MethodPost, path, q.c.options.Identity, criteria, &resBody); err != nil {
		return nil, err
	}

	return resBody.Results, nil
}

func (q *query) SetOptions(options engine.QueryOptions) {
	q.options = options
}
