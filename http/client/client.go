package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/http/common"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func New(url string, customizers ...func(*Options)) (engine.Engine, error) {
	if url == "" {
		return nil, errors.New("URL is empty")
	}

	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	if options.Configure != nil {
		options.Configure(&httpClient)
	}

	client := client{
		httpClient: &httpClient,
		url:        url,
		options:    options,
	}

	return &client, nil
}

func NewOptions() Options {
	return Options{
		Identity: engine.DefaultIdentity(),
		Timeout:  40 * time.Second,
	}
}

type Options struct {
	// Identity, used for operations that are not performed on behalf of a specific identity - e.g. the creation of a task.
	Identity engine.Identity
	// Time limit for requests made by the HTTP client. For fetch and lock requests, the long polling timeout is added.
	Timeout time.Duration

	// OnRequest is an optional function that accepts a [*http.Request]. It is called before a HTTP request is send.
	OnRequest func(*http.Request) error
	// OnResponse is an optional function that accepts a [*http.Response]. It is called after a HTTP response is returned.
	OnResponse func(*http.Response) error

	Configure func(*http.Client) // Optional function, used to configure the underlying HTTP client.
}

func (o Options) Validate() error {
	if o.Identity.IsZero() {
		return errors.New("identity is empty")
	}
	if o.Timeout.Milliseconds() < 1 {
		return errors.New("timeout must be greater than or equal to 1 ms")
	}
	return nil
}

type client struct {
	httpClient *http.Client
	url        string
	options    Options
}

func (c *client) CreateExternalTask(ctx context.Context, cmd engine.CreateExternalTaskCmd) (engine.ExternalTask, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var task engine.ExternalTask
	if err := c.doRequest(ctx, http.MethodPost, common.PathTasks, c.options.Identity, cmd, &task); err != nil {
		return engine.ExternalTask{}, err
	}
	return task, nil
}

func (c *client) CreateQuery() engine.Query {
	return &query{c: c}
}

func (c *client) ExtendLock(ctx context.Context, identity engine.Identity, cmd engine.ExtendLockCmd) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := resolve(common.PathTaskExtendLock, cmd.TaskId)
	return c.doRequest(ctx, http.MethodPost, path, identity, cmd, nil)
}

func (c *client) FetchAndLockExternalTasks(ctx context.Context, identity engine.Identity, cmd engine.FetchAndLockCmd) ([]engine.ExternalTask, error) {
	timeout := c.options.Timeout + time.Duration(cmd.LongPollingTimeout)*time.Millisecond

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var tasks []engine.ExternalTask
	if err := c.doRequest(ctx, http.MethodPost, common.PathFetchAndLock, identity, cmd, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (c *client) FinishExternalTask(ctx context.Context, identity engine.Identity, cmd engine.FinishExternalTaskCmd) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := resolve(common.PathTaskFinish, cmd.TaskId)
	return c.doRequest(ctx, http.MethodPost, path, identity, cmd, nil)
}

func (c *client) HandleBpmnError(ctx context.Context, identity engine.Identity, cmd engine.HandleBpmnErrorCmd) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := resolve(common.PathTaskHandleBpmnError, cmd.TaskId)
	return c.doRequest(ctx, http.MethodPost, path, identity, cmd, nil)
}

func (c *client) HandleServiceError(ctx context.Context, identity engine.Identity, cmd engine.HandleServiceErrorCmd) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	path := resolve(common.PathTaskHandleServiceError, cmd.TaskId)
	return c.doRequest(ctx, http.MethodPost, path, identity, cmd, nil)
}

func (c *client) SetTime(ctx context.Context, cmd engine.SetTimeCmd) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	return c.doRequest(ctx, http.MethodPatch, common.PathTime, c.options.Identity, cmd, nil)
}

func (c *client) UnlockExternalTasks(ctx context.Context, cmd engine.UnlockExternalTasksCmd) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.options.Timeout)
	defer cancel()

	var resBody common.CountRes
	if err := c.doRequest(ctx, http.MethodPost, common.PathTasksUnlock, c.options.Identity, cmd, &resBody); err != nil {
		return -1, err
	}
	return resBody.Count, nil
}

func (c *client) Shutdown() {
	c.httpClient.CloseIdleConnections()
}

func (c *client) doRequest(ctx context.Context, method string, path string, identity engine.Identity, reqBody any, resBody any) error {
	b, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to create JSON request body: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %v", method, err)
	}

	if c.options.OnRequest != nil {
		if err := c.options.OnRequest(req); err != nil {
			return err
		}
	}

	req.Header.Set(common.HeaderAuthorization, identity.Authorization())
	req.Header.Set(common.HeaderContentType, common.ContentTypeJson)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s %s: %w", method, path, err)
	}

	if c.options.OnResponse != nil {
		if err := c.options.OnResponse(res); err != nil {
			res.Body.Close()
			return err
		}
	}

	if resBody != nil {
		return decodeJSONResponseBody(res, resBody)
	} else {
		return decodeJSONResponseBody(res, nil)
	}
}
