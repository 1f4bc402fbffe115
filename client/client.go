package client

import (
	"errors"
	"strings"
	"sync"

	"github.com/gclaussn/go-extask/engine"
	httpclient "github.com/gclaussn/go-extask/http/client"
	"github.com/gclaussn/go-extask/worker"
)

// New creates a client for the REST API of a remote engine, available at the given URL.
// Workers, created by the client, perform operations on behalf of the given identity.
func New(url string, identity engine.Identity, customizers ...func(*httpclient.Options)) (*Client, error) {
	if identity.IsZero() {
		return nil, errors.New("identity is empty")
	}

	customizers = append([]func(*httpclient.Options){func(o *httpclient.Options) {
		o.Identity = identity
	}}, customizers...)

	e, err := httpclient.New(url, customizers...)
	if err != nil {
		return nil, err
	}

	return NewWithEngine(e, identity), nil
}

// NewWithEngine creates a client for an embedded engine like a mem or pg engine.
func NewWithEngine(e engine.Engine, identity engine.Identity) *Client {
	return &Client{
		e:        e,
		identity: identity,
	}
}

// Client is a facade, used to subscribe to topics.
type Client struct {
	e        engine.Engine
	identity engine.Identity

	mutex      sync.Mutex
	workers    []*worker.Worker
	isShutdown bool
}

// Engine returns the underlying engine, which can be used to create or query tasks.
func (c *Client) Engine() engine.Engine {
	return c.e
}

// SubscribeToTopic creates a worker with a new worker ID and starts polling the tasks of the given topic.
//
// SubscribeToTopic returns without waiting for the polling loop. The returned worker is the handle,
// used to check if the subscription is active or to stop it.
func (c *Client) SubscribeToTopic(topic string, handler worker.Handler, customizers ...func(*worker.Options)) (*worker.Worker, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("topic must not be empty or blank")
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.isShutdown {
		return nil, errors.New("client is shut down")
	}

	w, err := worker.New(c.e, customizers...)
	if err != nil {
		return nil, err
	}

	if err := w.Start(c.identity, topic, handler); err != nil {
		return nil, err
	}

	c.workers = append(c.workers, w)
	return w, nil
}

// Shutdown stops all workers, waits until their in-flight tasks are executed and shuts the engine down.
func (c *Client) Shutdown() {
	c.mutex.Lock()
	if c.isShutdown {
		c.mutex.Unlock()
		return
	}

	c.isShutdown = true
	workers := c.workers
	c.workers = nil
	c.mutex.Unlock()

	for _, w := range workers {
		w.Stop()
	}
	for _, w := range workers {
		<-w.Done()
	}

	c.e.Shutdown()
}
