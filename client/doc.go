// Package client provides a facade, used to subscribe handlers to the topics of a remote engine.
/*
Subscribe to a Topic

	c, err := client.New("http://localhost:8080", engine.NewIdentity("my-token"))
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}

	defer c.Shutdown()

	w, err := c.SubscribeToTopic("send-invoice", handler, func(o *worker.Options) {
		o.MaxTasks = 5
	})
	if err != nil {
		log.Fatalf("failed to subscribe to topic: %v", err)
	}

	// ...

	w.Stop()

Configuration

A client can be configured with a YAML file and environment variables.

	config, err := client.ReadConfig("config.yaml")
	if err != nil {
		log.Fatal(err)
	}

	c, err := client.NewFromConfig(config)
	if err != nil {
		log.Fatalf("failed to create client: %v", err)
	}

	w, err := c.SubscribeToTopic("send-invoice", handler, config.WorkerOptions())

Environment variables:

	GO_EXTASK_URL                            URL of the engine's HTTP API (required)
	GO_EXTASK_TOKEN                          bearer token - default: dummy_token
	GO_EXTASK_TIMEOUT                        time limit for HTTP requests - default: 40s
	GO_EXTASK_WORKER_LOCK_DURATION           default: 30s
	GO_EXTASK_WORKER_LOCK_RENEWAL_BUFFER     default: 5s
	GO_EXTASK_WORKER_LONG_POLLING_TIMEOUT    default: 1s
	GO_EXTASK_WORKER_MAX_TASKS               default: 10
	GO_EXTASK_WORKER_POLL_INTERVAL           default: 1s
	GO_EXTASK_WORKER_REPORT_RETRY_INTERVAL   default: 500ms
	GO_EXTASK_WORKER_REPORT_RETRY_LIMIT      default: 3
*/
package client
