// Package worker provides a SDK to implement external task workers.
/*
worker offers a handler interface, which must be implemented to execute the tasks of a topic.

Create a Worker

A worker requires an engine.ExternalTaskApi.
The API can be an embedded engine (pg, or mem for testing) or a remote engine (HTTP client).

	w, err := worker.New(e, func(o *worker.Options) {
		o.LockDuration = 60 * time.Second
		o.MaxTasks = 5
		o.OnExecutionFailure = func(task engine.ExternalTask, err error) {
			log.Printf("failed to execute task %s: %v", task, err)
		}
	})
	if err != nil {
		log.Fatalf("failed to create worker: %v", err)
	}

Implement a Handler

A handler must implement the [Handler] interface.
[HandlerFunc] decodes the JSON payload of a task into a typed value.

	type sendInvoice struct {
		OrderId string `json:"orderId"`
	}

	type sendInvoiceResult struct {
		InvoiceId string `json:"invoiceId"`
	}

	handler := worker.HandlerFunc[sendInvoice, sendInvoiceResult](func(ctx context.Context, payload sendInvoice, task engine.ExternalTask) (sendInvoiceResult, error) {
		if payload.OrderId == "" {
			return sendInvoiceResult{}, worker.NewBpmnError("ORDER_NOT_FOUND")
		}
		// ...
		return sendInvoiceResult{InvoiceId: "..."}, nil
	})

A returned result finishes a task. An error created via [NewBpmnError] finishes a task with a BPMN error.
Any other error, or a panic, finishes a task with a service error.

Run a Worker

A worker polls the tasks of a single topic, until it is stopped.

	if err := w.Start(engine.NewIdentity("my-token"), "send-invoice", handler); err != nil {
		log.Fatalf("failed to start worker: %v", err)
	}

	signalC := make(chan os.Signal, 1)
	signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)

	<-signalC

	w.Stop()
	<-w.Done()

Test a Handler

[Assert] executes the tasks of a topic against an engine, usually a mem engine.

	e, _ := mem.New()
	defer e.Shutdown()

	w, _ := worker.New(e)

	a := worker.Assert(t, w, e, "send-invoice")
	a.CreateExternalTask(sendInvoice{OrderId: "order-1"})
	a.ExecuteExternalTask(handler)
	a.IsFinished(&result)
*/
package worker
