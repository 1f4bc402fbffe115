package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gclaussn/go-extask/engine"
)

const (
	outcomeBpmnError    = "bpmn_error"
	outcomeFinished     = "finished"
	outcomeServiceError = "service_error"
)

// ExecuteExternalTask executes a task, which is locked by the worker, and reports its outcome.
//
// While the handler is running, the task's lock is extended periodically.
// A returned error indicates that the outcome could not be reported.
func (w *Worker) ExecuteExternalTask(identity engine.Identity, task engine.ExternalTask, handler Handler) error {
	return w.execute(identity, task, handler)
}

func (w *Worker) execute(identity engine.Identity, task engine.ExternalTask, handler Handler) error {
	logger := w.logger.With("topic", task.Topic, "task_id", task.Id)

	start := time.Now()

	renewal := w.renewLock(identity, task)
	defer renewal.stop()

	result, handlerErr := invoke(handler, task)

	renewal.stop()

	outcome, report := w.createReport(identity, task, result, handlerErr)

	taskDuration.WithLabelValues(task.Topic, outcome).Observe(time.Since(start).Seconds())

	err := w.report(logger, outcome, report)
	if outcome != outcomeServiceError && isValidationError(err) {
		logger.Warn("outcome has been rejected, reporting service error", "outcome", outcome, "err", err)

		rejected := serviceError{err: fmt.Errorf("engine rejected %s outcome", outcome), details: err.Error()}
		outcome, report = w.createReport(identity, task, nil, rejected)

		err = w.report(logger, outcome, report)
	}
	if err != nil {
		logger.Error("failed to report outcome", "outcome", outcome, "err", err)
		reportFailuresTotal.WithLabelValues(task.Topic, outcome).Inc()

		if w.options.OnExecutionFailure != nil {
			w.options.OnExecutionFailure(task, err)
		}
		return err
	}

	executedTasksTotal.WithLabelValues(task.Topic, outcome).Inc()
	return nil
}

// report reports an outcome, retrying a failed attempt up to ReportRetryLimit times.
// Errors, which cannot be resolved by a retry, are returned immediately.
func (w *Worker) report(logger *slog.Logger, outcome string, report func(context.Context) error) error {
	notify := func(err error, next time.Duration) {
		logger.Warn("failed to report outcome, retrying", "outcome", outcome, "err", err, "next", next)
	}

	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		err := report(context.Background())
		if isPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(w.options.ReportRetryInterval)),
		backoff.WithMaxTries(uint(w.options.ReportRetryLimit+1)),
		backoff.WithNotify(notify),
	)

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

// createReport creates a function, which reports exactly one outcome for the result of a handler.
func (w *Worker) createReport(identity engine.Identity, task engine.ExternalTask, result any, handlerErr error) (string, func(context.Context) error) {
	if handlerErr == nil {
		b, err := encodeResult(result)
		if err != nil {
			handlerErr = fmt.Errorf("failed to encode result: %v", err)
		} else {
			cmd := engine.FinishExternalTaskCmd{
				TaskId:   task.Id,
				Result:   b,
				WorkerId: w.id,
			}

			return outcomeFinished, func(ctx context.Context) error {
				return w.api.FinishExternalTask(ctx, identity, cmd)
			}
		}
	}

	var bpmnErr bpmnError
	if errors.As(handlerErr, &bpmnErr) && strings.TrimSpace(bpmnErr.code) == "" {
		handlerErr = errors.New("BPMN error code must not be empty or blank")
	} else if errors.As(handlerErr, &bpmnErr) {
		cmd := engine.HandleBpmnErrorCmd{
			TaskId:    task.Id,
			ErrorCode: bpmnErr.code,
			WorkerId:  w.id,
		}

		return outcomeBpmnError, func(ctx context.Context) error {
			return w.api.HandleBpmnError(ctx, identity, cmd)
		}
	}

	cmd := engine.HandleServiceErrorCmd{
		TaskId:       task.Id,
		ErrorMessage: handlerErr.Error(),
		WorkerId:     w.id,
	}

	var serviceErr serviceError
	if errors.As(handlerErr, &serviceErr) {
		cmd.ErrorDetails = serviceErr.details
	}

	return outcomeServiceError, func(ctx context.Context) error {
		return w.api.HandleServiceError(ctx, identity, cmd)
	}
}

// renewLock starts a goroutine, which extends the lock of a task periodically, until the returned renewal is stopped.
func (w *Worker) renewLock(identity engine.Identity, task engine.ExternalTask) *lockRenewal {
	ctx, cancel := context.WithCancel(context.Background())

	renewal := lockRenewal{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	cmd := engine.ExtendLockCmd{
		TaskId:             task.Id,
		AdditionalDuration: int(w.options.LockDuration.Milliseconds()),
		WorkerId:           w.id,
	}

	go func() {
		defer close(renewal.done)

		ticker := time.NewTicker(w.options.LockDuration - w.options.LockRenewalBuffer)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ctx.Err() != nil {
					return
				}

				if err := w.api.ExtendLock(ctx, identity, cmd); err != nil {
					w.logger.Warn("failed to extend lock", "topic", task.Topic, "task_id", task.Id, "err", err)
					lockRenewalsTotal.WithLabelValues(task.Topic, "failure").Inc()
				} else {
					lockRenewalsTotal.WithLabelValues(task.Topic, "success").Inc()
				}
			}
		}
	}()

	return &renewal
}

// lockRenewal is a handle of a running lock renewal.
type lockRenewal struct {
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// stop stops the renewal and waits until an in-flight extension returned.
func (r *lockRenewal) stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		<-r.done
	})
}

// invoke invokes a handler. A panic is recovered and returned as service error, including the stack trace.
func invoke(handler Handler, task engine.ExternalTask) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = serviceError{
				err:     fmt.Errorf("handler panicked: %v", r),
				details: string(debug.Stack()),
			}
		}
	}()

	return handler.Handle(context.Background(), task)
}

func encodeResult(result any) (json.RawMessage, error) {
	if result == nil {
		return nil, nil
	}
	if b, ok := result.(json.RawMessage); ok && len(b) == 0 {
		return nil, nil
	}
	return json.Marshal(result)
}

func isValidationError(err error) bool {
	var engineErr engine.Error
	return errors.As(err, &engineErr) && engineErr.Type == engine.ErrorValidation
}

// isPermanent determines if reporting an outcome can not succeed, when retried.
func isPermanent(err error) bool {
	var engineErr engine.Error
	if !errors.As(err, &engineErr) {
		return false
	}

	switch engineErr.Type {
	case engine.ErrorConflict, engine.ErrorNotFound, engine.ErrorUnauthorized, engine.ErrorValidation:
		return true
	default:
		return false
	}
}
