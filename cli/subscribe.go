package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/worker"
	"github.com/spf13/cobra"
)

func newSubscribeCmd(cli *Cli) *cobra.Command {
	var (
		topic             string
		limit             int
		bpmnErrorExitCode int

		options = worker.NewOptions()
	)

	c := cobra.Command{
		Use:   "subscribe [flags] [-- command [args...]]",
		Short: "Subscribe to a topic and execute its external tasks",
		Long: `Subscribe to a topic and execute its external tasks, until the process is interrupted or terminated.

If a command is specified, it is executed for each task: the payload is written to stdin and the task
is described by the environment variables GO_EXTASK_TASK_ID, GO_EXTASK_TASK_TOPIC and GO_EXTASK_TASK_CORRELATION_ID.
When the command exits with code 0, the task is finished using stdout as JSON result.
When it exits with the BPMN error exit code, a BPMN error is handled using stdout as error code.
Otherwise a service error is handled, using stderr as error details.

Without a command, each task is finished without result.`,
		RunE: func(c *cobra.Command, args []string) error {
			if limit > 0 {
				// a batch must not exceed the number of remaining tasks
				options.MaxTasks = 1
			}

			options.Logger = slog.New(slog.NewTextHandler(c.ErrOrStderr(), nil))
			options.WorkerId = cli.workerId

			w, err := worker.New(cli.e, func(o *worker.Options) {
				*o = options
			})
			if err != nil {
				return err
			}

			limitC := make(chan struct{})

			handler := &commandHandler{
				args:              args,
				bpmnErrorExitCode: bpmnErrorExitCode,
				logger:            options.Logger,
				limit:             int32(limit),
				limitC:            limitC,
				stop:              w.Stop,
			}

			if err := w.Start(cli.identity, topic, handler); err != nil {
				return err
			}

			signalC := make(chan os.Signal, 1)
			signal.Notify(signalC, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(signalC)

			select {
			case <-signalC:
			case <-limitC:
			}

			w.Stop()
			<-w.Done()

			c.Printf("Number of executed tasks: %d\n", handler.count.Load())
			return nil
		},
	}

	c.Flags().StringVar(&topic, "topic", "", "Topic to subscribe to")

	c.Flags().IntVar(&bpmnErrorExitCode, "bpmn-error-exit-code", 0, "Exit code of the command, indicating a BPMN error")
	c.Flags().IntVar(&limit, "limit", 0, "Number of tasks to execute before exiting - 0 means unlimited. With a limit, tasks are fetched one at a time")
	c.Flags().DurationVar(&options.LockDuration, "lock-duration", options.LockDuration, "Duration, a fetched task is locked for the worker")
	c.Flags().DurationVar(&options.LockRenewalBuffer, "lock-renewal-buffer", options.LockRenewalBuffer, "Time before the lock expires, at which the lock is extended")
	c.Flags().DurationVar(&options.LongPollingTimeout, "long-polling-timeout", options.LongPollingTimeout, "Maximum time to wait for pending tasks")
	c.Flags().IntVar(&options.MaxTasks, "max-tasks", options.MaxTasks, "Maximum number of tasks to fetch, lock and execute at once")
	c.Flags().DurationVar(&options.PollInterval, "poll-interval", options.PollInterval, "Interval between fetches, when no task was fetched")

	c.MarkFlagRequired("topic")

	return &c
}

// commandHandler executes a task by running a command.
type commandHandler struct {
	args              []string
	bpmnErrorExitCode int
	logger            *slog.Logger

	limit     int32
	limitC    chan struct{}
	limitOnce sync.Once
	stop      func() // stops the worker, before it fetches further tasks

	count atomic.Int32
}

func (h *commandHandler) Handle(ctx context.Context, task engine.ExternalTask) (any, error) {
	defer h.executed()

	if len(h.args) == 0 {
		h.logger.Info("executing task", "task", task.String(), "payload", string(task.Payload))
		return nil, nil
	}

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, h.args[0], h.args[1:]...)
	cmd.Env = append(os.Environ(),
		envPrefix+"TASK_ID="+task.Id,
		envPrefix+"TASK_TOPIC="+task.Topic,
		envPrefix+"TASK_CORRELATION_ID="+task.CorrelationId,
	)
	cmd.Stdin = bytes.NewReader(task.Payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, worker.NewServiceError(fmt.Errorf("failed to run command: %v", err), "")
		}

		exitCode := exitErr.ExitCode()
		if h.bpmnErrorExitCode != 0 && exitCode == h.bpmnErrorExitCode {
			errorCode := strings.TrimSpace(stdout.String())
			if errorCode == "" {
				return nil, worker.NewServiceError(fmt.Errorf("command exited with code %d, but printed no BPMN error code", exitCode), stderr.String())
			}
			return nil, worker.NewBpmnError(errorCode)
		}

		return nil, worker.NewServiceError(fmt.Errorf("command exited with code %d", exitCode), stderr.String())
	}

	output := bytes.TrimSpace(stdout.Bytes())
	if len(output) == 0 {
		return nil, nil
	}
	if !json.Valid(output) {
		return nil, worker.NewServiceError(errors.New("command output is not valid JSON"), string(output))
	}

	return json.RawMessage(output), nil
}

func (h *commandHandler) executed() {
	count := h.count.Add(1)
	if h.limit > 0 && count >= h.limit {
		h.limitOnce.Do(func() {
			h.stop()
			close(h.limitC)
		})
	}
}
