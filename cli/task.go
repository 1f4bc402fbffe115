package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/spf13/cobra"
)

func newTaskCmd(cli *Cli) *cobra.Command {
	c := cobra.Command{
		Use:         "task",
		Short:       "Manage and query external tasks",
		RunE:        cli.help,
		Annotations: map[string]string{noEngineRequired: ""},
	}

	c.AddCommand(newTaskCreateCmd(cli))
	c.AddCommand(newTaskExtendLockCmd(cli))
	c.AddCommand(newTaskFetchAndLockCmd(cli))
	c.AddCommand(newTaskFinishCmd(cli))
	c.AddCommand(newTaskHandleBpmnErrorCmd(cli))
	c.AddCommand(newTaskHandleServiceErrorCmd(cli))
	c.AddCommand(newTaskQueryCmd(cli))
	c.AddCommand(newTaskUnlockCmd(cli))

	return &c
}

func newTaskCreateCmd(cli *Cli) *cobra.Command {
	var (
		payload     string
		payloadFile string

		cmd engine.CreateExternalTaskCmd
	)

	c := cobra.Command{
		Use:   "create",
		Short: "Create an external task",
		RunE: func(c *cobra.Command, _ []string) error {
			b, err := readJson(payload, payloadFile)
			if err != nil {
				return fmt.Errorf("invalid payload: %v", err)
			}

			cmd.Payload = b

			task, err := cli.e.CreateExternalTask(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Println(task.Id)
			return nil
		},
	}

	c.Flags().StringVar(&cmd.Topic, "topic", "", "Topic, workers subscribe to")

	c.Flags().StringVar(&cmd.CorrelationId, "correlation-id", "", "Key, used to correlate the task with a business entity")
	c.Flags().StringVar(&cmd.FlowNodeInstanceId, "flow-node-instance-id", "", "ID of the flow node instance, the task belongs to")
	c.Flags().StringVar(&payload, "payload", "", "Business data as JSON")
	c.Flags().StringVar(&payloadFile, "payload-file", "", "Path to a JSON file, containing the business data")
	c.Flags().StringVar(&cmd.ProcessInstanceId, "process-instance-id", "", "ID of the process instance, the task belongs to")

	c.MarkFlagRequired("topic")
	c.MarkFlagsMutuallyExclusive("payload", "payload-file")

	return &c
}

func newTaskExtendLockCmd(cli *Cli) *cobra.Command {
	var (
		additionalDuration time.Duration

		cmd engine.ExtendLockCmd
	)

	c := cobra.Command{
		Use:   "extend-lock",
		Short: "Extend the lock of an external task",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.AdditionalDuration = int(additionalDuration.Milliseconds())
			cmd.WorkerId = cli.workerId

			return cli.e.ExtendLock(context.Background(), cli.identity, cmd)
		},
	}

	c.Flags().StringVar(&cmd.TaskId, "id", "", "Task ID")

	c.Flags().DurationVar(&additionalDuration, "additional-duration", 0, "Duration, the lock is extended by")

	c.MarkFlagRequired("id")
	c.MarkFlagRequired("additional-duration")

	return &c
}

func newTaskFetchAndLockCmd(cli *Cli) *cobra.Command {
	var (
		lockDuration       time.Duration
		longPollingTimeout time.Duration
		printPayload       bool

		cmd engine.FetchAndLockCmd
	)

	c := cobra.Command{
		Use:   "fetch-and-lock",
		Short: "Fetch and lock external tasks",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.LockDuration = int(lockDuration.Milliseconds())
			cmd.LongPollingTimeout = int(longPollingTimeout.Milliseconds())
			cmd.WorkerId = cli.workerId

			tasks, err := cli.e.FetchAndLockExternalTasks(context.Background(), cli.identity, cmd)
			if err != nil {
				return err
			}

			if printPayload {
				for _, task := range tasks {
					c.Printf("%s %s\n", task.Id, string(task.Payload))
				}
				return nil
			}

			table := newTable(
				"ID",
				"TOPIC",
				"CORRELATION ID",
				"CREATED AT",
				"LOCK EXPIRES AT",
				"LOCK COUNT",
			)

			for i := 0; i < len(tasks); i++ {
				task := tasks[i]

				table.addRow(
					task.Id,
					task.Topic,
					task.CorrelationId,
					formatTime(task.CreatedAt),
					formatTimeOrNil(task.LockExpiresAt),
					strconv.Itoa(task.LockCount),
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().StringVar(&cmd.TopicName, "topic", "", "Topic to fetch tasks from")

	c.Flags().DurationVar(&lockDuration, "lock-duration", time.Minute, "Duration, a fetched task is locked for the worker")
	c.Flags().DurationVar(&longPollingTimeout, "long-polling-timeout", 0, "Maximum time to wait for pending tasks")
	c.Flags().IntVar(&cmd.MaxTasks, "max-tasks", 1, "Maximum number of tasks to fetch and lock")
	c.Flags().BoolVar(&printPayload, "print-payload", false, "Print task ID and payload only")

	c.MarkFlagRequired("topic")

	return &c
}

func newTaskFinishCmd(cli *Cli) *cobra.Command {
	var (
		result     string
		resultFile string

		cmd engine.FinishExternalTaskCmd
	)

	c := cobra.Command{
		Use:   "finish",
		Short: "Finish a locked external task",
		RunE: func(c *cobra.Command, _ []string) error {
			b, err := readJson(result, resultFile)
			if err != nil {
				return fmt.Errorf("invalid result: %v", err)
			}

			cmd.Result = b
			cmd.WorkerId = cli.workerId

			return cli.e.FinishExternalTask(context.Background(), cli.identity, cmd)
		},
	}

	c.Flags().StringVar(&cmd.TaskId, "id", "", "Task ID")

	c.Flags().StringVar(&result, "result", "", "Result as JSON")
	c.Flags().StringVar(&resultFile, "result-file", "", "Path to a JSON file, containing the result")

	c.MarkFlagRequired("id")
	c.MarkFlagsMutuallyExclusive("result", "result-file")

	return &c
}

func newTaskHandleBpmnErrorCmd(cli *Cli) *cobra.Command {
	var cmd engine.HandleBpmnErrorCmd

	c := cobra.Command{
		Use:   "handle-bpmn-error",
		Short: "Finish a locked external task with a BPMN error",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.WorkerId = cli.workerId

			return cli.e.HandleBpmnError(context.Background(), cli.identity, cmd)
		},
	}

	c.Flags().StringVar(&cmd.TaskId, "id", "", "Task ID")

	c.Flags().StringVar(&cmd.ErrorCode, "error-code", "", "Code of the BPMN error")

	c.MarkFlagRequired("id")
	c.MarkFlagRequired("error-code")

	return &c
}

func newTaskHandleServiceErrorCmd(cli *Cli) *cobra.Command {
	var cmd engine.HandleServiceErrorCmd

	c := cobra.Command{
		Use:   "handle-service-error",
		Short: "Finish a locked external task with a service error",
		RunE: func(c *cobra.Command, _ []string) error {
			cmd.WorkerId = cli.workerId

			return cli.e.HandleServiceError(context.Background(), cli.identity, cmd)
		},
	}

	c.Flags().StringVar(&cmd.TaskId, "id", "", "Task ID")

	c.Flags().StringVar(&cmd.ErrorDetails, "error-details", "", "Details of the failure, like a stack trace")
	c.Flags().StringVar(&cmd.ErrorMessage, "error-message", "", "Message, describing the failure")

	c.MarkFlagRequired("id")
	c.MarkFlagRequired("error-message")

	return &c
}

func newTaskQueryCmd(cli *Cli) *cobra.Command {
	var (
		state externalTaskStateValue

		criteria engine.ExternalTaskCriteria
		options  engine.QueryOptions
	)

	c := cobra.Command{
		Use:   "query",
		Short: "Query external tasks",
		RunE: func(c *cobra.Command, _ []string) error {
			criteria.State = engine.ExternalTaskState(state)

			q := cli.e.CreateQuery()
			q.SetOptions(options)

			results, err := q.QueryExternalTasks(context.Background(), criteria)
			if err != nil {
				return err
			}

			table := newTable(
				"ID",
				"TOPIC",
				"STATE",
				"CREATED AT",
				"LOCKED BY",
				"LOCK EXPIRES AT",
				"FINISHED AT",
				"ERROR",
			)

			for i := 0; i < len(results); i++ {
				task := results[i]

				var taskError string
				switch task.State {
				case engine.ExternalTaskBpmnError:
					taskError = task.ErrorCode
				case engine.ExternalTaskServiceError:
					taskError = task.ErrorMessage
				}

				table.addRow(
					task.Id,
					task.Topic,
					task.State.String(),
					formatTime(task.CreatedAt),
					task.LockedBy,
					formatTimeOrNil(task.LockExpiresAt),
					formatTimeOrNil(task.FinishedAt),
					taskError,
				)
			}

			c.Print(table.format())
			return nil
		},
	}

	c.Flags().StringVar(&criteria.Id, "id", "", "Task ID")

	c.Flags().StringVar(&criteria.CorrelationId, "correlation-id", "", "Correlation ID")
	c.Flags().StringVar(&criteria.LockedBy, "locked-by", "", "ID of the worker that locked the tasks")
	c.Flags().StringVar(&criteria.ProcessInstanceId, "process-instance-id", "", "Process instance ID")
	c.Flags().Var(&state, "state", "Task state")
	c.Flags().StringVar(&criteria.Topic, "topic", "", "Topic")

	flagQueryOptions(&c, &options)

	return &c
}

func newTaskUnlockCmd(cli *Cli) *cobra.Command {
	var cmd engine.UnlockExternalTasksCmd

	c := cobra.Command{
		Use:   "unlock",
		Short: "Unlock pending external tasks",
		RunE: func(c *cobra.Command, _ []string) error {
			count, err := cli.e.UnlockExternalTasks(context.Background(), cmd)
			if err != nil {
				return err
			}

			c.Printf("Number of unlocked tasks: %d\n", count)
			return nil
		},
	}

	c.Flags().BoolVar(&cmd.Expired, "expired", false, "Unlock tasks, whose lock expired")
	c.Flags().StringVar(&cmd.WorkerId, "locked-by", "", "Unlock tasks, locked by a specific worker")

	c.MarkFlagsOneRequired("expired", "locked-by")

	return &c
}

// readJson reads JSON from a flag value or a file. If neither is set, nil is returned.
func readJson(value string, fileName string) (json.RawMessage, error) {
	var b []byte
	switch {
	case value != "":
		b = []byte(value)
	case fileName != "":
		data, err := os.ReadFile(fileName)
		if err != nil {
			return nil, err
		}
		b = data
	default:
		return nil, nil
	}

	if !json.Valid(b) {
		return nil, errors.New("malformed JSON")
	}
	return b, nil
}
