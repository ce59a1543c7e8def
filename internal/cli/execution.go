package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewExecutionCmd создаёт группу команд для запуска и опроса executions.
func NewExecutionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "execution",
		Aliases: []string{"exec"},
		Short:   "Start and inspect executions",
	}

	cmd.AddCommand(
		newExecutionStartCmd(clientFn, outputFn),
		newExecutionShowCmd(clientFn, outputFn),
		newExecutionLatestCmd(clientFn, outputFn),
		newExecutionListCmd(clientFn, outputFn),
		newExecutionWaitCmd(clientFn, outputFn),
	)

	return cmd
}

var executionHeaders = []string{"ID", "WORKFLOW_ID", "STATUS", "DURATION", "ERROR", "CREATED"}

func executionRow(e ExecutionResponse) []string {
	duration := ""
	if e.DurationMs > 0 {
		duration = (time.Duration(e.DurationMs) * time.Millisecond).String()
	}
	return []string{e.ID, e.WorkflowID, e.Status, duration, e.Error, e.CreatedAt}
}

func printDetail(out *Output, detail *ExecutionDetail) {
	if out.jsonMode {
		out.JSON(detail)
		return
	}

	out.Table(executionHeaders, [][]string{executionRow(detail.Execution)})
	fmt.Fprintln(out.w)

	rows := make([][]string, len(detail.Steps))
	for i, s := range detail.Steps {
		errMsg := ""
		if s.Result != nil {
			errMsg = s.Result.Error
		}
		rows[i] = []string{strconv.Itoa(s.Position), s.NodeID, s.Status, errMsg}
	}
	out.Table([]string{"#", "NODE", "STATUS", "ERROR"}, rows)
}

func newExecutionStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var inputs []string
	var key string
	var wait bool
	var interval, timeout time.Duration

	cmd := &cobra.Command{
		Use:   "start WORKFLOW_ID",
		Short: "Queue a workflow execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			parsed, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			exec, err := client.StartExecution(cmd.Context(), args[0], StartExecutionRequest{
				Inputs:         parsed,
				IdempotencyKey: key,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Execution queued: %s", exec.ID))
			if !wait {
				out.Print([]string{"ID", "STATUS"}, [][]string{{exec.ID, exec.Status}}, exec)
				return nil
			}

			return waitAndPrint(cmd.Context(), client, out, exec.ID, interval, timeout)
		},
	}

	cmd.Flags().StringSliceVar(&inputs, "input", nil, "Input values as KEY=VALUE (repeatable)")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Reuse the execution created with this key")
	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the execution finishes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval for --wait")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up waiting after this long")

	return cmd
}

func newExecutionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show execution status and steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			detail, err := clientFn().GetExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printDetail(outputFn(), detail)
			return nil
		},
	}
}

func newExecutionLatestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "latest WORKFLOW_ID",
		Short: "Show the most recent execution of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			exec, err := clientFn().LatestExecution(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if exec == nil {
				if out.jsonMode {
					out.JSON(nil)
				} else {
					out.Success("No executions yet")
				}
				return nil
			}

			out.Print(executionHeaders, [][]string{executionRow(*exec)}, exec)
			return nil
		},
	}
}

func newExecutionListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list WORKFLOW_ID",
		Short: "List executions of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			execs, _, err := clientFn().ListExecutions(cmd.Context(), args[0], ListExecutionsOpts{
				Status: status,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, len(execs))
			for i, e := range execs {
				rows[i] = executionRow(e)
			}

			out.Print(executionHeaders, rows, execs)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (pending, running, completed, failed)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newExecutionWaitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var interval, timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait ID",
		Short: "Poll an execution until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return waitAndPrint(cmd.Context(), clientFn(), outputFn(), args[0], interval, timeout)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Second, "Polling interval")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Give up waiting after this long")

	return cmd
}

// waitAndPrint возвращает ошибку, если execution завершился неуспешно,
// чтобы код выхода CLI отражал результат.
func waitAndPrint(ctx context.Context, client *Client, out *Output, id string, interval, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeoutCause(ctx, timeout, fmt.Errorf("gave up after %s", timeout))
	defer cancel()

	detail, err := client.WaitExecution(ctx, id, interval)
	if err != nil {
		return err
	}

	printDetail(out, detail)
	if detail.Execution.Status != "completed" {
		return fmt.Errorf("execution %s %s: %s", id, detail.Execution.Status, detail.Execution.Error)
	}
	return nil
}

// parseInputs разбирает KEY=VALUE. Значения остаются строками.
func parseInputs(kvs []string) (map[string]any, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	inputs := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid input format %q, expected KEY=VALUE", kv)
		}
		inputs[k] = v
	}
	return inputs, nil
}
