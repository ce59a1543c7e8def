package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewWorkflowCmd создаёт группу команд для управления workflows.
func NewWorkflowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Short:   "Manage workflows",
	}

	cmd.AddCommand(
		newWorkflowListCmd(clientFn, outputFn),
		newWorkflowCreateCmd(clientFn, outputFn),
		newWorkflowShowCmd(clientFn, outputFn),
		newWorkflowUpdateCmd(clientFn, outputFn),
		newWorkflowDeleteCmd(clientFn, outputFn),
		newWorkflowValidateCmd(clientFn, outputFn),
	)

	return cmd
}

var workflowHeaders = []string{"ID", "NAME", "NODES", "EDGES", "UPDATED"}

func workflowRow(w WorkflowResponse) []string {
	return []string{w.ID, w.Name, strconv.Itoa(w.NodeCount), strconv.Itoa(w.EdgeCount), w.UpdatedAt}
}

func newWorkflowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			workflows, err := clientFn().ListWorkflows(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, len(workflows))
			for i, w := range workflows {
				rows[i] = workflowRow(w)
			}

			out.Print(workflowHeaders, rows, workflows)
			return nil
		},
	}
}

func newWorkflowCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a workflow from a JSON document",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			wf, err := clientFn().CreateWorkflowFromFile(cmd.Context(), file)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow created: %s", wf.ID))
			out.Print([]string{"ID", "NAME", "CREATED"}, [][]string{{wf.ID, wf.Name, wf.CreatedAt}}, wf)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to workflow JSON ({name, nodes, edges}), '-' for stdin (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newWorkflowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show workflow graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			wf, err := clientFn().GetWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			// Граф целиком в таблицу не ложится
			out.JSON(wf)
			return nil
		},
	}
}

func newWorkflowUpdateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Replace a workflow graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			doc, err := readDocument(file)
			if err != nil {
				return err
			}

			wf, err := clientFn().UpdateWorkflow(cmd.Context(), args[0], doc)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow updated: %s", wf.ID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to workflow JSON, '-' for stdin (required)")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newWorkflowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := clientFn().DeleteWorkflow(cmd.Context(), args[0]); err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Workflow deleted: %s", args[0]))
			return nil
		},
	}
}

func newWorkflowValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate ID",
		Short: "Validate a workflow graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			v, err := clientFn().ValidateWorkflow(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(v.Errors)+len(v.Warnings))
			for _, i := range v.Errors {
				rows = append(rows, []string{"error", i.Kind, i.NodeID, i.EdgeID, i.Message})
			}
			for _, i := range v.Warnings {
				rows = append(rows, []string{"warning", i.Kind, i.NodeID, i.EdgeID, i.Message})
			}

			out.Print([]string{"LEVEL", "KIND", "NODE", "EDGE", "MESSAGE"}, rows, v)
			if !v.Valid {
				return fmt.Errorf("workflow %s is invalid: %d error(s)", args[0], len(v.Errors))
			}
			out.Success("Workflow is valid")
			return nil
		},
	}
}
