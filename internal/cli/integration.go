package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewIntegrationCmd создаёт группу команд для просмотра типов узлов.
func NewIntegrationCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration",
		Short: "Inspect registered node types",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered node types",
			RunE: func(cmd *cobra.Command, args []string) error {
				out := outputFn()

				integrations, err := clientFn().ListIntegrations(cmd.Context())
				if err != nil {
					return err
				}

				rows := make([][]string, len(integrations))
				for i, it := range integrations {
					rows[i] = []string{it.Type}
				}
				out.Print([]string{"TYPE"}, rows, integrations)
				return nil
			},
		},
		newIntegrationValidateCmd(clientFn, outputFn),
	)

	return cmd
}

func newIntegrationValidateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var raw string

	cmd := &cobra.Command{
		Use:   "validate TYPE",
		Short: "Validate a node config against its type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			var config map[string]any
			if err := json.Unmarshal([]byte(raw), &config); err != nil {
				return fmt.Errorf("--config: %w", err)
			}

			v, err := clientFn().ValidateIntegrationConfig(cmd.Context(), args[0], config)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(v.Errors))
			for field, msg := range v.Errors {
				rows = append(rows, []string{field, msg})
			}
			out.Print([]string{"FIELD", "ERROR"}, rows, v)
			if !v.Valid {
				return fmt.Errorf("invalid %s config", args[0])
			}
			out.Success("Config is valid")
			return nil
		},
	}

	cmd.Flags().StringVar(&raw, "config", "{}", "Node config as a JSON object")

	return cmd
}
