package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newOutputCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "output [name]",
		Short: "Show output values from state",
		Long: `Reads output values from the state file.

If no name is given, all outputs are displayed. If a name is given,
only that output's value is printed. Outputs are the instance id, the
database endpoint and the load balancer DNS name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			backend, err := openBackend(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			s, err := backend.Read(ctx)
			if err != nil {
				return fmt.Errorf("failed to read state: %w", err)
			}

			if len(args) > 0 {
				name := args[0]
				val, ok := s.Outputs[name]
				if !ok {
					return fmt.Errorf("output %q not found", name)
				}
				if asJSON {
					data, err := json.Marshal(val)
					if err != nil {
						return err
					}
					fmt.Fprintln(out, string(data))
				} else {
					fmt.Fprintln(out, val)
				}
				return nil
			}

			if len(s.Outputs) == 0 {
				fmt.Fprintln(out, "No outputs. Run 'webstack apply' first.")
				return nil
			}

			if asJSON {
				data, err := json.MarshalIndent(s.Outputs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(data))
				return nil
			}
			for _, k := range sortedKeys(s.Outputs) {
				fmt.Fprintf(out, "%s = %v\n", k, s.Outputs[k])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output in JSON format")
	return cmd
}
