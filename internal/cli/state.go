package cli

import (
	"fmt"

	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/logging"
	"github.com/spf13/cobra"
)

func newStateCmd(opts *options) *cobra.Command {
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and modify the recorded state",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List resources in state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			backend, err := openBackend(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			s, err := backend.Read(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read state: %w", err)
			}

			if len(s.Resources) == 0 {
				fmt.Fprintln(out, "No resources in state.")
				return nil
			}
			fmt.Fprintf(out, "State version: %d, serial: %d, lineage: %s\n\n", s.Version, s.Serial, s.Lineage)
			for _, res := range s.Resources {
				fmt.Fprintf(out, "  %s\n", res.Addr())
			}
			fmt.Fprintf(out, "\nTotal: %d resource(s)\n", len(s.Resources))
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <address>",
		Short: "Show attributes of a single resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openBackend(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			s, err := backend.Read(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to read state: %w", err)
			}
			res := s.Find(args[0])
			if res == nil {
				return fmt.Errorf("resource %s not found in state", args[0])
			}
			showResource(cmd, res)
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <address>",
		Short: "Remove a resource from state (does not destroy)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			backend, err := openBackend(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := backend.Lock(ctx); err != nil {
				return err
			}
			defer func() {
				if err := backend.Unlock(ctx); err != nil {
					logging.Warn("failed to release state lock", "error", err)
				}
			}()

			s, err := backend.Read(ctx)
			if err != nil {
				return fmt.Errorf("failed to read state: %w", err)
			}
			target := args[0]
			kept := make([]*ir.ResourceState, 0, len(s.Resources))
			for _, res := range s.Resources {
				if res.Addr() != target {
					kept = append(kept, res)
				}
			}
			if len(kept) == len(s.Resources) {
				return fmt.Errorf("resource %s not found in state", target)
			}
			s.Resources = kept
			s.Serial++
			if err := backend.Write(ctx, s); err != nil {
				return fmt.Errorf("failed to write state: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from state (resource was NOT destroyed)\n", target)
			return nil
		},
	}

	stateCmd.AddCommand(listCmd, showCmd, rmCmd)
	return stateCmd
}

func showResource(cmd *cobra.Command, res *ir.ResourceState) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", res.Addr())
	fmt.Fprintf(out, "  provider = %s\n", res.Provider)
	fmt.Fprintf(out, "  type     = %s\n", res.Type)
	fmt.Fprintf(out, "  name     = %s\n", res.Name)

	if len(res.Inputs) > 0 {
		fmt.Fprintln(out, "\n  Inputs:")
		for _, k := range sortedKeys(res.Inputs) {
			fmt.Fprintf(out, "    %s = %s\n", k, formatValue(res.Inputs[k]))
		}
	}
	if len(res.Outputs) > 0 {
		fmt.Fprintln(out, "\n  Outputs:")
		for _, k := range sortedKeys(res.Outputs) {
			fmt.Fprintf(out, "    %s = %s\n", k, formatValue(res.Outputs[k]))
		}
	}
	if len(res.Dependencies) > 0 {
		fmt.Fprintln(out, "\n  Dependencies:")
		for _, dep := range res.Dependencies {
			fmt.Fprintf(out, "    %s\n", dep)
		}
	}
	if res.InputsHash != "" {
		fmt.Fprintf(out, "\n  inputs_hash = %s\n", res.InputsHash)
	}
}
