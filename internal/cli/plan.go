package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the resources apply would create",
		Long: `Declares the deployment and compares it with the recorded state.

Resources already materialized with identical inputs are left alone. A
materialized resource whose inputs changed is reported as an error, since
resources are not updated in place.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			current, err := s.backend.Read(ctx)
			if err != nil {
				return fmt.Errorf("failed to read state: %w", err)
			}

			_, plan, err := s.plan(ctx, current)
			if err != nil {
				return err
			}

			if plan.Summary.Create == 0 {
				fmt.Fprintln(s.out, "\nNo changes. Infrastructure is up-to-date.")
				return nil
			}

			fmt.Fprintln(s.out, "\nWebstack will perform the following actions:")
			s.renderPlanChanges(plan)
			s.renderPlanSummary(plan)
			return nil
		},
	}
}
