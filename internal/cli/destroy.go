package cli

import (
	"fmt"

	"github.com/picklr-io/webstack/internal/engine"
	"github.com/picklr-io/webstack/internal/logging"
	"github.com/spf13/cobra"
)

func newDestroyCmd(opts *options) *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Destroy all managed infrastructure",
		Long: `Deletes every resource recorded in state, in reverse dependency order.

This command is the inverse of 'webstack apply'. A database with deletion
protection enabled must have it turned off before it can be destroyed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if err := s.backend.Lock(ctx); err != nil {
				return err
			}
			defer func() {
				if err := s.backend.Unlock(ctx); err != nil {
					logging.Warn("failed to release state lock", "error", err)
				}
			}()

			current, err := s.backend.Read(ctx)
			if err != nil {
				return fmt.Errorf("failed to read state: %w", err)
			}
			if len(current.Resources) == 0 {
				fmt.Fprintln(s.out, "No resources in state. Nothing to destroy.")
				return nil
			}

			fmt.Fprintln(s.out, "\nWebstack will destroy the following resources:")
			for _, res := range current.Resources {
				fmt.Fprintf(s.out, "%s  - %s%s\n", s.colorize(colorRed), res.Addr(), s.colorize(colorReset))
			}

			if !autoApprove && !confirm(cmd.InOrStdin(), s.out, "Do you really want to destroy all resources?") {
				fmt.Fprintln(s.out, "Destroy cancelled.")
				return nil
			}

			count := len(current.Resources)
			newState, destroyErr := s.engine.Destroy(ctx, current, func(event engine.ApplyEvent) {
				s.progress(event)
			})
			if err := s.backend.Write(ctx, newState); err != nil {
				return fmt.Errorf("failed to write state: %w", err)
			}
			if destroyErr != nil {
				return fmt.Errorf("destroy failed: %w", destroyErr)
			}

			fmt.Fprintf(s.out, "\nDestroy complete! Resources: %d destroyed.\n", count)
			return nil
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	return cmd
}
