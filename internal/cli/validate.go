package cli

import (
	"fmt"

	"github.com/picklr-io/webstack/internal/stack"
	"github.com/spf13/cobra"
)

func newValidateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the deployment configuration",
		Long: `Validates the configuration and declares every resource without
contacting AWS. Perimeter rules and access grants are checked here, so a
policy conflict fails before anything is created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg, err := loadConfig(cmd.Context(), opts, out)
			if err != nil {
				return err
			}

			fmt.Fprint(out, "Declaring resources... ")
			d, err := stack.Build(cfg)
			if err != nil {
				fmt.Fprintln(out, "FAILED")
				return err
			}
			fmt.Fprintln(out, "OK")

			fmt.Fprintf(out, "\nConfiguration is valid! %d resources declared.\n", len(d.Resources))
			return nil
		},
	}
}
