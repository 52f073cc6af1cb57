package cli

import (
	"github.com/picklr-io/webstack/internal/config"
	"github.com/picklr-io/webstack/internal/logging"
	"github.com/spf13/cobra"
)

const defaultConfigPath = "webstack.yaml"

// options holds the persistent flags shared by every command.
type options struct {
	configPath string
	logLevel   string
	envFile    string
	noColor    bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "webstack",
		Short: "Provision a containerized web application on AWS",
		Long: `Webstack provisions a single containerized web application with its
supporting infrastructure on AWS:
  • a compute instance running the container image
  • a managed PostgreSQL database in private subnets
  • a generated database credential
  • an internet-facing load balancer
  • least-privilege security groups and IAM roles`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.InitWithWriter(opts.logLevel, cmd.ErrOrStderr())
			return config.LoadEnv(opts.envFile, cmd.Flags().Changed("env-file"))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "Deployment configuration file (.yaml or .pkl)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Environment file with AWS settings")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newInitCmd(opts),
		newValidateCmd(opts),
		newPlanCmd(opts),
		newApplyCmd(opts),
		newDestroyCmd(opts),
		newGraphCmd(opts),
		newOutputCmd(opts),
		newStateCmd(opts),
		newSmokeCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
