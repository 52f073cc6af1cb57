package cli

import (
	"fmt"
	"time"

	"github.com/picklr-io/webstack/internal/stack"
	"github.com/picklr-io/webstack/internal/workload"
	pb "github.com/picklr-io/webstack/pkg/provider"
	"github.com/picklr-io/webstack/providers/aws"
	"github.com/spf13/cobra"
)

func newSmokeCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run the configured image locally and probe it",
		Long: `Pulls the configured image, starts it with its container port published
on a loopback port and waits for "/" to answer HTTP 200. Needs a local
Docker daemon. ECR images are pulled with a registry login from the
configured AWS credentials.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			img, err := stack.ParseImage(cfg.Image)
			if err != nil {
				return err
			}

			test, err := workload.NewSmokeTest(img.String(), cfg.Compute.ContainerPort)
			if err != nil {
				return err
			}
			test.Timeout = timeout

			if img.IsECR() && cfg.Backend == "aws" {
				p := aws.New()
				if err := p.Configure(ctx, &pb.ConfigureRequest{Region: img.Region(), Profile: cfg.Environment.Profile}); err != nil {
					return err
				}
				creds, err := p.RegistryLogin(ctx, img.Account())
				if err != nil {
					return err
				}
				test.Credentials = &workload.Credentials{
					Username:      creds.Username,
					Password:      creds.Password,
					ServerAddress: creds.ServerAddress,
				}
			}

			res, err := test.Run(ctx)
			if err != nil {
				fmt.Fprintf(out, "%sSmoke test failed:%s %v\n", colorFor(opts, colorRed), colorFor(opts, colorReset), err)
				return err
			}
			fmt.Fprintf(out, "%sSmoke test passed!%s %s answered 200 after %d attempt(s) in %s\n",
				colorFor(opts, colorGreen), colorFor(opts, colorReset), res.URL, res.Attempts, res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "How long to wait for the container to answer")
	return cmd
}

func colorFor(opts *options, code string) string {
	if opts.noColor {
		return ""
	}
	return code
}
