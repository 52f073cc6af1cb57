package cli

import (
	"fmt"

	"github.com/picklr-io/webstack/internal/engine"
	"github.com/picklr-io/webstack/internal/logging"
	"github.com/picklr-io/webstack/internal/metrics"
	"github.com/spf13/cobra"
)

type applyOptions struct {
	autoApprove bool
	parallelism int
	metricsFile string
}

func newApplyCmd(opts *options) *cobra.Command {
	applyOpts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision the deployment",
		Long: `Creates every resource the deployment declares that is not yet
recorded in state, in dependency order. Independent resources are created
concurrently.

On failure the resources created so far are recorded so that a later apply
resumes where this one stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, opts, applyOpts)
		},
	}

	cmd.Flags().BoolVar(&applyOpts.autoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	cmd.Flags().IntVarP(&applyOpts.parallelism, "parallelism", "p", 10, "Maximum concurrent resource operations")
	cmd.Flags().StringVar(&applyOpts.metricsFile, "metrics-file", "", "Write prometheus metrics for the run to this textfile")
	return cmd
}

func runApply(cmd *cobra.Command, opts *options, applyOpts *applyOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	s.engine.Parallelism = applyOpts.parallelism

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

	_, plan, err := s.plan(ctx, current)
	if err != nil {
		return err
	}

	if plan.Summary.Create == 0 {
		fmt.Fprintln(s.out, "No changes. Infrastructure is up-to-date.")
		printOutputs(s.out, current.Outputs)
		return nil
	}

	fmt.Fprintln(s.out, "\nWebstack will perform the following actions:")
	s.renderPlanChanges(plan)
	s.renderPlanSummary(plan)

	if !applyOpts.autoApprove && !confirm(cmd.InOrStdin(), s.out, "Do you want to perform these actions?") {
		fmt.Fprintln(s.out, "Apply cancelled.")
		return nil
	}

	recorder := metrics.NewRecorder(s.cfg.Name)
	fmt.Fprintf(s.out, "\nApplying %d changes...\n", plan.Summary.Create)

	newState, applyErr := s.engine.ApplyPlanWithCallback(ctx, plan, current, func(event engine.ApplyEvent) {
		recorder.Observe(event)
		s.progress(event)
	})

	// Partial state is written too so successful changes aren't lost.
	if err := s.backend.Write(ctx, newState); err != nil {
		if applyErr != nil {
			return fmt.Errorf("apply failed: %w (and failed to write state: %v)", applyErr, err)
		}
		return fmt.Errorf("failed to write state: %w", err)
	}

	recorder.Finish(len(newState.Resources))
	if applyOpts.metricsFile != "" {
		if err := recorder.WriteTextfile(applyOpts.metricsFile); err != nil {
			logging.Warn("failed to write metrics", "error", err)
		}
	}

	if applyErr != nil {
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	fmt.Fprintf(s.out, "\nApply complete! Resources: %d added.\n", plan.Summary.Create)
	printOutputs(s.out, newState.Outputs)
	return nil
}
