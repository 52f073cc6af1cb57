package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/picklr-io/webstack/internal/config"
	"github.com/picklr-io/webstack/internal/engine"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/logging"
	"github.com/picklr-io/webstack/internal/provider"
	"github.com/picklr-io/webstack/internal/stack"
	"github.com/picklr-io/webstack/internal/state"
	pb "github.com/picklr-io/webstack/pkg/provider"
	"github.com/picklr-io/webstack/providers/aws"
	"github.com/picklr-io/webstack/providers/null"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
)

// session is everything a command needs to work on one deployment.
type session struct {
	opts     *options
	out      io.Writer
	dir      string
	cfg      *config.Config
	registry *provider.Registry
	engine   *engine.Engine
	backend  state.Backend
}

// loadConfig reads and validates the deployment configuration.
func loadConfig(ctx context.Context, opts *options, out io.Writer) (*config.Config, error) {
	fmt.Fprint(out, "Loading configuration... ")
	cfg, err := config.Load(ctx, opts.configPath)
	if err != nil {
		fmt.Fprintln(out, "FAILED")
		return nil, err
	}
	fmt.Fprintln(out, "OK")
	return cfg, nil
}

// openSession loads the configuration, the backend and the state storage.
func openSession(ctx context.Context, opts *options, out io.Writer) (*session, error) {
	cfg, err := loadConfig(ctx, opts, out)
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", opts.configPath, err)
	}
	dir := filepath.Dir(absPath)

	registry, err := newRegistry(ctx, cfg)
	if err != nil {
		return nil, err
	}

	backend, err := state.NewBackend(ctx, cfg.State, cfg.Environment.Profile, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open state backend: %w", err)
	}

	return &session{
		opts:     opts,
		out:      out,
		dir:      dir,
		cfg:      cfg,
		registry: registry,
		engine:   engine.NewEngine(registry),
		backend:  backend,
	}, nil
}

// newRegistry loads the backend selected by the configuration. Resources
// always name the "aws" provider; the null backend stands in for it.
func newRegistry(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	settings := &pb.ConfigureRequest{Region: cfg.Environment.Region, Profile: cfg.Environment.Profile}
	registry := provider.NewRegistry(settings)

	if cfg.Backend == "null" {
		p := null.New()
		if err := p.Configure(ctx, settings); err != nil {
			return nil, err
		}
		registry.Register("aws", p)
		return registry, nil
	}
	if err := registry.LoadProvider(ctx, "aws"); err != nil {
		return nil, err
	}
	return registry, nil
}

// awsProvider returns the configured AWS backend, or nil with the null backend.
func (s *session) awsProvider() *aws.Provider {
	p, err := s.registry.Get("aws")
	if err != nil {
		return nil
	}
	ap, _ := p.(*aws.Provider)
	return ap
}

// build declares the deployment. A network given only by id is completed
// from the live VPC first.
func (s *session) build(ctx context.Context) (*stack.Deployment, error) {
	if n := s.cfg.Network; n != nil && n.ID != "" && len(n.Subnets) == 0 {
		if ap := s.awsProvider(); ap != nil {
			logging.Info("looking up network", "vpc", n.ID)
			handle, err := ap.LookupNetwork(ctx, n.ID)
			if err != nil {
				return nil, err
			}
			s.cfg.Network = handle
		}
	}
	return stack.Build(s.cfg)
}

// plan builds the deployment and diffs it against state.
func (s *session) plan(ctx context.Context, current *ir.State) (*stack.Deployment, *ir.Plan, error) {
	d, err := s.build(ctx)
	if err != nil {
		return nil, nil, err
	}

	fmt.Fprint(s.out, "Calculating plan... ")
	plan, err := s.engine.CreatePlan(ctx, d.Resources, d.Outputs, current)
	if err != nil {
		fmt.Fprintln(s.out, "FAILED")
		return nil, nil, fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Fprintln(s.out, "OK")
	return d, plan, nil
}

func (s *session) colorize(code string) string {
	return colorFor(s.opts, code)
}

// renderPlanChanges prints the resources a plan creates.
func (s *session) renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		if change.Action != ir.ActionCreate {
			continue
		}
		color := s.colorize(colorGreen)
		reset := s.colorize(colorReset)
		fmt.Fprintf(s.out, "\n%s  # %s will be created%s\n", color, change.Address, reset)
		fmt.Fprintf(s.out, "%s  + resource %q %q {\n", color, change.Desired.Type, change.Desired.Name)
		for _, k := range sortedKeys(change.Desired.Properties) {
			fmt.Fprintf(s.out, "%s      + %s = %s\n", color, k, formatValue(change.Desired.Properties[k]))
		}
		fmt.Fprintf(s.out, "%s    }%s\n", color, reset)
	}
}

// renderPlanSummary prints the plan summary counts.
func (s *session) renderPlanSummary(plan *ir.Plan) {
	fmt.Fprintln(s.out, "\nPlan Summary:")
	fmt.Fprintf(s.out, "  Create:  %d\n", plan.Summary.Create)
	fmt.Fprintf(s.out, "  NoOp:    %d\n", plan.Summary.NoOp)
}

// progress prints apply and destroy events as they happen.
func (s *session) progress(event engine.ApplyEvent) {
	switch event.Status {
	case "started":
		fmt.Fprintf(s.out, "%s: %s...\n", event.Address, strings.ToLower(event.Action))
	case "completed":
		fmt.Fprintf(s.out, "%s%s: done [%s]%s\n", s.colorize(colorGreen), event.Address, event.Duration.Round(time.Millisecond), s.colorize(colorReset))
	case "failed":
		fmt.Fprintf(s.out, "%s%s: failed: %v%s\n", s.colorize(colorRed), event.Address, event.Error, s.colorize(colorReset))
	}
}

func printOutputs(out io.Writer, outputs map[string]any) {
	if len(outputs) == 0 {
		return
	}
	fmt.Fprintln(out, "\nOutputs:")
	for _, k := range sortedKeys(outputs) {
		fmt.Fprintf(out, "  %s = %v\n", k, outputs[k])
	}
}

// confirm asks for approval on in. Only "y" and "yes" approve.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "\n%s (y/n): ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		if ir.IsRef(val) {
			return "(known after apply)"
		}
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// openBackend opens the state storage of the configured deployment without
// loading a provider.
func openBackend(ctx context.Context, opts *options, out io.Writer) (state.Backend, error) {
	cfg, err := loadConfig(ctx, opts, out)
	if err != nil {
		return nil, err
	}
	absPath, err := filepath.Abs(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", opts.configPath, err)
	}
	backend, err := state.NewBackend(ctx, cfg.State, cfg.Environment.Profile, filepath.Dir(absPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open state backend: %w", err)
	}
	return backend, nil
}
