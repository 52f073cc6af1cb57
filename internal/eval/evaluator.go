// Package eval evaluates PKL modules into Go values.
package eval

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/apple/pkl-go/pkl"
	"github.com/picklr-io/webstack/internal/ir"
)

// Evaluator handles PKL evaluation relative to a project directory.
type Evaluator struct {
	projectDir string
}

func NewEvaluator(projectDir string) *Evaluator {
	return &Evaluator{
		projectDir: projectDir,
	}
}

// Resolve returns path relative to the project directory.
func (e *Evaluator) Resolve(path string) string {
	if filepath.IsAbs(path) || e.projectDir == "" {
		return path
	}
	return filepath.Join(e.projectDir, path)
}

// EvaluateInto evaluates a module and decodes it into out, which must be a
// pointer to a struct carrying pkl tags. External properties are exposed to
// the module through read("prop:...").
func (e *Evaluator) EvaluateInto(ctx context.Context, file string, properties map[string]string, out any) error {
	opts := []func(*pkl.EvaluatorOptions){pkl.PreconfiguredOptions}
	if len(properties) > 0 {
		opts = append(opts, func(o *pkl.EvaluatorOptions) {
			if o.Properties == nil {
				o.Properties = make(map[string]string)
			}
			for k, v := range properties {
				o.Properties[k] = v
			}
		})
	}

	evaluator, err := pkl.NewEvaluator(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create PKL evaluator: %w", err)
	}
	defer evaluator.Close()

	if err := evaluator.EvaluateModule(ctx, pkl.FileSource(e.Resolve(file)), out); err != nil {
		return fmt.Errorf("failed to evaluate %s: %w", file, err)
	}
	return nil
}

// LoadState evaluates a state file and returns the IR.
func (e *Evaluator) LoadState(ctx context.Context, stateFile string) (*ir.State, error) {
	var state ir.State
	if err := e.EvaluateInto(ctx, stateFile, nil, &state); err != nil {
		return nil, fmt.Errorf("failed to evaluate state: %w", err)
	}
	return &state, nil
}
