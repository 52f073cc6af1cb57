package state

import (
	"context"
	"fmt"

	"github.com/picklr-io/webstack/internal/config"
	"github.com/picklr-io/webstack/internal/eval"
	"github.com/picklr-io/webstack/internal/ir"
)

// Backend defines the interface for state storage backends.
type Backend interface {
	// Read loads the state from the backend.
	Read(ctx context.Context) (*ir.State, error)

	// Write saves the state to the backend.
	Write(ctx context.Context, state *ir.State) error

	// Lock acquires an exclusive lock on the state.
	Lock(ctx context.Context) error

	// Unlock releases the lock on the state.
	Unlock(ctx context.Context) error
}

var (
	_ Backend = (*Manager)(nil)
	_ Backend = (*s3Backend)(nil)
)

// NewBackend creates the state backend selected in the deployment
// configuration. Relative local paths are resolved against projectDir.
func NewBackend(ctx context.Context, cfg config.State, profile, projectDir string) (Backend, error) {
	c, err := CipherFromEnv(cfg.Encrypt && cfg.Type == "local")
	if err != nil {
		return nil, err
	}
	evaluator := eval.NewEvaluator(projectDir)

	switch cfg.Type {
	case "local", "":
		path := cfg.Path
		if path == "" {
			path = config.Defaults().State.Path
		}
		return NewManager(evaluator.Resolve(path), evaluator, c), nil
	case "s3":
		return newS3Backend(ctx, cfg, profile, evaluator, c)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", cfg.Type)
	}
}
