package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/logging"
	"github.com/picklr-io/webstack/internal/provider"
)

const defaultParallelism = 10

// Engine orchestrates the lifecycle of resources.
type Engine struct {
	registry *provider.Registry

	// Parallelism bounds concurrent backend calls. Zero means the default.
	Parallelism int
}

func NewEngine(registry *provider.Registry) *Engine {
	return &Engine{
		registry: registry,
	}
}

// CreatePlan orders the declared resources and compares them with state.
// Resources already materialized with identical inputs are NOOP; a
// materialized resource whose inputs changed is rejected because in-place
// updates are not supported.
func (e *Engine) CreatePlan(ctx context.Context, resources []*ir.Resource, outputs map[string]any, state *ir.State) (*ir.Plan, error) {
	logging.Debug("creating plan", "resources", len(resources), "state_resources", len(state.Resources))

	dag, err := BuildDAG(resources)
	if err != nil {
		return nil, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	byAddr := make(map[string]*ir.Resource, len(resources))
	for _, res := range resources {
		byAddr[res.Addr()] = res
	}

	graphHash, err := HashResources(resources)
	if err != nil {
		return nil, err
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			GraphHash: graphHash,
		},
		Summary: &ir.PlanSummary{},
		Outputs: outputs,
	}

	for _, addr := range dag.CreationOrder() {
		res := byAddr[addr]
		hash, err := HashInputs(res.Properties)
		if err != nil {
			return nil, fmt.Errorf("failed to hash %s: %w", addr, err)
		}

		change := &ir.ResourceChange{Address: addr, Action: ir.ActionCreate, Desired: res}
		if prior := state.Find(addr); prior != nil {
			if prior.InputsHash != hash {
				return nil, errdefs.Configuration(addr, "resource already exists with different inputs; destroy the deployment before changing it")
			}
			change.Action = ir.ActionNoOp
			change.Prior = prior
			plan.Summary.NoOp++
		} else {
			plan.Summary.Create++
		}
		plan.Changes = append(plan.Changes, change)
	}

	return plan, nil
}

// HashInputs returns a stable digest of a resource's declared properties.
func HashInputs(props map[string]any) (string, error) {
	data, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// HashResources returns a digest of a whole resource graph. Two graphs built
// from identical configuration hash identically.
func HashResources(resources []*ir.Resource) (string, error) {
	data, err := json.Marshal(resources)
	if err != nil {
		return "", fmt.Errorf("failed to hash resource graph: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
