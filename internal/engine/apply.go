package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/logging"
	pb "github.com/picklr-io/webstack/pkg/provider"
	"golang.org/x/sync/errgroup"
)

// ApplyEvent represents a progress event during apply or destroy.
type ApplyEvent struct {
	Address  string
	Type     string
	Action   string
	Status   string // "started", "completed", "failed"
	Duration time.Duration
	Error    error
}

// ApplyCallback is called for each apply event if set.
type ApplyCallback func(event ApplyEvent)

// ApplyPlan executes a plan and updates the state.
func (e *Engine) ApplyPlan(ctx context.Context, plan *ir.Plan, state *ir.State) (*ir.State, error) {
	return e.ApplyPlanWithCallback(ctx, plan, state, nil)
}

// ApplyPlanWithCallback materializes the plan in dependency order.
//
// Resources with no path between them are created concurrently. A resource
// starts only after every resource it references has been materialized, and
// its references are resolved from the outputs those resources returned. The
// first failure cancels everything not yet started; the returned state holds
// whatever was materialized so the caller can persist it.
func (e *Engine) ApplyPlanWithCallback(ctx context.Context, plan *ir.Plan, state *ir.State, callback ApplyCallback) (*ir.State, error) {
	emit := func(event ApplyEvent) {
		if callback != nil {
			callback(event)
		}
	}

	var desired []*ir.Resource
	for _, change := range plan.Changes {
		desired = append(desired, change.Desired)
	}
	dag, err := BuildDAG(desired)
	if err != nil {
		return state, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	var mu sync.Mutex
	done := make(map[string]chan struct{}, len(plan.Changes))
	for _, change := range plan.Changes {
		ch := make(chan struct{})
		if change.Action == ir.ActionNoOp {
			close(ch)
		}
		done[change.Address] = ch
	}

	limit := e.Parallelism
	if limit <= 0 {
		limit = defaultParallelism
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	// Changes are in creation order, so every goroutine waits only on
	// goroutines launched before it and the limit cannot deadlock.
	for _, change := range plan.Changes {
		if change.Action != ir.ActionCreate {
			continue
		}
		c := change
		deps := dag.Dependencies(c.Address)
		g.Go(func() error {
			for _, dep := range deps {
				select {
				case <-done[dep]:
				case <-gctx.Done():
					return nil
				}
			}
			if gctx.Err() != nil {
				return nil
			}

			start := time.Now()
			emit(ApplyEvent{Address: c.Address, Type: c.Desired.Type, Action: c.Action, Status: "started"})
			if err := e.applyChange(gctx, c, deps, state, &mu); err != nil {
				emit(ApplyEvent{Address: c.Address, Type: c.Desired.Type, Action: c.Action, Status: "failed", Duration: time.Since(start), Error: err})
				return err
			}
			emit(ApplyEvent{Address: c.Address, Type: c.Desired.Type, Action: c.Action, Status: "completed", Duration: time.Since(start)})
			close(done[c.Address])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return state, err
	}
	if err := ctx.Err(); err != nil {
		return state, fmt.Errorf("apply cancelled: %w", err)
	}

	outputs, err := ResolveOutputs(plan.Outputs, state)
	if err != nil {
		return state, err
	}
	state.Serial++
	state.Outputs = outputs

	return state, nil
}

func (e *Engine) applyChange(ctx context.Context, change *ir.ResourceChange, deps []string, state *ir.State, mu *sync.Mutex) error {
	res := change.Desired
	addr := change.Address
	logging.Debug("applying change", "address", addr, "action", change.Action)

	mu.Lock()
	resolved, err := resolveReferences(addr, res.Properties, state)
	mu.Unlock()
	if err != nil {
		return err
	}

	desiredJSON, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", addr, err)
	}

	prov, err := e.registry.Get(res.Provider)
	if err != nil {
		return errdefs.Configuration(addr, "%v", err)
	}

	resp, err := prov.Apply(ctx, &pb.ApplyRequest{
		Type:              res.Type,
		Name:              res.Name,
		DesiredConfigJSON: desiredJSON,
	})
	if err != nil {
		return &errdefs.ProvisioningBackendError{Resource: addr, Op: "create", Err: err}
	}

	var outputs map[string]any
	if len(resp.NewStateJSON) > 0 {
		if err := json.Unmarshal(resp.NewStateJSON, &outputs); err != nil {
			return fmt.Errorf("failed to unmarshal state for %s: %w", addr, err)
		}
	}

	hash, err := HashInputs(res.Properties)
	if err != nil {
		return err
	}

	mu.Lock()
	state.Resources = append(state.Resources, &ir.ResourceState{
		Type:         res.Type,
		Name:         res.Name,
		Provider:     res.Provider,
		Inputs:       res.Properties,
		InputsHash:   hash,
		Outputs:      outputs,
		Dependencies: deps,
	})
	mu.Unlock()

	return nil
}

// resolveReferences replaces every ptr:// reference with the materialized
// attribute it names. A reference to a resource missing from state, or to an
// attribute the resource did not return, is a DependencyError.
func resolveReferences(owner string, val any, state *ir.State) (any, error) {
	switch v := val.(type) {
	case string:
		if !ir.IsRef(v) {
			return v, nil
		}
		addr, attr, ok := ir.ParseRef(v)
		if !ok {
			return nil, errdefs.Configuration(owner, "malformed reference %q", v)
		}
		res := state.Find(addr)
		if res == nil {
			return nil, errdefs.Dependency(owner, addr, "referenced resource is not materialized")
		}
		if out, ok := res.Outputs[attr]; ok {
			return out, nil
		}
		return nil, errdefs.Dependency(owner, addr, "attribute %q was not returned by the backend", attr)
	case map[string]any:
		newMap := make(map[string]any, len(v))
		for k, item := range v {
			r, err := resolveReferences(owner, item, state)
			if err != nil {
				return nil, err
			}
			newMap[k] = r
		}
		return newMap, nil
	case []any:
		newSlice := make([]any, len(v))
		for i, item := range v {
			r, err := resolveReferences(owner, item, state)
			if err != nil {
				return nil, err
			}
			newSlice[i] = r
		}
		return newSlice, nil
	default:
		return v, nil
	}
}

// ResolveOutputs resolves deployment outputs against state.
func ResolveOutputs(outputs map[string]any, state *ir.State) (map[string]any, error) {
	if len(outputs) == 0 {
		return nil, nil
	}
	resolved, err := resolveReferences("outputs", outputs, state)
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]any), nil
}
