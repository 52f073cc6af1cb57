package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/logging"
	pb "github.com/picklr-io/webstack/pkg/provider"
)

// Destroy deletes every resource in state in reverse dependency order.
func (e *Engine) Destroy(ctx context.Context, state *ir.State, callback ApplyCallback) (*ir.State, error) {
	dag, err := BuildDAGFromState(state.Resources)
	if err != nil {
		return state, fmt.Errorf("failed to build dependency graph: %w", err)
	}

	for _, addr := range dag.DestructionOrder() {
		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("destroy cancelled: %w", err)
		}
		res := state.Find(addr)
		logging.Debug("deleting resource", "address", addr)

		start := time.Now()
		if callback != nil {
			callback(ApplyEvent{Address: addr, Type: res.Type, Action: ir.ActionDelete, Status: "started"})
		}

		prov, err := e.registry.Get(res.Provider)
		if err != nil {
			return state, errdefs.Configuration(addr, "%v", err)
		}
		currentJSON, err := json.Marshal(res.Outputs)
		if err != nil {
			err = fmt.Errorf("failed to marshal state of %s: %w", addr, err)
			if callback != nil {
				callback(ApplyEvent{Address: addr, Type: res.Type, Action: ir.ActionDelete, Status: "failed", Duration: time.Since(start), Error: err})
			}
			return state, err
		}
		if err := prov.Delete(ctx, &pb.DeleteRequest{Type: res.Type, Name: res.Name, CurrentStateJSON: currentJSON}); err != nil {
			err = &errdefs.ProvisioningBackendError{Resource: addr, Op: "delete", Err: err}
			if callback != nil {
				callback(ApplyEvent{Address: addr, Type: res.Type, Action: ir.ActionDelete, Status: "failed", Duration: time.Since(start), Error: err})
			}
			return state, err
		}

		state.Resources = removeResource(state.Resources, addr)
		if callback != nil {
			callback(ApplyEvent{Address: addr, Type: res.Type, Action: ir.ActionDelete, Status: "completed", Duration: time.Since(start)})
		}
	}

	state.Serial++
	state.Outputs = nil
	return state, nil
}

func removeResource(resources []*ir.ResourceState, addr string) []*ir.ResourceState {
	out := resources[:0]
	for _, res := range resources {
		if res.Addr() != addr {
			out = append(out, res)
		}
	}
	return out
}
