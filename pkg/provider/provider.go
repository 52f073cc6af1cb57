// Package provider defines the contract between the engine and a
// provisioning backend.
//
// Desired configuration and resource state travel as JSON documents so a
// backend owns the shape of its own resource types.
package provider

import "context"

// Provider materializes and deletes resources.
type Provider interface {
	// Configure prepares the backend (clients, region). It is called once
	// before any Apply or Delete.
	Configure(ctx context.Context, req *ConfigureRequest) error

	// Apply creates the resource described by req and returns its outputs.
	// References have already been resolved.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)

	// Delete removes a previously materialized resource.
	Delete(ctx context.Context, req *DeleteRequest) error
}

type ConfigureRequest struct {
	Region  string
	Profile string
}

type ApplyRequest struct {
	Type              string
	Name              string
	DesiredConfigJSON []byte
}

type ApplyResponse struct {
	NewStateJSON []byte
}

type DeleteRequest struct {
	Type             string
	Name             string
	CurrentStateJSON []byte
}
