package provider

import (
	"context"
	"fmt"
	"sync"

	pb "github.com/picklr-io/webstack/pkg/provider"
	"github.com/picklr-io/webstack/providers/aws"
	"github.com/picklr-io/webstack/providers/null"
)

// Registry manages the lifecycle of providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]pb.Provider
	settings  *pb.ConfigureRequest
}

func NewRegistry(settings *pb.ConfigureRequest) *Registry {
	if settings == nil {
		settings = &pb.ConfigureRequest{}
	}
	return &Registry{
		providers: make(map[string]pb.Provider),
		settings:  settings,
	}
}

// LoadProvider initializes and registers a built-in provider.
func (r *Registry) LoadProvider(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p pb.Provider
	switch name {
	case "null":
		p = null.New()
	case "aws":
		p = aws.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	if err := p.Configure(ctx, r.settings); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", name, err)
	}

	r.providers[name] = p
	return nil
}

// Register adds an already configured provider under name, replacing any
// previous one.
func (r *Registry) Register(name string, p pb.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (pb.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
