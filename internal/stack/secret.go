package stack

import (
	"log/slog"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

// GenerationPolicy describes how the backend generates the secret value.
// It has no field for a value.
type GenerationPolicy struct {
	Length            int
	ExcludeCharacters string
	Username          string
}

// Secret is a managed credential whose value only the backend ever sees.
type Secret struct {
	name     string
	resource *ir.Resource
}

// ProvisionSecret declares one secret with a generated value.
func ProvisionSecret(name string, policy GenerationPolicy) (*Secret, error) {
	if name == "" {
		return nil, errdefs.Configuration("secret.name", "secret has no name")
	}
	if policy.Length < 16 {
		return nil, errdefs.Configuration("secret.length", "generated secrets must be at least 16 characters")
	}
	if policy.Username == "" {
		return nil, errdefs.Configuration("secret.username", "generated credential has no username")
	}
	return &Secret{
		name: name,
		resource: &ir.Resource{
			Type:     ir.TypeSecret,
			Name:     name,
			Provider: "aws",
			Properties: map[string]any{
				"name":        name,
				"description": "generated database credential",
				"generate": map[string]any{
					"length":            policy.Length,
					"excludeCharacters": policy.ExcludeCharacters,
					"username":          policy.Username,
				},
			},
		},
	}, nil
}

func (s *Secret) Name() string { return s.name }
func (s *Secret) Resource() *ir.Resource { return s.resource }
func (s *Secret) ARN() string { return s.resource.Ref("arn") }
func (s *Secret) ARNPattern() string { return s.resource.Ref("arnPattern") }

// Materialize returns a handle other components embed in their declarations
// so the backend can read the value while creating them.
func (s *Secret) Materialize() SecretHandle {
	return SecretHandle{ref: s.resource.Ref("arn")}
}

// SecretHandle is an opaque capability to a secret value. It never renders
// the value or its location.
type SecretHandle struct {
	ref string
}

func (h SecretHandle) String() string   { return "SecretHandle(redacted)" }
func (h SecretHandle) GoString() string { return h.String() }

// LogValue keeps handles out of structured logs.
func (h SecretHandle) LogValue() slog.Value { return slog.StringValue(h.String()) }

// Valid reports whether the handle came from Materialize.
func (h SecretHandle) Valid() bool { return h.ref != "" }
