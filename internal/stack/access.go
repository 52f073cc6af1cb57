package stack

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

const (
	ComputePrincipal  = "ec2.amazonaws.com"
	DatabasePrincipal = "rds.amazonaws.com"

	policyVersion = "2012-10-17"
)

// resourceLessActions may be granted on "*" because the service has no
// resource-level scope for them.
var resourceLessActions = map[string]bool{
	"ecr:GetAuthorizationToken": true,
}

// Grant is one policy statement: a set of actions on a set of resources.
// Resources are ARNs or references to materialized ARNs.
type Grant struct {
	Actions   []string
	Resources []string
}

func (g Grant) equal(o Grant) bool {
	return slices.Equal(g.Actions, o.Actions) && slices.Equal(g.Resources, o.Resources)
}

// Identity is a role trusted by exactly one service principal.
type Identity struct {
	Name      string
	Principal string

	grants  []Grant
	role    *ir.Resource
	profile *ir.Resource
}

// NewIdentity declares an identity trusted only by the given service
// principal.
func NewIdentity(name, principal string) (*Identity, error) {
	if name == "" {
		return nil, errdefs.Configuration("identity.name", "identity has no name")
	}
	if !strings.HasSuffix(principal, ".amazonaws.com") || strings.Contains(principal, "*") {
		return nil, errdefs.Configuration("identity.principal", "%q is not a service principal", principal)
	}
	return &Identity{
		Name:      name,
		Principal: principal,
		role:      &ir.Resource{Type: ir.TypeRole, Name: name, Provider: "aws"},
	}, nil
}

// Grant adds a statement. Grants are additive; an identical statement is
// ignored. The statement is checked before it is recorded.
func (id *Identity) Grant(actions []string, resources ...string) error {
	g := Grant{Actions: sortedUnique(actions), Resources: sortedUnique(resources)}
	if len(g.Actions) == 0 || len(g.Resources) == 0 {
		return &errdefs.PolicyConflictError{Identity: id.Name, Resources: g.Resources, Reason: "a grant needs at least one action and one resource"}
	}
	if err := id.checkGrant(g); err != nil {
		return err
	}
	for _, existing := range id.grants {
		if existing.equal(g) {
			return nil
		}
	}
	if err := id.checkOverlap(append(slices.Clone(id.grants), g)); err != nil {
		return err
	}
	id.grants = append(id.grants, g)
	return nil
}

// GrantOn adds a statement whose resources belong to owner, a resource
// declared in the same deployment. The role is materialized after owner.
func (id *Identity) GrantOn(owner *ir.Resource, actions []string, resources ...string) error {
	if owner == nil {
		return errdefs.Dependency(id.role.Addr(), "grant scope", "granted resource is not provisioned")
	}
	if err := id.Grant(actions, resources...); err != nil {
		return err
	}
	if addr := owner.Addr(); !slices.Contains(id.role.DependsOn, addr) {
		id.role.DependsOn = append(id.role.DependsOn, addr)
	}
	return nil
}

// Grants returns a copy of the recorded statements.
func (id *Identity) Grants() []Grant {
	return slices.Clone(id.grants)
}

// Check re-validates every recorded statement.
func (id *Identity) Check() error {
	for _, g := range id.grants {
		if err := id.checkGrant(g); err != nil {
			return err
		}
	}
	return id.checkOverlap(id.grants)
}

func (id *Identity) checkGrant(g Grant) error {
	for _, action := range g.Actions {
		if action == "*" || strings.Contains(action, "*") {
			return &errdefs.PolicyConflictError{Identity: id.Name, Action: action, Resources: g.Resources, Reason: "wildcard actions are not allowed"}
		}
		if !strings.Contains(action, ":") {
			return &errdefs.PolicyConflictError{Identity: id.Name, Action: action, Resources: g.Resources, Reason: "action must be service-qualified"}
		}
	}
	for _, res := range g.Resources {
		if res == "*" {
			for _, action := range g.Actions {
				if !resourceLessActions[action] {
					return &errdefs.PolicyConflictError{Identity: id.Name, Action: action, Resources: g.Resources, Reason: "action may not target every resource"}
				}
			}
			continue
		}
		for _, action := range g.Actions {
			if scopedService(action) && AccountWildcarded(res) {
				return &errdefs.PolicyConflictError{Identity: id.Name, Action: action, Resources: g.Resources, Reason: "resource is not scoped to a single account"}
			}
		}
	}
	return nil
}

// checkOverlap rejects two statements that share an action but name
// different resource scopes.
func (id *Identity) checkOverlap(grants []Grant) error {
	seen := make(map[string]Grant)
	for _, g := range grants {
		for _, action := range g.Actions {
			prev, ok := seen[action]
			if ok && !slices.Equal(prev.Resources, g.Resources) {
				return &errdefs.PolicyConflictError{
					Identity:  id.Name,
					Action:    action,
					Resources: sortedUnique(append(slices.Clone(prev.Resources), g.Resources...)),
					Reason:    "action is granted with conflicting resource scopes",
				}
			}
			seen[action] = g
		}
	}
	return nil
}

func scopedService(action string) bool {
	return strings.HasPrefix(action, "s3:") || strings.HasPrefix(action, "secretsmanager:")
}

// AccountWildcarded reports whether an ARN is not pinned to a single
// account-owned resource. References to materialized resources are always
// pinned.
func AccountWildcarded(arn string) bool {
	if ir.IsRef(arn) {
		return false
	}
	if arn == "*" {
		return true
	}
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) != 6 || parts[0] != "arn" {
		return true
	}
	service, account, resource := parts[2], parts[4], parts[5]
	if service == "s3" {
		// Bucket ARNs carry no account; the bucket name is the scope.
		return resource == "" || strings.HasPrefix(resource, "*")
	}
	if account == "" || strings.Contains(account, "*") {
		return true
	}
	name := resource
	if i := strings.IndexAny(resource, ":/"); i >= 0 {
		name = resource[i+1:]
	}
	return name == "" || strings.HasPrefix(name, "*")
}

// WithInstanceProfile declares an instance profile wrapping the role so a
// compute host can assume it.
func (id *Identity) WithInstanceProfile() *Identity {
	id.profile = &ir.Resource{Type: ir.TypeInstanceProfile, Name: id.Name, Provider: "aws"}
	return id
}

// RoleArn is a reference to the materialized role ARN.
func (id *Identity) RoleArn() string { return id.role.Ref("arn") }

// ProfileName is a reference to the instance profile name, or "" when the
// identity has no profile.
func (id *Identity) ProfileName() string {
	if id.profile == nil {
		return ""
	}
	return id.profile.Ref("name")
}

// Resources renders the identity as a role with its trust and inline policy,
// plus the instance profile when one was requested.
func (id *Identity) Resources() []*ir.Resource {
	statements := make([]any, 0, len(id.grants))
	for _, g := range id.grants {
		statements = append(statements, map[string]any{
			"Effect":   "Allow",
			"Action":   toAny(g.Actions),
			"Resource": toAny(g.Resources),
		})
	}
	id.role.Properties = map[string]any{
		"name": id.Name,
		"assumeRolePolicy": map[string]any{
			"Version": policyVersion,
			"Statement": []any{map[string]any{
				"Effect":    "Allow",
				"Principal": map[string]any{"Service": id.Principal},
				"Action":    "sts:AssumeRole",
			}},
		},
		"policyName": id.Name + "-access",
		"policy": map[string]any{
			"Version":   policyVersion,
			"Statement": statements,
		},
	}
	out := []*ir.Resource{id.role}
	if id.profile != nil {
		id.profile.Properties = map[string]any{
			"name":     id.Name,
			"roleName": id.role.Ref("name"),
		}
		out = append(out, id.profile)
	}
	return out
}

// BuildComputeIdentity declares the compute host identity: object access on
// the bucket and its objects, read access to the database secret and, for
// registry-hosted images, pull access to the one repository.
func BuildComputeIdentity(deployment string, store *ObjectStore, secret *Secret, image ImageRef) (*Identity, error) {
	if store == nil {
		return nil, errdefs.Dependency("compute identity", "object store", "object store not provisioned")
	}
	if secret == nil {
		return nil, errdefs.Dependency("compute identity", "secret", "secret not provisioned")
	}

	id, err := NewIdentity(deployment+"-compute", ComputePrincipal)
	if err != nil {
		return nil, err
	}
	if err := id.GrantOn(store.Resource(), []string{"s3:GetObject", "s3:PutObject", "s3:DeleteObject"}, store.ARN(), store.ObjectsARN()); err != nil {
		return nil, err
	}
	if err := id.Grant([]string{"secretsmanager:GetSecretValue"}, secret.ARNPattern()); err != nil {
		return nil, err
	}
	if image.IsECR() {
		if err := id.Grant([]string{"ecr:GetAuthorizationToken"}, "*"); err != nil {
			return nil, err
		}
		if err := id.Grant(
			[]string{"ecr:BatchCheckLayerAvailability", "ecr:BatchGetImage", "ecr:GetDownloadUrlForLayer"},
			image.RepositoryARN(),
		); err != nil {
			return nil, err
		}
	}
	return id.WithInstanceProfile(), nil
}

func sortedUnique(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return slices.Compact(out)
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func (g Grant) String() string {
	return fmt.Sprintf("%s on %s", strings.Join(g.Actions, ","), strings.Join(g.Resources, ","))
}
