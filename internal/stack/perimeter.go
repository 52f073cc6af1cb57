package stack

import (
	"fmt"
	"net/netip"

	"github.com/picklr-io/webstack/internal/config"
	"github.com/picklr-io/webstack/internal/engine"
	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

// Role tags the resource a perimeter is attached to.
type Role string

const (
	RoleEdge     Role = "edge"
	RoleCompute  Role = "compute"
	RoleDatabase Role = "database"
)

type Direction string

const (
	Ingress Direction = "ingress"
	Egress  Direction = "egress"
)

const (
	// DatabasePort is the PostgreSQL listener port.
	DatabasePort = 5432
	// HostPort is the port the compute host publishes the workload on.
	HostPort = 80

	anyIPv4     = "0.0.0.0/0"
	allProtocol = "-1"
)

// Peer is the other side of a rule: exactly one of a CIDR or a perimeter.
type Peer struct {
	CIDR      string
	Perimeter Role
}

func (p Peer) String() string {
	if p.Perimeter != "" {
		return "perimeter:" + string(p.Perimeter)
	}
	return p.CIDR
}

// Rule is a single directional filtering rule.
type Rule struct {
	Direction   Direction
	Protocol    string
	Port        int
	Peer        Peer
	Description string
	Override    bool
}

// Perimeter is the ordered rule set bound to one role.
type Perimeter struct {
	Role  Role
	Rules []Rule

	resource *ir.Resource
}

// Resource returns the security group declared for the perimeter.
func (p *Perimeter) Resource() *ir.Resource { return p.resource }

// GroupID is a reference to the materialized security group id.
func (p *Perimeter) GroupID() string { return p.resource.Ref("id") }

// HasIngress reports whether the perimeter admits tcp traffic on port.
func (p *Perimeter) HasIngress(port int) bool {
	for _, r := range p.Rules {
		if r.Direction == Ingress && r.Protocol == "tcp" && r.Port == port {
			return true
		}
	}
	return false
}

// Perimeters holds the three perimeters of a deployment.
type Perimeters struct {
	Edge     *Perimeter
	Compute  *Perimeter
	Database *Perimeter
}

// All returns the perimeters in declaration order.
func (ps *Perimeters) All() []*Perimeter {
	return []*Perimeter{ps.Edge, ps.Compute, ps.Database}
}

// Resources returns the declared security groups.
func (ps *Perimeters) Resources() []*ir.Resource {
	var out []*ir.Resource
	for _, p := range ps.All() {
		out = append(out, p.resource)
	}
	return out
}

// PerimeterSpec carries the ports and overrides the rules are derived from.
type PerimeterSpec struct {
	ListenerPort int
	WorkloadPort int
	DatabasePort int
	Overrides    []config.EgressOverride
}

// BuildPerimeters derives the edge, compute and database perimeters. Egress is
// denied unless a rule opens it; the only broad egress rules are configured
// overrides.
func BuildPerimeters(deployment string, nb *NetworkBoundary, spec PerimeterSpec) (*Perimeters, error) {
	if nb == nil {
		return nil, errdefs.Dependency("perimeters", "network", "network boundary not resolved")
	}
	if spec.WorkloadPort == 0 {
		spec.WorkloadPort = HostPort
	}
	if spec.DatabasePort == 0 {
		spec.DatabasePort = DatabasePort
	}

	edge := &Perimeter{Role: RoleEdge, Rules: []Rule{
		{Direction: Ingress, Protocol: "tcp", Port: spec.ListenerPort, Peer: Peer{CIDR: anyIPv4}, Description: "public listener"},
		{Direction: Egress, Protocol: "tcp", Port: spec.WorkloadPort, Peer: Peer{CIDR: nb.CIDR}, Description: "forward to targets"},
	}}
	compute := &Perimeter{Role: RoleCompute, Rules: []Rule{
		{Direction: Ingress, Protocol: "tcp", Port: spec.WorkloadPort, Peer: Peer{Perimeter: RoleEdge}, Description: "traffic from load balancer"},
		{Direction: Egress, Protocol: "tcp", Port: spec.DatabasePort, Peer: Peer{CIDR: nb.CIDR}, Description: "database access"},
	}}
	database := &Perimeter{Role: RoleDatabase, Rules: []Rule{
		{Direction: Ingress, Protocol: "tcp", Port: spec.DatabasePort, Peer: Peer{CIDR: nb.CIDR}, Description: "database clients in network"},
	}}
	ps := &Perimeters{Edge: edge, Compute: compute, Database: database}

	for i, o := range spec.Overrides {
		p := ps.byRole(Role(o.Role))
		if p == nil {
			return nil, errdefs.Configuration(fmt.Sprintf("overrides.egress[%d].role", i), "unknown role %q", o.Role)
		}
		desc := o.Description
		if desc == "" {
			desc = "override"
		}
		p.Rules = append(p.Rules, Rule{
			Direction:   Egress,
			Protocol:    o.Protocol,
			Port:        o.Port,
			Peer:        Peer{CIDR: o.CIDR},
			Description: desc,
			Override:    true,
		})
	}

	for _, p := range ps.All() {
		p.resource = &ir.Resource{
			Type:     ir.TypeSecurityGroup,
			Name:     deployment + "-" + string(p.Role),
			Provider: "aws",
		}
	}
	for _, p := range ps.All() {
		p.resource.Properties = map[string]any{
			"name":           p.resource.Name,
			"description":    fmt.Sprintf("%s perimeter of %s", p.Role, deployment),
			"vpcId":          nb.ID,
			"allowAllEgress": false,
			"ingress":        ps.renderRules(p, Ingress),
			"egress":         ps.renderRules(p, Egress),
		}
	}

	if err := ValidatePerimeters(ps.All()); err != nil {
		return nil, err
	}
	return ps, nil
}

func (ps *Perimeters) byRole(role Role) *Perimeter {
	for _, p := range ps.All() {
		if p != nil && p.Role == role {
			return p
		}
	}
	return nil
}

func (ps *Perimeters) renderRules(p *Perimeter, dir Direction) []any {
	rules := []any{}
	for _, r := range p.Rules {
		if r.Direction != dir {
			continue
		}
		m := map[string]any{
			"protocol":    r.Protocol,
			"fromPort":    r.Port,
			"toPort":      r.Port,
			"description": r.Description,
		}
		if r.Protocol == allProtocol {
			m["fromPort"], m["toPort"] = -1, -1
		}
		if r.Peer.Perimeter != "" {
			if peer := ps.byRole(r.Peer.Perimeter); peer != nil && peer.resource != nil {
				m["sourceGroupId"] = peer.GroupID()
			}
		} else {
			m["cidr"] = r.Peer.CIDR
		}
		rules = append(rules, m)
	}
	return rules
}

// ValidatePerimeters checks the rule invariants: every peer is exactly one of
// a CIDR or a declared perimeter, no egress rule is a wildcard unless it is an
// override, and the references between perimeters form no cycle.
func ValidatePerimeters(perimeters []*Perimeter) error {
	roles := make(map[Role]*Perimeter, len(perimeters))
	for _, p := range perimeters {
		roles[p.Role] = p
	}

	// One node per perimeter, one edge per perimeter reference.
	nodes := make([]*ir.Resource, 0, len(perimeters))
	for _, p := range perimeters {
		node := &ir.Resource{Type: ir.TypeSecurityGroup, Name: string(p.Role)}
		var peers []any
		for i, r := range p.Rules {
			field := fmt.Sprintf("perimeter.%s.rules[%d]", p.Role, i)
			hasCIDR, hasRef := r.Peer.CIDR != "", r.Peer.Perimeter != ""
			if hasCIDR == hasRef {
				return errdefs.Configuration(field, "peer must be exactly one of a CIDR or a perimeter")
			}
			if hasRef {
				if _, ok := roles[r.Peer.Perimeter]; !ok {
					return errdefs.Dependency(string(p.Role)+" perimeter", string(r.Peer.Perimeter)+" perimeter", "peer perimeter is not declared")
				}
				if r.Peer.Perimeter == p.Role {
					return errdefs.Configuration(field, "perimeter references itself")
				}
				peers = append(peers, (&ir.Resource{Type: ir.TypeSecurityGroup, Name: string(r.Peer.Perimeter)}).Ref("id"))
			} else if _, err := netip.ParsePrefix(r.Peer.CIDR); err != nil {
				return errdefs.Configuration(field, "invalid peer range %q", r.Peer.CIDR)
			}
			if r.Direction == Egress && !r.Override && isWildcard(r) {
				return errdefs.Configuration(field, "broad egress to %s is only allowed as an explicit override", r.Peer)
			}
		}
		node.Properties = map[string]any{"peers": peers}
		nodes = append(nodes, node)
	}

	if _, err := engine.BuildDAG(nodes); err != nil {
		return errdefs.Configuration("perimeters", "invalid perimeter reference graph: %v", err)
	}
	return nil
}

// isWildcard reports whether a rule opens every protocol or names a zero
// length prefix, however the prefix is spelled.
func isWildcard(r Rule) bool {
	if r.Protocol == allProtocol {
		return true
	}
	if r.Peer.CIDR == "" {
		return false
	}
	prefix, err := netip.ParsePrefix(r.Peer.CIDR)
	return err == nil && prefix.Bits() == 0
}
