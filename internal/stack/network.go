package stack

import (
	"fmt"
	"net/netip"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

// NetworkBoundary is a validated network handle with its subnets partitioned
// by visibility.
type NetworkBoundary struct {
	ID      string
	CIDR    string
	Public  []ir.Subnet
	Private []ir.Subnet
}

// ResolveNetwork checks that the handle exposes at least one public and one
// private subnet.
func ResolveNetwork(h *ir.NetworkHandle) (*NetworkBoundary, error) {
	if h == nil {
		return nil, errdefs.Configuration("network", "no network handle supplied")
	}
	if h.ID == "" {
		return nil, errdefs.Configuration("network.id", "network handle has no id")
	}
	prefix, err := netip.ParsePrefix(h.CIDR)
	if err != nil {
		return nil, errdefs.Configuration("network.cidr", "invalid network range %q", h.CIDR)
	}

	nb := &NetworkBoundary{ID: h.ID, CIDR: prefix.Masked().String()}
	for i, s := range h.Subnets {
		field := fmt.Sprintf("network.subnets[%d]", i)
		if s.ID == "" {
			return nil, errdefs.Configuration(field+".id", "subnet has no id")
		}
		if s.CIDR != "" {
			sp, err := netip.ParsePrefix(s.CIDR)
			if err != nil {
				return nil, errdefs.Configuration(field+".cidr", "invalid subnet range %q", s.CIDR)
			}
			if !prefix.Contains(sp.Addr()) || sp.Bits() < prefix.Bits() {
				return nil, errdefs.Configuration(field+".cidr", "subnet range %s is outside network range %s", s.CIDR, nb.CIDR)
			}
		}
		switch s.Visibility {
		case ir.VisibilityPublic:
			nb.Public = append(nb.Public, s)
		case ir.VisibilityPrivate:
			nb.Private = append(nb.Private, s)
		default:
			return nil, errdefs.Configuration(field+".visibility", "unknown visibility %q", s.Visibility)
		}
	}

	if len(nb.Public) == 0 {
		return nil, errdefs.Configuration("network.subnets", "no public subnet segment")
	}
	if len(nb.Private) == 0 {
		return nil, errdefs.Configuration("network.subnets", "no private subnet segment")
	}
	return nb, nil
}

// PublicSubnetIDs returns the ids of the public subnets in declaration order.
func (nb *NetworkBoundary) PublicSubnetIDs() []any {
	return subnetIDs(nb.Public)
}

// PrivateSubnetIDs returns the ids of the private subnets in declaration order.
func (nb *NetworkBoundary) PrivateSubnetIDs() []any {
	return subnetIDs(nb.Private)
}

func subnetIDs(subnets []ir.Subnet) []any {
	ids := make([]any, 0, len(subnets))
	for _, s := range subnets {
		ids = append(ids, s.ID)
	}
	return ids
}
