package aws

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/picklr-io/webstack/internal/ir"
)

// VisibilityTag overrides the public/private classification of a subnet.
const VisibilityTag = "webstack:visibility"

// LookupNetwork describes an existing VPC and its subnets as a network
// handle. A subnet is public when tagged so, or when it assigns public
// addresses on launch.
func (p *Provider) LookupNetwork(ctx context.Context, vpcID string) (*ir.NetworkHandle, error) {
	if p.ec2Client == nil {
		return nil, fmt.Errorf("provider not configured")
	}

	vpcs, err := p.ec2Client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if err != nil {
		return nil, fmt.Errorf("failed to describe vpc %s: %w", vpcID, err)
	}
	if len(vpcs.Vpcs) == 0 {
		return nil, fmt.Errorf("vpc %s not found", vpcID)
	}

	var subnets []types.Subnet
	paginator := ec2.NewDescribeSubnetsPaginator(p.ec2Client, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{{Name: strPtr("vpc-id"), Values: []string{vpcID}}},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to describe subnets of %s: %w", vpcID, err)
		}
		subnets = append(subnets, page.Subnets...)
	}

	return networkFromDescription(vpcs.Vpcs[0], subnets), nil
}

func networkFromDescription(vpc types.Vpc, subnets []types.Subnet) *ir.NetworkHandle {
	h := &ir.NetworkHandle{ID: deref(vpc.VpcId), CIDR: deref(vpc.CidrBlock)}
	for _, s := range subnets {
		visibility := ir.VisibilityPrivate
		if s.MapPublicIpOnLaunch != nil && *s.MapPublicIpOnLaunch {
			visibility = ir.VisibilityPublic
		}
		name := ""
		for _, t := range s.Tags {
			switch deref(t.Key) {
			case VisibilityTag:
				if v := deref(t.Value); v == ir.VisibilityPublic || v == ir.VisibilityPrivate {
					visibility = v
				}
			case "Name":
				name = deref(t.Value)
			}
		}
		h.Subnets = append(h.Subnets, ir.Subnet{
			ID:         deref(s.SubnetId),
			Name:       name,
			Visibility: visibility,
			CIDR:       deref(s.CidrBlock),
			Zone:       deref(s.AvailabilityZone),
		})
	}
	sort.Slice(h.Subnets, func(i, j int) bool { return h.Subnets[i].ID < h.Subnets[j].ID })
	return h
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
