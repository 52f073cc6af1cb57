package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/picklr-io/webstack/internal/logging"
)

type SecurityGroupConfig struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	VpcID          string         `json:"vpcId"`
	AllowAllEgress bool           `json:"allowAllEgress"`
	Ingress        []SecurityRule `json:"ingress"`
	Egress         []SecurityRule `json:"egress"`
}

type SecurityRule struct {
	Protocol      string `json:"protocol"`
	FromPort      int    `json:"fromPort"`
	ToPort        int    `json:"toPort"`
	CIDR          string `json:"cidr,omitempty"`
	SourceGroupID string `json:"sourceGroupId,omitempty"`
	Description   string `json:"description"`
}

type SecurityGroupState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Provider) applySecurityGroup(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[SecurityGroupConfig](desiredJSON, "security group")
	if err != nil {
		return nil, err
	}

	resp, err := p.ec2Client.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   &desired.Name,
		Description: &desired.Description,
		VpcId:       &desired.VpcID,
		TagSpecifications: []types.TagSpecification{{
			ResourceType: types.ResourceTypeSecurityGroup,
			Tags:         []types.Tag{{Key: strPtr("Name"), Value: &desired.Name}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create security group: %w", err)
	}
	groupID := *resp.GroupId

	// New groups carry an allow-all egress rule.
	if !desired.AllowAllEgress {
		_, err = p.ec2Client.RevokeSecurityGroupEgress(ctx, &ec2.RevokeSecurityGroupEgressInput{
			GroupId: &groupID,
			IpPermissions: []types.IpPermission{{
				IpProtocol: strPtr("-1"),
				IpRanges:   []types.IpRange{{CidrIp: strPtr("0.0.0.0/0")}},
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to revoke default egress of %s: %w", groupID, err)
		}
	}

	if perms := toPermissions(desired.Ingress); len(perms) > 0 {
		_, err = p.ec2Client.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       &groupID,
			IpPermissions: perms,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to authorize ingress on %s: %w", groupID, err)
		}
	}
	if perms := toPermissions(desired.Egress); len(perms) > 0 {
		_, err = p.ec2Client.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       &groupID,
			IpPermissions: perms,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to authorize egress on %s: %w", groupID, err)
		}
	}

	logging.Debug("security group created", "name", desired.Name, "id", groupID)
	return SecurityGroupState{ID: groupID, Name: desired.Name}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, currentJSON []byte) error {
	current, err := decode[SecurityGroupState](currentJSON, "security group state")
	if err != nil {
		return err
	}
	if current.ID == "" {
		return nil
	}

	// Network interfaces of a terminated instance or load balancer release
	// the group with some delay.
	return RetryWithBackoff(ctx, p.retry, func() error {
		_, err := p.ec2Client.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: &current.ID})
		if err != nil && errorCode(err) == "InvalidGroup.NotFound" {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to delete security group %s: %w", current.ID, err)
		}
		return nil
	}, func(err error) bool {
		return IsTransientError(err) || errorCode(err) == "DependencyViolation"
	})
}

func toPermissions(rules []SecurityRule) []types.IpPermission {
	var perms []types.IpPermission
	for _, r := range rules {
		perm := types.IpPermission{
			IpProtocol: strPtr(r.Protocol),
		}
		if r.Protocol != "-1" {
			perm.FromPort = int32Ptr(int32(r.FromPort))
			perm.ToPort = int32Ptr(int32(r.ToPort))
		}
		var desc *string
		if r.Description != "" {
			desc = strPtr(r.Description)
		}
		switch {
		case r.SourceGroupID != "":
			perm.UserIdGroupPairs = []types.UserIdGroupPair{{GroupId: strPtr(r.SourceGroupID), Description: desc}}
		case isIPv6(r.CIDR):
			perm.Ipv6Ranges = []types.Ipv6Range{{CidrIpv6: strPtr(r.CIDR), Description: desc}}
		default:
			perm.IpRanges = []types.IpRange{{CidrIp: strPtr(r.CIDR), Description: desc}}
		}
		perms = append(perms, perm)
	}
	return perms
}

func isIPv6(cidr string) bool {
	for _, c := range cidr {
		if c == ':' {
			return true
		}
	}
	return false
}
