package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/picklr-io/webstack/internal/logging"
)

// DefaultAMIParameter resolves the current Amazon Linux image.
const DefaultAMIParameter = "/aws/service/ami-amazon-linux-latest/al2023-ami-kernel-default-x86_64"

type InstanceConfig struct {
	Name                     string            `json:"name"`
	InstanceType             string            `json:"instanceType"`
	AmiID                    string            `json:"amiId,omitempty"`
	SubnetID                 string            `json:"subnetId"`
	AssociatePublicIPAddress bool              `json:"associatePublicIpAddress"`
	SecurityGroupIDs         []string          `json:"securityGroupIds"`
	IAMInstanceProfile       string            `json:"iamInstanceProfile"`
	UserData                 string            `json:"userData"`
	Tags                     map[string]string `json:"tags"`
}

type InstanceState struct {
	ID        string `json:"id"`
	AmiID     string `json:"amiId"`
	PrivateIP string `json:"privateIp"`
	PublicIP  string `json:"publicIp,omitempty"`
}

const instanceTimeout = 10 * time.Minute

func (p *Provider) applyInstance(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[InstanceConfig](desiredJSON, "instance")
	if err != nil {
		return nil, err
	}

	amiID := desired.AmiID
	if amiID == "" {
		amiID, err = p.latestAMI(ctx)
		if err != nil {
			return nil, err
		}
	}

	input := runInstancesInput(desired, amiID)

	var resp *ec2.RunInstancesOutput
	err = RetryWithBackoff(ctx, p.retry, func() error {
		var runErr error
		resp, runErr = p.ec2Client.RunInstances(ctx, input)
		return runErr
	}, isPropagationError)
	if err != nil {
		return nil, fmt.Errorf("failed to run instance: %w", err)
	}
	instanceID := *resp.Instances[0].InstanceId

	logging.Info("waiting for instance to run", "id", instanceID)
	waiter := ec2.NewInstanceRunningWaiter(p.ec2Client)
	described, err := waiter.WaitForOutput(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	}, instanceTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for instance %s: %w", instanceID, err)
	}

	state := InstanceState{ID: instanceID, AmiID: amiID}
	for _, r := range described.Reservations {
		for _, inst := range r.Instances {
			if deref(inst.InstanceId) != instanceID {
				continue
			}
			state.PrivateIP = deref(inst.PrivateIpAddress)
			state.PublicIP = deref(inst.PublicIpAddress)
		}
	}
	return state, nil
}

func (p *Provider) deleteInstance(ctx context.Context, currentJSON []byte) error {
	current, err := decode[InstanceState](currentJSON, "instance state")
	if err != nil {
		return err
	}
	if current.ID == "" {
		return nil
	}

	_, err = p.ec2Client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{current.ID},
	})
	if err != nil {
		if errorCode(err) == "InvalidInstanceID.NotFound" {
			return nil
		}
		return fmt.Errorf("failed to terminate instance %s: %w", current.ID, err)
	}

	waiter := ec2.NewInstanceTerminatedWaiter(p.ec2Client)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: []string{current.ID}}, instanceTimeout); err != nil {
		return fmt.Errorf("failed waiting for instance %s termination: %w", current.ID, err)
	}
	return nil
}

func (p *Provider) latestAMI(ctx context.Context) (string, error) {
	resp, err := p.ssmClient.GetParameter(ctx, &ssm.GetParameterInput{Name: strPtr(DefaultAMIParameter)})
	if err != nil {
		return "", fmt.Errorf("failed to resolve default image: %w", err)
	}
	if resp.Parameter == nil || deref(resp.Parameter.Value) == "" {
		return "", fmt.Errorf("parameter %s has no value", DefaultAMIParameter)
	}
	return *resp.Parameter.Value, nil
}

func runInstancesInput(desired *InstanceConfig, amiID string) *ec2.RunInstancesInput {
	keys := make([]string, 0, len(desired.Tags))
	for k := range desired.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var tags []types.Tag
	for _, k := range keys {
		tags = append(tags, types.Tag{Key: strPtr(k), Value: strPtr(desired.Tags[k])})
	}

	input := &ec2.RunInstancesInput{
		ImageId:      &amiID,
		InstanceType: types.InstanceType(desired.InstanceType),
		MinCount:     int32Ptr(1),
		MaxCount:     int32Ptr(1),
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{{
			DeviceIndex:              int32Ptr(0),
			SubnetId:                 &desired.SubnetID,
			Groups:                   desired.SecurityGroupIDs,
			AssociatePublicIpAddress: boolPtr(desired.AssociatePublicIPAddress),
		}},
		MetadataOptions: &types.InstanceMetadataOptionsRequest{
			HttpTokens:   types.HttpTokensStateRequired,
			HttpEndpoint: types.InstanceMetadataEndpointStateEnabled,
		},
	}
	if desired.IAMInstanceProfile != "" {
		input.IamInstanceProfile = &types.IamInstanceProfileSpecification{Name: &desired.IAMInstanceProfile}
	}
	if desired.UserData != "" {
		input.UserData = &desired.UserData
	}
	if len(tags) > 0 {
		input.TagSpecifications = []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         tags,
		}}
	}
	return input
}
