// Package aws materializes web stack resources with the AWS SDK.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/acm"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/logging"
	pb "github.com/picklr-io/webstack/pkg/provider"
)

const defaultRegion = "us-east-1"

type Provider struct {
	mu     sync.Mutex
	region string

	ec2Client            *ec2.Client
	iamClient            *iam.Client
	rdsClient            *rds.Client
	s3Client             *s3.Client
	secretsmanagerClient *secretsmanager.Client
	elbv2Client          *elasticloadbalancingv2.Client
	ssmClient            *ssm.Client
	acmClient            *acm.Client
	ecrClient            *ecr.Client

	retry *RetryPolicy
}

func New() *Provider {
	return &Provider{region: defaultRegion, retry: DefaultRetryPolicy()}
}

type applyFunc func(p *Provider, ctx context.Context, name string, desired []byte) (any, error)
type deleteFunc func(p *Provider, ctx context.Context, current []byte) error

type handler struct {
	apply  applyFunc
	delete deleteFunc
}

var handlers = map[string]handler{
	ir.TypeSecurityGroup:    {(*Provider).applySecurityGroup, (*Provider).deleteSecurityGroup},
	ir.TypeInstance:         {(*Provider).applyInstance, (*Provider).deleteInstance},
	ir.TypeBucket:           {(*Provider).applyBucket, (*Provider).deleteBucket},
	ir.TypeSecret:           {(*Provider).applySecret, (*Provider).deleteSecret},
	ir.TypeRole:             {(*Provider).applyRole, (*Provider).deleteRole},
	ir.TypeInstanceProfile:  {(*Provider).applyInstanceProfile, (*Provider).deleteInstanceProfile},
	ir.TypeDBSubnetGroup:    {(*Provider).applyDBSubnetGroup, (*Provider).deleteDBSubnetGroup},
	ir.TypeDBInstance:       {(*Provider).applyDBInstance, (*Provider).deleteDBInstance},
	ir.TypeLoadBalancer:     {(*Provider).applyLoadBalancer, (*Provider).deleteLoadBalancer},
	ir.TypeTargetGroup:      {(*Provider).applyTargetGroup, (*Provider).deleteTargetGroup},
	ir.TypeTargetAttachment: {(*Provider).applyTargetAttachment, (*Provider).deleteTargetAttachment},
	ir.TypeListener:         {(*Provider).applyListener, (*Provider).deleteListener},
}

// Supports reports whether the provider can materialize typ.
func Supports(typ string) bool {
	_, ok := handlers[typ]
	return ok
}

// Configure loads the SDK configuration for the requested region and
// profile. Credentials come from the default chain.
func (p *Provider) Configure(ctx context.Context, req *pb.ConfigureRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	region, profile := defaultRegion, ""
	if req != nil {
		if req.Region != "" {
			region = req.Region
		}
		profile = req.Profile
	}
	var opts []func(*config.LoadOptions) error
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	opts = append(opts, config.WithRegion(region))

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load SDK config: %w", err)
	}

	p.region = region
	p.ec2Client = ec2.NewFromConfig(cfg)
	p.iamClient = iam.NewFromConfig(cfg)
	p.rdsClient = rds.NewFromConfig(cfg)
	p.s3Client = s3.NewFromConfig(cfg)
	p.secretsmanagerClient = secretsmanager.NewFromConfig(cfg)
	p.elbv2Client = elasticloadbalancingv2.NewFromConfig(cfg)
	p.ssmClient = ssm.NewFromConfig(cfg)
	p.acmClient = acm.NewFromConfig(cfg)
	p.ecrClient = ecr.NewFromConfig(cfg)

	logging.Debug("aws provider configured", "region", region, "profile", profile)
	return nil
}

func (p *Provider) Apply(ctx context.Context, req *pb.ApplyRequest) (*pb.ApplyResponse, error) {
	h, ok := handlers[req.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported resource type: %s", req.Type)
	}
	if p.ec2Client == nil {
		return nil, fmt.Errorf("provider not configured")
	}

	out, err := h.apply(p, ctx, req.Name, req.DesiredConfigJSON)
	if err != nil {
		return nil, err
	}
	stateJSON, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return &pb.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) Delete(ctx context.Context, req *pb.DeleteRequest) error {
	h, ok := handlers[req.Type]
	if !ok {
		return fmt.Errorf("unsupported resource type: %s", req.Type)
	}
	if p.ec2Client == nil {
		return fmt.Errorf("provider not configured")
	}
	if len(req.CurrentStateJSON) == 0 {
		return nil
	}
	return h.delete(p, ctx, req.CurrentStateJSON)
}

func decode[T any](data []byte, what string) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", what, err)
	}
	return &v, nil
}

func int32Ptr(i int32) *int32 { return &i }

func boolPtr(b bool) *bool { return &b }
