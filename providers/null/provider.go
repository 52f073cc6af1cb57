// Package null implements an in-memory backend. Every resource materializes
// instantly with deterministic identifiers, which makes it suitable for dry
// runs and tests.
package null

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/picklr-io/webstack/internal/ir"
	pb "github.com/picklr-io/webstack/pkg/provider"
)

const account = "000000000000"

type Provider struct {
	mu      sync.Mutex
	region  string
	applied []string
	deleted []string

	// FailOn makes Apply fail for a resource type or address.
	FailOn map[string]error
}

func New() *Provider {
	return &Provider{region: "us-east-1", FailOn: map[string]error{}}
}

func (p *Provider) Configure(ctx context.Context, req *pb.ConfigureRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req != nil && req.Region != "" {
		p.region = req.Region
	}
	return nil
}

func (p *Provider) Apply(ctx context.Context, req *pb.ApplyRequest) (*pb.ApplyResponse, error) {
	addr := ir.Addr(req.Type, req.Name)

	p.mu.Lock()
	if err, ok := p.FailOn[addr]; ok {
		p.mu.Unlock()
		return nil, err
	}
	if err, ok := p.FailOn[req.Type]; ok {
		p.mu.Unlock()
		return nil, err
	}
	region := p.region
	p.mu.Unlock()

	var desired map[string]any
	if err := json.Unmarshal(req.DesiredConfigJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to unmarshal desired config: %w", err)
	}

	for k, v := range desired {
		if s, ok := v.(string); ok && ir.IsRef(s) {
			return nil, fmt.Errorf("unresolved reference in %s: %s", k, s)
		}
	}

	outputs, err := outputsFor(req.Type, req.Name, region, desired)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.applied = append(p.applied, addr)
	p.mu.Unlock()

	stateJSON, _ := json.Marshal(outputs)
	return &pb.ApplyResponse{NewStateJSON: stateJSON}, nil
}

func (p *Provider) Delete(ctx context.Context, req *pb.DeleteRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, ir.Addr(req.Type, req.Name))
	return nil
}

// Applied returns the addresses materialized so far, in completion order.
func (p *Provider) Applied() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.applied...)
}

// Deleted returns the addresses deleted so far, in order.
func (p *Provider) Deleted() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.deleted...)
}

func outputsFor(typ, name, region string, desired map[string]any) (map[string]any, error) {
	str := func(key string) string {
		if s, ok := desired[key].(string); ok && s != "" {
			return s
		}
		return name
	}
	switch typ {
	case ir.TypeSecurityGroup:
		return map[string]any{"id": "sg-" + name, "name": str("name")}, nil
	case ir.TypeInstance:
		return map[string]any{"id": "i-" + name, "privateIp": "10.0.0.10"}, nil
	case ir.TypeBucket:
		arn := "arn:aws:s3:::" + str("name")
		return map[string]any{"name": str("name"), "arn": arn, "objectsArn": arn + "/*"}, nil
	case ir.TypeSecret:
		prefix := fmt.Sprintf("arn:aws:secretsmanager:%s:%s:secret:%s", region, account, str("name"))
		return map[string]any{"name": str("name"), "arn": prefix + "-AbCdEf", "arnPattern": prefix + "-*"}, nil
	case ir.TypeRole:
		return map[string]any{"name": str("name"), "arn": fmt.Sprintf("arn:aws:iam::%s:role/%s", account, str("name"))}, nil
	case ir.TypeInstanceProfile:
		return map[string]any{"name": str("name"), "arn": fmt.Sprintf("arn:aws:iam::%s:instance-profile/%s", account, str("name"))}, nil
	case ir.TypeDBSubnetGroup:
		return map[string]any{"name": str("name")}, nil
	case ir.TypeDBInstance:
		id := str("identifier")
		resourceID := "db-" + strings.ToUpper(id)
		return map[string]any{
			"identifier": id,
			"arn":        fmt.Sprintf("arn:aws:rds:%s:%s:db:%s", region, account, id),
			"endpoint":   fmt.Sprintf("%s.abc123.%s.rds.amazonaws.com", id, region),
			"port":       desired["port"],
			"resourceId": resourceID,
			"connectArn": fmt.Sprintf("arn:aws:rds-db:%s:%s:dbuser:%s/%s", region, account, resourceID, str("masterUsername")),
		}, nil
	case ir.TypeLoadBalancer:
		return map[string]any{
			"name": str("name"),
			"arn":  fmt.Sprintf("arn:aws:elasticloadbalancing:%s:%s:loadbalancer/app/%s/0123456789", region, account, str("name")),
			"dns":  fmt.Sprintf("%s-0123456789.%s.elb.amazonaws.com", str("name"), region),
		}, nil
	case ir.TypeTargetGroup:
		return map[string]any{
			"name": str("name"),
			"arn":  fmt.Sprintf("arn:aws:elasticloadbalancing:%s:%s:targetgroup/%s/0123456789", region, account, str("name")),
		}, nil
	case ir.TypeTargetAttachment:
		return map[string]any{"targetGroupArn": desired["targetGroupArn"], "targetId": desired["targetId"]}, nil
	case ir.TypeListener:
		return map[string]any{"arn": fmt.Sprintf("arn:aws:elasticloadbalancing:%s:%s:listener/%s", region, account, name)}, nil
	}

	return nil, fmt.Errorf("unknown resource type: %s", typ)
}
