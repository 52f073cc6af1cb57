package stack

import (
	"fmt"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

// TLSPolicy is the security policy attached to encrypted listeners.
const TLSPolicy = "ELBSecurityPolicy-TLS13-1-2-2021-06"

type EdgeSpec struct {
	ListenerPort   int
	TargetPort     int
	CertificateArn string
	DomainName     string
}

// Edge is the internet-facing load balancer with its listener and targets.
type Edge struct {
	LoadBalancer *ir.Resource
	TargetGroup  *ir.Resource
	Attachments  []*ir.Resource
	Listener     *ir.Resource
}

// ProvisionEdge declares the load balancer in the public subnets, bound to the
// edge perimeter, and registers every target on the target port. Targets must
// come from ProvisionCompute.
func ProvisionEdge(deployment string, nb *NetworkBoundary, perimeter *Perimeter, targets []*Instance, spec EdgeSpec) (*Edge, error) {
	if len(targets) == 0 {
		return nil, errdefs.Dependency("edge", "compute instance", "no target instance provisioned")
	}
	for i, t := range targets {
		if t == nil || !t.declared {
			return nil, errdefs.Dependency("edge", fmt.Sprintf("target[%d]", i), "target was not provisioned by the compute provisioner")
		}
	}
	if nb == nil {
		return nil, errdefs.Dependency("edge", "network", "network boundary not resolved")
	}
	if perimeter == nil || perimeter.resource == nil {
		return nil, errdefs.Dependency("edge", "edge perimeter", "perimeter not provisioned")
	}
	if perimeter.Role != RoleEdge {
		return nil, errdefs.Configuration("edge.perimeter", "got %s perimeter, need edge", perimeter.Role)
	}
	if !perimeter.HasIngress(spec.ListenerPort) {
		return nil, errdefs.Configuration("edge.listenerPort", "edge perimeter admits no traffic on port %d", spec.ListenerPort)
	}
	if spec.TargetPort == 0 {
		spec.TargetPort = HostPort
	}

	lb := &ir.Resource{
		Type:     ir.TypeLoadBalancer,
		Name:     deployment,
		Provider: "aws",
		Properties: map[string]any{
			"name":             deployment,
			"scheme":           "internet-facing",
			"type":             "application",
			"subnetIds":        nb.PublicSubnetIDs(),
			"securityGroupIds": []any{perimeter.GroupID()},
		},
	}
	tg := &ir.Resource{
		Type:     ir.TypeTargetGroup,
		Name:     deployment + "-tg",
		Provider: "aws",
		Properties: map[string]any{
			"name":               deployment + "-tg",
			"protocol":           "HTTP",
			"port":               spec.TargetPort,
			"vpcId":              nb.ID,
			"targetType":         "instance",
			"healthCheckPath":    "/",
			"healthCheckMatcher": "200",
		},
	}

	e := &Edge{LoadBalancer: lb, TargetGroup: tg}
	for i, t := range targets {
		e.Attachments = append(e.Attachments, &ir.Resource{
			Type:     ir.TypeTargetAttachment,
			Name:     fmt.Sprintf("%s-target-%d", deployment, i),
			Provider: "aws",
			Properties: map[string]any{
				"targetGroupArn": tg.Ref("arn"),
				"targetId":       t.ID(),
				"port":           spec.TargetPort,
			},
		})
	}

	// The listener is always encrypted, whatever the port.
	if spec.CertificateArn == "" && spec.DomainName == "" {
		return nil, errdefs.Configuration("edge.certificateArn", "an encrypted listener needs a certificate")
	}
	listener := map[string]any{
		"loadBalancerArn":       lb.Ref("arn"),
		"port":                  spec.ListenerPort,
		"protocol":              "HTTPS",
		"sslPolicy":             TLSPolicy,
		"defaultTargetGroupArn": tg.Ref("arn"),
	}
	if spec.CertificateArn != "" {
		listener["certificateArn"] = spec.CertificateArn
	} else {
		listener["certificateDomain"] = spec.DomainName
	}
	var attachAddrs []string
	for _, a := range e.Attachments {
		attachAddrs = append(attachAddrs, a.Addr())
	}
	e.Listener = &ir.Resource{
		Type:     ir.TypeListener,
		Name:     deployment,
		Provider: "aws",
		// Traffic is only accepted once targets are registered.
		DependsOn:  attachAddrs,
		Properties: listener,
	}
	return e, nil
}

// DNSName is a reference to the load balancer DNS name.
func (e *Edge) DNSName() string { return e.LoadBalancer.Ref("dns") }

// Resources returns the load balancer, target group, attachments and listener.
func (e *Edge) Resources() []*ir.Resource {
	out := []*ir.Resource{e.LoadBalancer, e.TargetGroup}
	out = append(out, e.Attachments...)
	return append(out, e.Listener)
}
