package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/acm"
	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"
	"github.com/picklr-io/webstack/internal/logging"
)

type LoadBalancerConfig struct {
	Name             string   `json:"name"`
	Scheme           string   `json:"scheme"`
	Type             string   `json:"type"`
	SubnetIDs        []string `json:"subnetIds"`
	SecurityGroupIDs []string `json:"securityGroupIds"`
}

type LoadBalancerState struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
	DNS  string `json:"dns"`
}

type TargetGroupConfig struct {
	Name               string `json:"name"`
	Protocol           string `json:"protocol"`
	Port               int    `json:"port"`
	VpcID              string `json:"vpcId"`
	TargetType         string `json:"targetType"`
	HealthCheckPath    string `json:"healthCheckPath"`
	HealthCheckMatcher string `json:"healthCheckMatcher"`
}

type TargetGroupState struct {
	Name string `json:"name"`
	ARN  string `json:"arn"`
}

type TargetAttachmentConfig struct {
	TargetGroupARN string `json:"targetGroupArn"`
	TargetID       string `json:"targetId"`
	Port           int    `json:"port"`
}

type TargetAttachmentState struct {
	TargetGroupARN string `json:"targetGroupArn"`
	TargetID       string `json:"targetId"`
	Port           int    `json:"port"`
}

type ListenerConfig struct {
	LoadBalancerARN       string `json:"loadBalancerArn"`
	Port                  int    `json:"port"`
	Protocol              string `json:"protocol"`
	DefaultTargetGroupARN string `json:"defaultTargetGroupArn"`
	SSLPolicy             string `json:"sslPolicy,omitempty"`
	CertificateARN        string `json:"certificateArn,omitempty"`
	CertificateDomain     string `json:"certificateDomain,omitempty"`
}

type ListenerState struct {
	ARN            string `json:"arn"`
	CertificateARN string `json:"certificateArn,omitempty"`
}

const loadBalancerTimeout = 10 * time.Minute

func (p *Provider) applyLoadBalancer(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[LoadBalancerConfig](desiredJSON, "load balancer")
	if err != nil {
		return nil, err
	}

	resp, err := p.elbv2Client.CreateLoadBalancer(ctx, &elasticloadbalancingv2.CreateLoadBalancerInput{
		Name:           &desired.Name,
		Subnets:        desired.SubnetIDs,
		SecurityGroups: desired.SecurityGroupIDs,
		Scheme:         types.LoadBalancerSchemeEnum(desired.Scheme),
		Type:           types.LoadBalancerTypeEnum(desired.Type),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create load balancer: %w", err)
	}
	lb := resp.LoadBalancers[0]

	logging.Info("waiting for load balancer to become available", "name", desired.Name)
	waiter := elasticloadbalancingv2.NewLoadBalancerAvailableWaiter(p.elbv2Client)
	if err := waiter.Wait(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{*lb.LoadBalancerArn},
	}, loadBalancerTimeout); err != nil {
		return nil, fmt.Errorf("failed waiting for load balancer %s: %w", desired.Name, err)
	}

	return LoadBalancerState{
		Name: *lb.LoadBalancerName,
		ARN:  *lb.LoadBalancerArn,
		DNS:  *lb.DNSName,
	}, nil
}

func (p *Provider) deleteLoadBalancer(ctx context.Context, currentJSON []byte) error {
	current, err := decode[LoadBalancerState](currentJSON, "load balancer state")
	if err != nil {
		return err
	}
	if current.ARN == "" {
		return nil
	}

	_, err = p.elbv2Client.DeleteLoadBalancer(ctx, &elasticloadbalancingv2.DeleteLoadBalancerInput{
		LoadBalancerArn: &current.ARN,
	})
	var nf *types.LoadBalancerNotFoundException
	if errors.As(err, &nf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete load balancer: %w", err)
	}

	waiter := elasticloadbalancingv2.NewLoadBalancersDeletedWaiter(p.elbv2Client)
	if err := waiter.Wait(ctx, &elasticloadbalancingv2.DescribeLoadBalancersInput{
		LoadBalancerArns: []string{current.ARN},
	}, loadBalancerTimeout); err != nil {
		return fmt.Errorf("failed waiting for load balancer %s deletion: %w", current.Name, err)
	}
	return nil
}

func (p *Provider) applyTargetGroup(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[TargetGroupConfig](desiredJSON, "target group")
	if err != nil {
		return nil, err
	}

	input := &elasticloadbalancingv2.CreateTargetGroupInput{
		Name:       &desired.Name,
		Port:       int32Ptr(int32(desired.Port)),
		Protocol:   types.ProtocolEnum(desired.Protocol),
		VpcId:      &desired.VpcID,
		TargetType: types.TargetTypeEnum(desired.TargetType),
	}
	if desired.HealthCheckPath != "" {
		input.HealthCheckPath = &desired.HealthCheckPath
	}
	if desired.HealthCheckMatcher != "" {
		input.Matcher = &types.Matcher{HttpCode: &desired.HealthCheckMatcher}
	}

	resp, err := p.elbv2Client.CreateTargetGroup(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create target group: %w", err)
	}

	return TargetGroupState{
		Name: *resp.TargetGroups[0].TargetGroupName,
		ARN:  *resp.TargetGroups[0].TargetGroupArn,
	}, nil
}

func (p *Provider) deleteTargetGroup(ctx context.Context, currentJSON []byte) error {
	current, err := decode[TargetGroupState](currentJSON, "target group state")
	if err != nil {
		return err
	}
	if current.ARN == "" {
		return nil
	}

	// A target group stays in use until its listener is gone.
	return RetryWithBackoff(ctx, p.retry, func() error {
		_, err := p.elbv2Client.DeleteTargetGroup(ctx, &elasticloadbalancingv2.DeleteTargetGroupInput{
			TargetGroupArn: &current.ARN,
		})
		if err != nil {
			return fmt.Errorf("failed to delete target group: %w", err)
		}
		return nil
	}, func(err error) bool {
		return IsTransientError(err) || errorCode(err) == "ResourceInUse"
	})
}

func (p *Provider) applyTargetAttachment(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[TargetAttachmentConfig](desiredJSON, "target attachment")
	if err != nil {
		return nil, err
	}

	_, err = p.elbv2Client.RegisterTargets(ctx, &elasticloadbalancingv2.RegisterTargetsInput{
		TargetGroupArn: &desired.TargetGroupARN,
		Targets:        []types.TargetDescription{targetDescription(desired.TargetID, desired.Port)},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register target %s: %w", desired.TargetID, err)
	}

	return TargetAttachmentState{
		TargetGroupARN: desired.TargetGroupARN,
		TargetID:       desired.TargetID,
		Port:           desired.Port,
	}, nil
}

func (p *Provider) deleteTargetAttachment(ctx context.Context, currentJSON []byte) error {
	current, err := decode[TargetAttachmentState](currentJSON, "target attachment state")
	if err != nil {
		return err
	}
	if current.TargetGroupARN == "" || current.TargetID == "" {
		return nil
	}

	_, err = p.elbv2Client.DeregisterTargets(ctx, &elasticloadbalancingv2.DeregisterTargetsInput{
		TargetGroupArn: &current.TargetGroupARN,
		Targets:        []types.TargetDescription{targetDescription(current.TargetID, current.Port)},
	})
	var nf *types.TargetGroupNotFoundException
	if err != nil && !errors.As(err, &nf) {
		return fmt.Errorf("failed to deregister target %s: %w", current.TargetID, err)
	}
	return nil
}

func (p *Provider) applyListener(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[ListenerConfig](desiredJSON, "listener")
	if err != nil {
		return nil, err
	}

	certARN := desired.CertificateARN
	if certARN == "" && desired.CertificateDomain != "" {
		certARN, err = p.findCertificate(ctx, desired.CertificateDomain)
		if err != nil {
			return nil, err
		}
	}

	input := listenerInput(desired, certARN)
	resp, err := p.elbv2Client.CreateListener(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	return ListenerState{ARN: *resp.Listeners[0].ListenerArn, CertificateARN: certARN}, nil
}

func (p *Provider) deleteListener(ctx context.Context, currentJSON []byte) error {
	current, err := decode[ListenerState](currentJSON, "listener state")
	if err != nil {
		return err
	}
	if current.ARN == "" {
		return nil
	}

	_, err = p.elbv2Client.DeleteListener(ctx, &elasticloadbalancingv2.DeleteListenerInput{
		ListenerArn: &current.ARN,
	})
	var nf *types.ListenerNotFoundException
	if err != nil && !errors.As(err, &nf) {
		return fmt.Errorf("failed to delete listener: %w", err)
	}
	return nil
}

// findCertificate returns the issued certificate covering domain.
func (p *Provider) findCertificate(ctx context.Context, domain string) (string, error) {
	var summaries []acmtypes.CertificateSummary
	paginator := acm.NewListCertificatesPaginator(p.acmClient, &acm.ListCertificatesInput{
		CertificateStatuses: []acmtypes.CertificateStatus{acmtypes.CertificateStatusIssued},
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to list certificates: %w", err)
		}
		summaries = append(summaries, page.CertificateSummaryList...)
	}

	if arn := matchCertificate(summaries, domain); arn != "" {
		return arn, nil
	}
	return "", fmt.Errorf("no issued certificate found for %s", domain)
}

// matchCertificate prefers an exact domain match over a wildcard one.
func matchCertificate(summaries []acmtypes.CertificateSummary, domain string) string {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	wildcard := ""
	if i := strings.Index(domain, "."); i > 0 {
		wildcard = "*" + domain[i:]
	}

	var fallback string
	for _, s := range summaries {
		names := append([]string{deref(s.DomainName)}, s.SubjectAlternativeNameSummaries...)
		for _, n := range names {
			n = strings.ToLower(n)
			switch {
			case n == domain:
				return deref(s.CertificateArn)
			case n == wildcard && fallback == "":
				fallback = deref(s.CertificateArn)
			}
		}
	}
	return fallback
}

func listenerInput(desired *ListenerConfig, certARN string) *elasticloadbalancingv2.CreateListenerInput {
	input := &elasticloadbalancingv2.CreateListenerInput{
		LoadBalancerArn: &desired.LoadBalancerARN,
		Port:            int32Ptr(int32(desired.Port)),
		Protocol:        types.ProtocolEnum(desired.Protocol),
		DefaultActions: []types.Action{{
			Type:           types.ActionTypeEnumForward,
			TargetGroupArn: &desired.DefaultTargetGroupARN,
		}},
	}
	if desired.Protocol == string(types.ProtocolEnumHttps) {
		if desired.SSLPolicy != "" {
			input.SslPolicy = &desired.SSLPolicy
		}
		if certARN != "" {
			input.Certificates = []types.Certificate{{CertificateArn: strPtr(certARN)}}
		}
	}
	return input
}

func targetDescription(id string, port int) types.TargetDescription {
	t := types.TargetDescription{Id: strPtr(id)}
	if port > 0 {
		t.Port = int32Ptr(int32(port))
	}
	return t
}
