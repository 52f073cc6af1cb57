package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	acmtypes "github.com/aws/aws-sdk-go-v2/service/acm/types"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/aws/smithy-go"
	"github.com/picklr-io/webstack/internal/ir"
	pb "github.com/picklr-io/webstack/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupportsEveryStackType(t *testing.T) {
	for _, typ := range []string{
		ir.TypeSecurityGroup, ir.TypeInstance, ir.TypeBucket, ir.TypeSecret,
		ir.TypeRole, ir.TypeInstanceProfile, ir.TypeDBSubnetGroup, ir.TypeDBInstance,
		ir.TypeLoadBalancer, ir.TypeTargetGroup, ir.TypeTargetAttachment, ir.TypeListener,
	} {
		assert.True(t, Supports(typ), typ)
	}
	assert.False(t, Supports("aws:Lambda.Function"))
}

func TestApplyRejectsUnknownType(t *testing.T) {
	p := New()
	_, err := p.Apply(context.Background(), &pb.ApplyRequest{Type: "aws:Lambda.Function", Name: "fn"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported resource type")
}

func TestApplyRequiresConfigure(t *testing.T) {
	p := New()
	_, err := p.Apply(context.Background(), &pb.ApplyRequest{Type: ir.TypeBucket, Name: "b", DesiredConfigJSON: []byte(`{}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestRetryWithBackoff(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	throttled := &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), policy, func() error {
			calls++
			if calls < 3 {
				return throttled
			}
			return nil
		}, IsTransientError)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), policy, func() error {
			calls++
			return &smithy.GenericAPIError{Code: "AccessDenied"}
		}, IsTransientError)
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(context.Background(), policy, func() error {
			calls++
			return throttled
		}, IsTransientError)
		require.Error(t, err)
		assert.Equal(t, 4, calls)
		assert.Contains(t, err.Error(), "max retries (3) exceeded")
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := &RetryPolicy{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}
		err := RetryWithBackoff(ctx, slow, func() error { return throttled }, func(error) bool { return true })
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{&smithy.GenericAPIError{Code: "Throttling"}, true},
		{&smithy.GenericAPIError{Code: "RequestLimitExceeded"}, true},
		{fmt.Errorf("wrapped: %w", &smithy.GenericAPIError{Code: "ServiceUnavailable"}), true},
		{&smithy.GenericAPIError{Code: "InvalidParameterValue"}, false},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("bucket already exists"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsTransientError(tt.err), "%v", tt.err)
	}
}

func TestIsPropagationError(t *testing.T) {
	assert.True(t, isPropagationError(&smithy.GenericAPIError{
		Code:    "InvalidParameterValue",
		Message: "Value (hello-web) for parameter iamInstanceProfile.name is invalid. Invalid IAM Instance Profile name",
	}))
	assert.False(t, isPropagationError(&smithy.GenericAPIError{Code: "InvalidParameterValue", Message: "bad instance type"}))
	assert.True(t, isPropagationError(&smithy.GenericAPIError{Code: "Throttling"}))
}

func TestCalculateBackoffBounded(t *testing.T) {
	for attempt := 0; attempt < 10; attempt++ {
		d := calculateBackoff(attempt, time.Second, 5*time.Second)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 5*time.Second)
	}
}

func TestNetworkFromDescription(t *testing.T) {
	vpc := ec2types.Vpc{VpcId: strPtr("vpc-1"), CidrBlock: strPtr("10.0.0.0/16")}
	subnets := []ec2types.Subnet{
		{
			SubnetId:            strPtr("subnet-b"),
			CidrBlock:           strPtr("10.0.1.0/24"),
			AvailabilityZone:    strPtr("us-east-1a"),
			MapPublicIpOnLaunch: boolPtr(false),
			Tags:                []ec2types.Tag{{Key: strPtr("Name"), Value: strPtr("private-a")}},
		},
		{
			SubnetId:            strPtr("subnet-a"),
			CidrBlock:           strPtr("10.0.0.0/24"),
			AvailabilityZone:    strPtr("us-east-1a"),
			MapPublicIpOnLaunch: boolPtr(true),
		},
		{
			SubnetId:            strPtr("subnet-c"),
			CidrBlock:           strPtr("10.0.2.0/24"),
			MapPublicIpOnLaunch: boolPtr(false),
			Tags:                []ec2types.Tag{{Key: strPtr(VisibilityTag), Value: strPtr("public")}},
		},
	}

	h := networkFromDescription(vpc, subnets)
	assert.Equal(t, "vpc-1", h.ID)
	assert.Equal(t, "10.0.0.0/16", h.CIDR)
	require.Len(t, h.Subnets, 3)
	assert.Equal(t, "subnet-a", h.Subnets[0].ID)
	assert.Equal(t, ir.VisibilityPublic, h.Subnets[0].Visibility)
	assert.Equal(t, ir.VisibilityPrivate, h.Subnets[1].Visibility)
	assert.Equal(t, "private-a", h.Subnets[1].Name)
	assert.Equal(t, ir.VisibilityPublic, h.Subnets[2].Visibility)
}

func TestToPermissions(t *testing.T) {
	perms := toPermissions([]SecurityRule{
		{Protocol: "tcp", FromPort: 443, ToPort: 443, CIDR: "0.0.0.0/0", Description: "public listener"},
		{Protocol: "tcp", FromPort: 8080, ToPort: 8080, SourceGroupID: "sg-edge"},
		{Protocol: "-1", FromPort: -1, ToPort: -1, CIDR: "::/0"},
	})
	require.Len(t, perms, 3)

	assert.Equal(t, int32(443), *perms[0].FromPort)
	assert.Equal(t, "0.0.0.0/0", *perms[0].IpRanges[0].CidrIp)
	assert.Equal(t, "public listener", *perms[0].IpRanges[0].Description)

	assert.Equal(t, "sg-edge", *perms[1].UserIdGroupPairs[0].GroupId)
	assert.Empty(t, perms[1].IpRanges)
	assert.Nil(t, perms[1].UserIdGroupPairs[0].Description)

	assert.Nil(t, perms[2].FromPort)
	assert.Equal(t, "::/0", *perms[2].Ipv6Ranges[0].CidrIpv6)
}

func TestPolicyRepositories(t *testing.T) {
	doc := PolicyDocument{Statement: []PolicyStatement{
		{Action: []string{"ecr:GetAuthorizationToken"}, Resource: []string{"*"}},
		{Action: []string{"ecr:BatchGetImage"}, Resource: []string{
			"arn:aws:ecr:us-east-1:123456789012:repository/web",
			"arn:aws:ecr:us-east-1:123456789012:repository/web",
			"arn:aws:ecr:us-east-1:123456789012:repository/team/api",
		}},
		{Action: []string{"s3:GetObject"}, Resource: []string{"arn:aws:s3:::assets/*"}},
	}}

	repos := policyRepositories(doc)
	require.Len(t, repos, 2)
	assert.Equal(t, repository{region: "us-east-1", registry: "123456789012", name: "team/api"}, repos[0])
	assert.Equal(t, "web", repos[1].name)
}

func TestSecretARNPattern(t *testing.T) {
	assert.Equal(t,
		"arn:aws:secretsmanager:us-east-1:123456789012:secret:pgsql_secret-*",
		secretARNPattern("arn:aws:secretsmanager:us-east-1:123456789012:secret:pgsql_secret-AbCdEf"))
	assert.Equal(t,
		"arn:aws:secretsmanager:us-east-1:123456789012:secret:db-admin-XyZ123-*",
		secretARNPattern("arn:aws:secretsmanager:us-east-1:123456789012:secret:db-admin-XyZ123-a1B2c3"))
}

func TestDBInstanceState(t *testing.T) {
	db := rdstypes.DBInstance{
		DBInstanceIdentifier: strPtr("hello-db"),
		DBInstanceArn:        strPtr("arn:aws:rds:us-east-1:123456789012:db:hello-db"),
		DbiResourceId:        strPtr("db-ABCDEFGHIJ"),
		Endpoint: &rdstypes.Endpoint{
			Address: strPtr("hello-db.abc.us-east-1.rds.amazonaws.com"),
			Port:    int32Ptr(5432),
		},
	}

	s := dbInstanceState(db, "dbadmin")
	assert.Equal(t, "hello-db", s.Identifier)
	assert.Equal(t, 5432, s.Port)
	assert.Equal(t, "hello-db.abc.us-east-1.rds.amazonaws.com", s.Endpoint)
	assert.Equal(t, "arn:aws:rds-db:us-east-1:123456789012:dbuser:db-ABCDEFGHIJ/dbadmin", s.ConnectARN)

	assert.Empty(t, connectARN("not-an-arn", "db-X", "u"))
}

func TestRunInstancesInput(t *testing.T) {
	input := runInstancesInput(&InstanceConfig{
		Name:                     "hello-web",
		InstanceType:             "t3.small",
		SubnetID:                 "subnet-a",
		AssociatePublicIPAddress: true,
		SecurityGroupIDs:         []string{"sg-compute"},
		IAMInstanceProfile:       "hello-web",
		UserData:                 "IyEvYmluL2Jhc2g=",
		Tags:                     map[string]string{"Name": "hello-web", "App": "hello"},
	}, "ami-123")

	assert.Equal(t, "ami-123", *input.ImageId)
	assert.Equal(t, ec2types.InstanceType("t3.small"), input.InstanceType)
	require.Len(t, input.NetworkInterfaces, 1)
	assert.Equal(t, "subnet-a", *input.NetworkInterfaces[0].SubnetId)
	assert.True(t, *input.NetworkInterfaces[0].AssociatePublicIpAddress)
	assert.Equal(t, []string{"sg-compute"}, input.NetworkInterfaces[0].Groups)
	assert.Equal(t, "hello-web", *input.IamInstanceProfile.Name)
	assert.Equal(t, ec2types.HttpTokensStateRequired, input.MetadataOptions.HttpTokens)
	require.Len(t, input.TagSpecifications, 1)
	assert.Equal(t, "App", *input.TagSpecifications[0].Tags[0].Key)
}

func TestListenerInput(t *testing.T) {
	plain := listenerInput(&ListenerConfig{
		LoadBalancerARN: "lb", Port: 80, Protocol: "HTTP", DefaultTargetGroupARN: "tg",
		SSLPolicy: "ignored",
	}, "")
	assert.Nil(t, plain.SslPolicy)
	assert.Empty(t, plain.Certificates)
	assert.Equal(t, "tg", *plain.DefaultActions[0].TargetGroupArn)

	tls := listenerInput(&ListenerConfig{
		LoadBalancerARN: "lb", Port: 443, Protocol: "HTTPS", DefaultTargetGroupARN: "tg",
		SSLPolicy: "ELBSecurityPolicy-TLS13-1-2-2021-06",
	}, "arn:cert")
	assert.Equal(t, "ELBSecurityPolicy-TLS13-1-2-2021-06", *tls.SslPolicy)
	require.Len(t, tls.Certificates, 1)
	assert.Equal(t, "arn:cert", *tls.Certificates[0].CertificateArn)
}

func TestMatchCertificate(t *testing.T) {
	summaries := []acmtypes.CertificateSummary{
		{DomainName: strPtr("*.example.com"), CertificateArn: strPtr("arn:wild")},
		{DomainName: strPtr("other.org"), CertificateArn: strPtr("arn:other"),
			SubjectAlternativeNameSummaries: []string{"app.example.com"}},
	}

	assert.Equal(t, "arn:other", matchCertificate(summaries, "app.example.com"))
	assert.Equal(t, "arn:wild", matchCertificate(summaries, "www.example.com."))
	assert.Empty(t, matchCertificate(summaries, "example.net"))
}

func TestDecodeAuthorizationToken(t *testing.T) {
	token := base64.StdEncoding.EncodeToString([]byte("AWS:s3cr3t"))
	creds, err := decodeAuthorizationToken(token, "https://123456789012.dkr.ecr.us-east-1.amazonaws.com")
	require.NoError(t, err)
	assert.Equal(t, "AWS", creds.Username)
	assert.Equal(t, "s3cr3t", creds.Password)
	assert.Equal(t, "123456789012.dkr.ecr.us-east-1.amazonaws.com", creds.ServerAddress)

	_, err = decodeAuthorizationToken("%%%", "")
	assert.Error(t, err)
	_, err = decodeAuthorizationToken(base64.StdEncoding.EncodeToString([]byte("nocolon")), "")
	assert.Error(t, err)
}
