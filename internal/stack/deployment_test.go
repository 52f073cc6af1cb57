package stack

import (
	"context"
	"strings"
	"testing"

	"github.com/picklr-io/webstack/internal/config"
	"github.com/picklr-io/webstack/internal/engine"
	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/provider"
	"github.com/picklr-io/webstack/providers/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Name = "hello"
	cfg.Environment.Region = "us-east-1"
	cfg.Network = testNetwork()
	cfg.Image = "registry/my-repo:latest"
	cfg.ObjectStore.BucketName = "hello-assets"
	cfg.Edge.ListenerPort = 443
	cfg.Edge.CertificateArn = "arn:aws:acm:us-east-1:123456789012:certificate/abc"
	return cfg
}

func TestBuild_WebStack(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	d, err := Build(cfg)
	require.NoError(t, err)

	instances := d.OfType(ir.TypeInstance)
	require.Len(t, instances, 1)
	assert.Equal(t, "subnet-pub-a", instances[0].Properties["subnetId"])
	assert.Equal(t, "public-a", d.Instance.Subnet.Name)

	dbs := d.OfType(ir.TypeDBInstance)
	require.Len(t, dbs, 1)
	assert.Equal(t, d.Database.SubnetGroup.Ref("name"), dbs[0].Properties["dbSubnetGroupName"])
	assert.Equal(t, []any{"subnet-priv-a"}, d.Database.SubnetGroup.Properties["subnetIds"])
	assert.Equal(t, false, dbs[0].Properties["multiAz"])
	assert.Equal(t, 3, dbs[0].Properties["backupRetentionPeriod"])
	assert.Equal(t, false, dbs[0].Properties["deletionProtection"])

	lbs := d.OfType(ir.TypeLoadBalancer)
	require.Len(t, lbs, 1)
	assert.Equal(t, []any{"subnet-pub-a"}, lbs[0].Properties["subnetIds"])

	listeners := d.OfType(ir.TypeListener)
	require.Len(t, listeners, 1)
	assert.Equal(t, 443, listeners[0].Properties["port"])
	assert.Equal(t, "HTTPS", listeners[0].Properties["protocol"])

	attachments := d.OfType(ir.TypeTargetAttachment)
	require.Len(t, attachments, 1)
	assert.Equal(t, d.Instance.ID(), attachments[0].Properties["targetId"])
	assert.Equal(t, 80, attachments[0].Properties["port"])
	assert.Equal(t, 80, d.Edge.TargetGroup.Properties["port"])

	assert.Equal(t, map[string]any{
		OutputInstanceID:       d.Instance.ID(),
		OutputDatabaseEndpoint: d.Database.Endpoint(),
		OutputLoadBalancerDNS:  d.Edge.DNSName(),
	}, d.Outputs)
}

func TestBuild_MissingPrivateSubnet(t *testing.T) {
	cfg := testConfig()
	cfg.Network.Subnets = cfg.Network.Subnets[:1]

	d, err := Build(cfg)
	assert.Nil(t, d)
	var cerr *errdefs.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "network.subnets", cerr.Field)
}

func TestBuild_RejectsMultiZoneDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.Database.MultiAZ = true

	_, err := Build(cfg)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestBuild_DeletionProtectionFlag(t *testing.T) {
	cfg := testConfig()
	cfg.Database.DeletionProtection = true

	d, err := Build(cfg)
	require.NoError(t, err)
	assert.Equal(t, true, d.Database.Instance.Properties["deletionProtection"])
}

func TestBuild_UniqueAddressesAndAcyclic(t *testing.T) {
	d, err := Build(testConfig())
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, r := range d.Resources {
		assert.False(t, seen[r.Addr()], "duplicate %s", r.Addr())
		seen[r.Addr()] = true
	}

	dag, err := engine.BuildDAG(d.Resources)
	require.NoError(t, err)

	order := dag.CreationOrder()
	pos := make(map[string]int, len(order))
	for i, addr := range order {
		pos[addr] = i
	}
	before := func(a, b *ir.Resource) {
		assert.Less(t, pos[a.Addr()], pos[b.Addr()], "%s must precede %s", a.Addr(), b.Addr())
	}
	before(d.Perimeters.Compute.Resource(), d.Instance.Resource)
	before(d.Perimeters.Edge.Resource(), d.Perimeters.Compute.Resource())
	before(d.Secret.Resource(), d.Database.Instance)
	before(d.Database.Instance, d.Database.Access.Resources()[0])
	before(d.ComputeIdentity.Resources()[1], d.Instance.Resource)
	before(d.Instance.Resource, d.Edge.Attachments[0])
	before(d.Edge.Attachments[0], d.Edge.Listener)
	before(d.ObjectStore.Resource(), d.ComputeIdentity.Resources()[0])

	role := d.ComputeIdentity.Resources()[0].Addr()
	assert.Contains(t, dag.Dependencies(role), d.ObjectStore.Resource().Addr())
	assert.Contains(t, dag.Dependencies(role), d.Secret.Resource().Addr())
}

func TestBuild_Idempotent(t *testing.T) {
	first, err := Build(testConfig())
	require.NoError(t, err)
	second, err := Build(testConfig())
	require.NoError(t, err)

	h1, err := engine.HashResources(first.Resources)
	require.NoError(t, err)
	h2, err := engine.HashResources(second.Resources)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestBuild_ApplyAgainstNullBackend(t *testing.T) {
	d, err := Build(testConfig())
	require.NoError(t, err)

	reg := provider.NewRegistry(nil)
	backend := null.New()
	reg.Register("aws", backend)
	eng := engine.NewEngine(reg)
	ctx := context.Background()

	plan, err := eng.CreatePlan(ctx, d.Resources, d.Outputs, &ir.State{})
	require.NoError(t, err)
	assert.Equal(t, len(d.Resources), plan.Summary.Create)

	state, err := eng.ApplyPlan(ctx, plan, &ir.State{})
	require.NoError(t, err)
	assert.Len(t, state.Resources, len(d.Resources))

	assert.Equal(t, "i-hello-web", state.Outputs[OutputInstanceID])
	assert.Equal(t, "hello-db.abc123.us-east-1.rds.amazonaws.com", state.Outputs[OutputDatabaseEndpoint])
	assert.Equal(t, "hello-0123456789.us-east-1.elb.amazonaws.com", state.Outputs[OutputLoadBalancerDNS])
	for k, v := range state.Outputs {
		assert.NotContains(t, strings.ToLower(v.(string)), "secret", k)
	}

	applied := backend.Applied()
	index := func(addr string) int {
		for i, a := range applied {
			if a == addr {
				return i
			}
		}
		return -1
	}
	assert.Less(t, index(d.Instance.Resource.Addr()), index(d.Edge.Attachments[0].Addr()))

	// Reapplying the same deployment changes nothing.
	replan, err := eng.CreatePlan(ctx, d.Resources, d.Outputs, state)
	require.NoError(t, err)
	assert.Equal(t, 0, replan.Summary.Create)
	assert.Equal(t, len(d.Resources), replan.Summary.NoOp)
}
