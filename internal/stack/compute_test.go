package stack

import (
	"encoding/base64"
	"testing"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionCompute(t *testing.T) {
	d, err := Build(testConfig())
	require.NoError(t, err)

	props := d.Instance.Resource.Properties
	assert.Equal(t, "t3.small", props["instanceType"])
	assert.Equal(t, []any{d.Perimeters.Compute.GroupID()}, props["securityGroupIds"])
	assert.Equal(t, d.ComputeIdentity.ProfileName(), props["iamInstanceProfile"])
	assert.NotContains(t, props, "amiId")

	script, err := base64.StdEncoding.DecodeString(props["userData"].(string))
	require.NoError(t, err)
	assert.Equal(t, d.Instance.Script, string(script))
	assert.Contains(t, d.Instance.Script, "-p 80:8080 registry/my-repo:latest")
}

func TestProvisionCompute_Dependencies(t *testing.T) {
	d, err := Build(testConfig())
	require.NoError(t, err)
	image, err := ParseImage("registry/my-repo:latest")
	require.NoError(t, err)
	spec := ComputeSpec{InstanceSize: "t3.small", Image: image, ContainerPort: 8080}

	_, err = ProvisionCompute("hello", d.Network, d.Perimeters.Compute, nil, spec)
	assert.True(t, errdefs.IsDependency(err))

	noProfile, err := NewIdentity("bare", ComputePrincipal)
	require.NoError(t, err)
	_, err = ProvisionCompute("hello", d.Network, d.Perimeters.Compute, noProfile, spec)
	assert.True(t, errdefs.IsDependency(err))

	_, err = ProvisionCompute("hello", d.Network, d.Perimeters.Edge, d.ComputeIdentity, spec)
	assert.True(t, errdefs.IsConfiguration(err))

	spec.AmiID = "ami-0123456789abcdef0"
	inst, err := ProvisionCompute("hello", d.Network, d.Perimeters.Compute, d.ComputeIdentity, spec)
	require.NoError(t, err)
	assert.Equal(t, "ami-0123456789abcdef0", inst.Resource.Properties["amiId"])
}
