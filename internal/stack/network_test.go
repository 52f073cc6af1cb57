package stack

import (
	"testing"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNetwork() *ir.NetworkHandle {
	return &ir.NetworkHandle{
		ID:   "vpc-0abc",
		CIDR: "10.0.0.0/16",
		Subnets: []ir.Subnet{
			{ID: "subnet-pub-a", Name: "public-a", Visibility: ir.VisibilityPublic, CIDR: "10.0.0.0/24", Zone: "us-east-1a"},
			{ID: "subnet-priv-a", Name: "private-a", Visibility: ir.VisibilityPrivate, CIDR: "10.0.1.0/24", Zone: "us-east-1a"},
		},
	}
}

func TestResolveNetwork(t *testing.T) {
	nb, err := ResolveNetwork(testNetwork())
	require.NoError(t, err)
	assert.Equal(t, "vpc-0abc", nb.ID)
	assert.Equal(t, "10.0.0.0/16", nb.CIDR)
	require.Len(t, nb.Public, 1)
	require.Len(t, nb.Private, 1)
	assert.Equal(t, "public-a", nb.Public[0].Name)
	assert.Equal(t, []any{"subnet-priv-a"}, nb.PrivateSubnetIDs())
}

func TestResolveNetwork_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		handle func() *ir.NetworkHandle
		field  string
	}{
		{"nil handle", func() *ir.NetworkHandle { return nil }, "network"},
		{"no id", func() *ir.NetworkHandle { h := testNetwork(); h.ID = ""; return h }, "network.id"},
		{"no cidr", func() *ir.NetworkHandle { h := testNetwork(); h.CIDR = ""; return h }, "network.cidr"},
		{"no private subnet", func() *ir.NetworkHandle { h := testNetwork(); h.Subnets = h.Subnets[:1]; return h }, "network.subnets"},
		{"no public subnet", func() *ir.NetworkHandle { h := testNetwork(); h.Subnets = h.Subnets[1:]; return h }, "network.subnets"},
		{"unknown visibility", func() *ir.NetworkHandle { h := testNetwork(); h.Subnets[0].Visibility = "dmz"; return h }, "network.subnets[0].visibility"},
		{"subnet outside network", func() *ir.NetworkHandle { h := testNetwork(); h.Subnets[1].CIDR = "192.168.0.0/24"; return h }, "network.subnets[1].cidr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveNetwork(tt.handle())
			var cerr *errdefs.ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}
