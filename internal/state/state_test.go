package state

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/picklr-io/webstack/internal/eval"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *ir.State {
	return &ir.State{
		Version: 1,
		Serial:  3,
		Lineage: "test-lineage",
		Outputs: map[string]any{"loadBalancerDns": "hello-0123456789.us-east-1.elb.amazonaws.com"},
		Resources: []*ir.ResourceState{
			{
				Type:     ir.TypeSecurityGroup,
				Name:     "hello-compute",
				Provider: "aws",
				Inputs: map[string]any{
					"allowAllEgress": false,
					"ingress": []any{map[string]any{
						"protocol":      "tcp",
						"fromPort":      80,
						"sourceGroupId": "ptr://aws:EC2.SecurityGroup/hello-edge/id",
					}},
				},
				InputsHash:   "hash123",
				Outputs:      map[string]any{"id": "sg-0abc"},
				Dependencies: []string{"aws:EC2.SecurityGroup.hello-edge"},
			},
		},
	}
}

func TestManager_ReadMissingFile(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "state.pkl"), eval.NewEvaluator(""), nil)

	s, err := mgr.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, 0, s.Serial)
	assert.Len(t, s.Lineage, 36)
	assert.Empty(t, s.Resources)
}

func TestManager_Write(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), ".webstack", "state.pkl")
	mgr := NewManager(statePath, eval.NewEvaluator(""), nil)

	require.NoError(t, mgr.Write(context.Background(), sampleState()))

	content, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `type = "aws:EC2.SecurityGroup"`)
	assert.Contains(t, string(content), `name = "hello-compute"`)
	assert.Contains(t, string(content), `serial = 3`)
	assert.Contains(t, string(content), `"aws:EC2.SecurityGroup.hello-edge"`)
	assert.NotContains(t, string(content), "amends")

	_, err = os.Stat(statePath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestManager_WriteEncrypted(t *testing.T) {
	c, err := NewCipher("passphrase")
	require.NoError(t, err)
	statePath := filepath.Join(t.TempDir(), "state.pkl")
	mgr := NewManager(statePath, eval.NewEvaluator(""), c)

	require.NoError(t, mgr.Write(context.Background(), sampleState()))

	content, err := os.ReadFile(statePath)
	require.NoError(t, err)
	assert.True(t, IsEncrypted(content))
	assert.NotContains(t, string(content), "hello-compute")
}

func TestManager_RoundTrip(t *testing.T) {
	if _, err := exec.LookPath("pkl"); err != nil {
		t.Skip("pkl binary not on PATH")
	}
	c, err := NewCipher("passphrase")
	require.NoError(t, err)
	mgr := NewManager(filepath.Join(t.TempDir(), "state.pkl"), eval.NewEvaluator(""), c)
	ctx := context.Background()

	require.NoError(t, mgr.Write(ctx, sampleState()))
	got, err := mgr.Read(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, got.Serial)
	assert.Equal(t, "test-lineage", got.Lineage)
	require.Len(t, got.Resources, 1)
	res := got.Resources[0]
	assert.Equal(t, "hash123", res.InputsHash)
	assert.Equal(t, "sg-0abc", res.Outputs["id"])
	assert.Equal(t, []string{"aws:EC2.SecurityGroup.hello-edge"}, res.Dependencies)
	ingress := res.Inputs["ingress"].([]any)[0].(map[string]any)
	assert.Equal(t, "ptr://aws:EC2.SecurityGroup/hello-edge/id", ingress["sourceGroupId"])
}

func TestSerializeState(t *testing.T) {
	content := SerializeState(&ir.State{Version: 1, Serial: 2, Lineage: "abc-123"})
	assert.Contains(t, content, "version = 1")
	assert.Contains(t, content, "serial = 2")
	assert.Contains(t, content, `lineage = "abc-123"`)
	assert.Contains(t, content, "outputs = new Mapping {}")
	assert.Contains(t, content, "resources = new Listing {}")

	assert.Equal(t, SerializeState(sampleState()), SerializeState(sampleState()))
}

func TestPklString(t *testing.T) {
	assert.Equal(t, `"plain"`, pklString("plain"))
	assert.Equal(t, `"\"@/\\"`, pklString(`"@/\`))
	assert.Equal(t, `"a\nb\tc"`, pklString("a\nb\tc"))
	assert.Equal(t, `"\u{1}"`, pklString("\x01"))
}

func TestNormalizeValue(t *testing.T) {
	got := normalizeValue(map[any]any{
		"nested": map[any]any{"port": 5432},
		"list":   []any{map[any]any{"cidr": "10.0.0.0/16"}},
	})
	assert.Equal(t, map[string]any{
		"nested": map[string]any{"port": 5432},
		"list":   []any{map[string]any{"cidr": "10.0.0.0/16"}},
	}, got)
}

func TestManager_Lock(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(filepath.Join(t.TempDir(), "state.pkl"), eval.NewEvaluator(""), nil)

	require.NoError(t, mgr.Lock(ctx))
	err := mgr.Lock(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	require.NoError(t, mgr.Unlock(ctx))
	require.NoError(t, mgr.Lock(ctx))
	require.NoError(t, mgr.Unlock(ctx))
	require.NoError(t, mgr.Unlock(ctx))
}
