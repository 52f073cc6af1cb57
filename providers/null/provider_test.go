package null

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/picklr-io/webstack/internal/ir"
	pb "github.com/picklr-io/webstack/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apply(t *testing.T, p *Provider, typ, name string, desired map[string]any) (map[string]any, error) {
	t.Helper()
	desiredJSON, err := json.Marshal(desired)
	require.NoError(t, err)

	resp, err := p.Apply(context.Background(), &pb.ApplyRequest{Type: typ, Name: name, DesiredConfigJSON: desiredJSON})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.NewStateJSON, &out))
	return out, nil
}

func TestProvider_ApplyOutputs(t *testing.T) {
	p := New()
	require.NoError(t, p.Configure(context.Background(), &pb.ConfigureRequest{Region: "eu-west-1"}))

	out, err := apply(t, p, ir.TypeSecret, "db-credentials", map[string]any{"name": "pgsql_secret"})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:secretsmanager:eu-west-1:000000000000:secret:pgsql_secret-*", out["arnPattern"])
	assert.NotContains(t, out, "value")

	out, err = apply(t, p, ir.TypeBucket, "objects", map[string]any{"name": "my-bucket"})
	require.NoError(t, err)
	assert.Equal(t, "arn:aws:s3:::my-bucket/*", out["objectsArn"])

	assert.Equal(t, []string{"aws:SecretsManager.Secret.db-credentials", "aws:S3.Bucket.objects"}, p.Applied())
}

func TestProvider_RejectsUnresolvedReference(t *testing.T) {
	p := New()
	_, err := apply(t, p, ir.TypeInstance, "web", map[string]any{"subnetId": "ptr://aws:EC2.Subnet/a/id"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved reference")
}

func TestProvider_FailOn(t *testing.T) {
	p := New()
	boom := errors.New("quota exceeded")
	p.FailOn[ir.TypeDBInstance] = boom

	_, err := apply(t, p, ir.TypeDBInstance, "db", map[string]any{})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, p.Applied())
}

func TestProvider_UnknownType(t *testing.T) {
	_, err := apply(t, New(), "aws:Lambda.Function", "fn", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown resource type")
}

func TestProvider_Delete(t *testing.T) {
	p := New()
	require.NoError(t, p.Delete(context.Background(), &pb.DeleteRequest{Type: ir.TypeBucket, Name: "objects"}))
	assert.Equal(t, []string{"aws:S3.Bucket.objects"}, p.Deleted())
}
