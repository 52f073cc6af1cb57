package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
name: hello
environment:
  region: us-east-1
network:
  id: vpc-0abc
  cidr: 10.0.0.0/16
  subnets:
    - {id: subnet-pub, name: public-a, visibility: public, cidr: 10.0.0.0/24, zone: us-east-1a}
    - {id: subnet-priv, name: private-a, visibility: private, cidr: 10.0.1.0/24, zone: us-east-1a}
image: 123456789012.dkr.ecr.us-east-1.amazonaws.com/my-repo:latest
objectStore:
  bucketName: hello-assets
edge:
  listenerPort: 443
  certificateArn: arn:aws:acm:us-east-1:123456789012:certificate/abc
`

func TestDecode_AppliesDefaults(t *testing.T) {
	cfg, err := Decode(strings.NewReader(sampleYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "hello", cfg.Name)
	assert.Equal(t, "aws", cfg.Backend)
	assert.Equal(t, 8080, cfg.Compute.ContainerPort)
	assert.Equal(t, "t3.small", cfg.Compute.InstanceSize)
	assert.Equal(t, 3, cfg.Database.BackupRetentionDays)
	assert.Equal(t, 20, cfg.Database.AllocatedStorage)
	assert.False(t, cfg.Database.DeletionProtection)
	assert.Equal(t, "pgsql_secret", cfg.Secret.Name)
	assert.Equal(t, ".webstack/state.pkl", cfg.State.Path)
	require.NotNil(t, cfg.Network)
	assert.Len(t, cfg.Network.Subnets, 2)
}

func TestDecode_RejectsPlaintextPassword(t *testing.T) {
	_, err := Decode(strings.NewReader(sampleYAML + "database:\n  password: hunter2\n"))
	require.Error(t, err)
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"untagged image", func(c *Config) { c.Image = "registry/my-repo" }, "Config.Image"},
		{"port tag only", func(c *Config) { c.Image = "localhost:5000/my-repo" }, "Config.Image"},
		{"instance size outside enumeration", func(c *Config) { c.Compute.InstanceSize = "m5.24xlarge" }, "Config.Compute.InstanceSize"},
		{"short backup retention", func(c *Config) { c.Database.BackupRetentionDays = 1 }, "Config.Database.BackupRetentionDays"},
		{"multi zone", func(c *Config) { c.Database.MultiAZ = true }, "Config.Database.MultiAZ"},
		{"plaintext listener port", func(c *Config) { c.Edge.ListenerPort = 80 }, "Config.Edge.ListenerPort"},
		{"listener without certificate", func(c *Config) { c.Edge.CertificateArn = "" }, "Config.Edge.CertificateArn"},
		{"alternate port without certificate", func(c *Config) {
			c.Edge.ListenerPort = 8443
			c.Edge.CertificateArn = ""
		}, "Config.Edge.CertificateArn"},
		{"bad override cidr", func(c *Config) {
			c.Overrides.Egress = []EgressOverride{{Role: "compute", Protocol: "tcp", Port: 443, CIDR: "nowhere"}}
		}, "Config.Overrides.Egress[0].CIDR"},
		{"override without port", func(c *Config) {
			c.Overrides.Egress = []EgressOverride{{Role: "compute", Protocol: "tcp", CIDR: "0.0.0.0/0"}}
		}, "Config.Overrides.Egress[0].Port"},
		{"s3 state without bucket", func(c *Config) { c.State.Type = "s3" }, "Config.State.Bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Decode(strings.NewReader(sampleYAML))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			require.Error(t, err)
			var cerr *errdefs.ConfigurationError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestSplitImage(t *testing.T) {
	repo, tag, err := SplitImage("registry/my-repo:latest")
	require.NoError(t, err)
	assert.Equal(t, "registry/my-repo", repo)
	assert.Equal(t, "latest", tag)

	repo, tag, err = SplitImage("localhost:5000/team/app:v1.2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000/team/app", repo)
	assert.Equal(t, "v1.2", tag)

	_, _, err = SplitImage("app:")
	assert.True(t, errdefs.IsConfiguration(err))
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0644))

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "vpc-0abc", cfg.Network.ID)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadEnv(filepath.Join(dir, ".env"), false))
	assert.Error(t, LoadEnv(filepath.Join(dir, ".env"), true))

	path := filepath.Join(dir, "aws.env")
	require.NoError(t, os.WriteFile(path, []byte("WEBSTACK_TEST_PROFILE=staging\n"), 0644))
	t.Setenv("WEBSTACK_TEST_PROFILE", "")
	os.Unsetenv("WEBSTACK_TEST_PROFILE")
	require.NoError(t, LoadEnv(path, true))
	assert.Equal(t, "staging", os.Getenv("WEBSTACK_TEST_PROFILE"))
}
