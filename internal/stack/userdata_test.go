package stack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartupScript_ECR(t *testing.T) {
	image, err := ParseImage("123456789012.dkr.ecr.us-east-1.amazonaws.com/my-repo:latest")
	require.NoError(t, err)

	script := StartupScript(image, 8080, "hello")
	assert.Equal(t, `#!/bin/bash
set -euo pipefail
yum update -y
yum install -y docker
systemctl enable --now docker
usermod -a -G docker ec2-user
aws ecr get-login-password --region us-east-1 | docker login --username AWS --password-stdin 123456789012.dkr.ecr.us-east-1.amazonaws.com
docker pull 123456789012.dkr.ecr.us-east-1.amazonaws.com/my-repo:latest
docker rm -f hello || true
docker run -d --name hello --restart unless-stopped -e PORT=8080 -p 80:8080 123456789012.dkr.ecr.us-east-1.amazonaws.com/my-repo:latest
`, script)
}

func TestStartupScript_Order(t *testing.T) {
	image, err := ParseImage("registry/my-repo:latest")
	require.NoError(t, err)
	script := StartupScript(image, 3000, "hello")

	steps := []string{
		"yum update -y",
		"yum install -y docker",
		"systemctl enable --now docker",
		"usermod -a -G docker ec2-user",
		"docker pull registry/my-repo:latest",
		"docker run -d --name hello --restart unless-stopped -e PORT=3000 -p 80:3000 registry/my-repo:latest",
	}
	last := -1
	for _, step := range steps {
		idx := strings.Index(script, step)
		require.GreaterOrEqual(t, idx, 0, "missing step %q", step)
		assert.Greater(t, idx, last, "step %q out of order", step)
		last = idx
	}

	// No registry login for images outside ECR, and never embedded credentials.
	assert.NotContains(t, script, "docker login")
	assert.NotContains(t, script, "AWS_SECRET_ACCESS_KEY")
}

func TestParseImage(t *testing.T) {
	tests := []struct {
		image    string
		registry string
		repo     string
		tag      string
		ecr      bool
	}{
		{"registry/my-repo:latest", "", "registry/my-repo", "latest", false},
		{"nginx:1.27", "", "nginx", "1.27", false},
		{"ghcr.io/acme/web:v2", "ghcr.io", "acme/web", "v2", false},
		{"localhost:5000/web:dev", "localhost:5000", "web", "dev", false},
		{"123456789012.dkr.ecr.eu-west-1.amazonaws.com/team/web:42", "123456789012.dkr.ecr.eu-west-1.amazonaws.com", "team/web", "42", true},
	}
	for _, tt := range tests {
		t.Run(tt.image, func(t *testing.T) {
			ref, err := ParseImage(tt.image)
			require.NoError(t, err)
			assert.Equal(t, tt.registry, ref.Registry)
			assert.Equal(t, tt.repo, ref.Repository)
			assert.Equal(t, tt.tag, ref.Tag)
			assert.Equal(t, tt.ecr, ref.IsECR())
			assert.Equal(t, tt.image, ref.String())
		})
	}
}
