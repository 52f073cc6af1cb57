package stack

import (
	"fmt"
	"strings"
)

// StartupScript renders the boot payload of the compute host. Each boot runs
// it from scratch, so every step tolerates a previous run.
func StartupScript(image ImageRef, containerPort int, containerName string) string {
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("#!/bin/bash")
	line("set -euo pipefail")
	line("yum update -y")
	line("yum install -y docker")
	line("systemctl enable --now docker")
	line("usermod -a -G docker ec2-user")
	if image.IsECR() {
		// Credentials come from the instance profile.
		line("aws ecr get-login-password --region %s | docker login --username AWS --password-stdin %s", image.Region(), image.Registry)
	}
	line("docker pull %s", image)
	line("docker rm -f %s || true", containerName)
	// The workload reads its listening port from PORT.
	line("docker run -d --name %s --restart unless-stopped -e PORT=%d -p %d:%d %s", containerName, containerPort, HostPort, containerPort, image)
	return b.String()
}
