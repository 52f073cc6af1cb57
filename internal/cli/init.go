package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const sampleConfig = `# Webstack deployment configuration.
name: hello
backend: aws

environment:
  region: us-east-1

# The network is provisioned elsewhere. Give its id alone to look the
# subnets up, or list them with their visibility.
network:
  id: vpc-0123456789abcdef0
  cidr: 10.0.0.0/16
  subnets:
    - {id: subnet-0aaaaaaaaaaaaaaaa, name: public-a, visibility: public, cidr: 10.0.0.0/24, zone: us-east-1a}
    - {id: subnet-0bbbbbbbbbbbbbbbb, name: private-a, visibility: private, cidr: 10.0.1.0/24, zone: us-east-1a}

image: 123456789012.dkr.ecr.us-east-1.amazonaws.com/hello:latest

compute:
  instanceSize: t3.small
  containerPort: 8080

database:
  instanceClass: db.t3.small
  allocatedStorage: 20
  backupRetentionDays: 3

objectStore:
  bucketName: hello-assets-123456789012

# The listener is always HTTPS. Give a certificate ARN, or a domain name
# with an issued ACM certificate.
edge:
  listenerPort: 443
  domainName: hello.example.com

# Instances need outbound HTTPS for package and image downloads.
overrides:
  egress:
    - {role: compute, protocol: tcp, port: 443, cidr: 0.0.0.0/0, description: package and image downloads}
`

func newInitCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a sample deployment configuration",
		Long:  `Creates a sample configuration file at the --config path unless one already exists.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := opts.configPath

			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(out, "%s already exists, leaving it untouched.\n", path)
				return nil
			} else if !os.IsNotExist(err) {
				return fmt.Errorf("failed to check %s: %w", path, err)
			}

			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0755); err != nil {
					return fmt.Errorf("failed to create %s: %w", dir, err)
				}
			}
			if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			fmt.Fprintf(out, "Created %s\n", path)

			fmt.Fprintln(out, "\nNext steps:")
			fmt.Fprintf(out, "  1. Edit %s with your network, image and bucket\n", path)
			fmt.Fprintln(out, "  2. Run 'webstack plan' to see what will be created")
			fmt.Fprintln(out, "  3. Run 'webstack apply' to create the deployment")
			return nil
		},
	}
}
