// Package config holds the deployment configuration: the network handle, the
// workload image and the enumerated sizing parameters.
package config

import (
	"github.com/picklr-io/webstack/internal/ir"
)

// Config is the top-level deployment configuration.
type Config struct {
	Name        string            `pkl:"name" yaml:"name" validate:"required,slug"`
	Backend     string            `pkl:"backend" yaml:"backend" validate:"oneof=aws null"`
	Environment Environment       `pkl:"environment" yaml:"environment"`
	Network     *ir.NetworkHandle `pkl:"network" yaml:"network"`
	Image       string            `pkl:"image" yaml:"image" validate:"required"`
	Compute     Compute           `pkl:"compute" yaml:"compute"`
	Database    Database          `pkl:"database" yaml:"database"`
	Secret      Secret            `pkl:"secret" yaml:"secret"`
	ObjectStore ObjectStore       `pkl:"objectStore" yaml:"objectStore"`
	Edge        Edge              `pkl:"edge" yaml:"edge"`
	Overrides   Overrides         `pkl:"overrides" yaml:"overrides"`
	State       State             `pkl:"state" yaml:"state"`
}

// Environment is the provided account/region context.
type Environment struct {
	Region  string `pkl:"region" yaml:"region" validate:"required"`
	Account string `pkl:"account" yaml:"account" validate:"omitempty,len=12,numeric"`
	Profile string `pkl:"profile" yaml:"profile"`
}

type Compute struct {
	InstanceSize  string `pkl:"instanceSize" yaml:"instanceSize" validate:"oneof=t3.micro t3.small t3.medium"`
	ContainerPort int    `pkl:"containerPort" yaml:"containerPort" validate:"min=1,max=65535"`
	AmiID         string `pkl:"amiId" yaml:"amiId"`
}

type Database struct {
	EngineVersion       string `pkl:"engineVersion" yaml:"engineVersion" validate:"oneof=12.3 13.13 14.11 15.6 16.2"`
	InstanceClass       string `pkl:"instanceClass" yaml:"instanceClass" validate:"oneof=db.t3.micro db.t3.small db.t3.medium"`
	AllocatedStorage    int    `pkl:"allocatedStorage" yaml:"allocatedStorage" validate:"min=20,max=100"`
	BackupRetentionDays int    `pkl:"backupRetentionDays" yaml:"backupRetentionDays" validate:"min=3,max=35"`
	DeletionProtection  bool   `pkl:"deletionProtection" yaml:"deletionProtection"`
	MultiAZ             bool   `pkl:"multiAz" yaml:"multiAz"`
	Username            string `pkl:"username" yaml:"username" validate:"required,alphanum"`
}

type Secret struct {
	Name              string `pkl:"name" yaml:"name" validate:"required"`
	Length            int    `pkl:"length" yaml:"length" validate:"min=16,max=64"`
	ExcludeCharacters string `pkl:"excludeCharacters" yaml:"excludeCharacters"`
}

type ObjectStore struct {
	BucketName string `pkl:"bucketName" yaml:"bucketName" validate:"required,min=3,max=63"`
}

type Edge struct {
	ListenerPort   int    `pkl:"listenerPort" yaml:"listenerPort" validate:"oneof=443 8443"`
	CertificateArn string `pkl:"certificateArn" yaml:"certificateArn"`
	DomainName     string `pkl:"domainName" yaml:"domainName" validate:"omitempty,fqdn"`
}

type Overrides struct {
	Egress []EgressOverride `pkl:"egress" yaml:"egress" validate:"dive"`
}

// EgressOverride opens an egress rule the perimeter builder would not emit on
// its own, such as outbound HTTPS for package and image downloads.
type EgressOverride struct {
	Role        string `pkl:"role" yaml:"role" validate:"oneof=edge compute database"`
	Protocol    string `pkl:"protocol" yaml:"protocol" validate:"oneof=tcp udp -1"`
	Port        int    `pkl:"port" yaml:"port" validate:"min=0,max=65535"`
	CIDR        string `pkl:"cidr" yaml:"cidr" validate:"required,cidr"`
	Description string `pkl:"description" yaml:"description"`
}

// State selects where deployment state is kept.
type State struct {
	Type          string `pkl:"type" yaml:"type" validate:"oneof=local s3"`
	Path          string `pkl:"path" yaml:"path"`
	Bucket        string `pkl:"bucket" yaml:"bucket" validate:"required_if=Type s3"`
	Key           string `pkl:"key" yaml:"key"`
	Region        string `pkl:"region" yaml:"region"`
	DynamoDBTable string `pkl:"dynamodbTable" yaml:"dynamodbTable"`
	Encrypt       bool   `pkl:"encrypt" yaml:"encrypt"`
}

// Defaults returns a configuration with every optional parameter set.
func Defaults() *Config {
	return &Config{
		Backend: "aws",
		Compute: Compute{
			InstanceSize:  "t3.small",
			ContainerPort: 8080,
		},
		Database: Database{
			EngineVersion:       "12.3",
			InstanceClass:       "db.t3.small",
			AllocatedStorage:    20,
			BackupRetentionDays: 3,
			Username:            "dbadmin",
		},
		Secret: Secret{
			Name:              "pgsql_secret",
			Length:            32,
			ExcludeCharacters: `"@/\`,
		},
		Edge: Edge{
			ListenerPort: 443,
		},
		State: State{
			Type: "local",
			Path: ".webstack/state.pkl",
		},
	}
}
