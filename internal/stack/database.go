package stack

import (
	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

// MinBackupRetentionDays is the shortest backup window accepted for the
// database.
const MinBackupRetentionDays = 3

type DatabaseSpec struct {
	EngineVersion       string
	InstanceClass       string
	AllocatedStorage    int
	BackupRetentionDays int
	DeletionProtection  bool
	MultiAZ             bool
	Username            string
}

// Database is the managed PostgreSQL instance with its subnet group and the
// identity that connects to it.
type Database struct {
	SubnetGroup *ir.Resource
	Instance    *ir.Resource
	Access      *Identity
}

// ProvisionDatabase declares a single-zone PostgreSQL instance in the private
// subnets, bound to the database perimeter and the secret handle. The access
// identity can read the credential and connect as the master user and nothing
// more.
func ProvisionDatabase(deployment string, nb *NetworkBoundary, perimeter *Perimeter, secret *Secret, spec DatabaseSpec) (*Database, error) {
	if nb == nil {
		return nil, errdefs.Dependency("database", "network", "network boundary not resolved")
	}
	if perimeter == nil || perimeter.resource == nil {
		return nil, errdefs.Dependency("database", "database perimeter", "perimeter not provisioned")
	}
	if perimeter.Role != RoleDatabase {
		return nil, errdefs.Configuration("database.perimeter", "got %s perimeter, need database", perimeter.Role)
	}
	if secret == nil {
		return nil, errdefs.Dependency("database", "secret", "secret not provisioned")
	}
	handle := secret.Materialize()
	if !handle.Valid() {
		return nil, errdefs.Dependency("database", secret.Name(), "secret handle does not resolve")
	}
	if spec.MultiAZ {
		return nil, errdefs.Configuration("database.multiAz", "multi-zone replicas are not supported for this deployment tier")
	}
	if spec.BackupRetentionDays < MinBackupRetentionDays {
		return nil, errdefs.Configuration("database.backupRetentionDays", "backup retention must be at least %d days", MinBackupRetentionDays)
	}
	if spec.Username == "" {
		return nil, errdefs.Configuration("database.username", "no master username")
	}

	subnetGroup := &ir.Resource{
		Type:     ir.TypeDBSubnetGroup,
		Name:     deployment + "-db",
		Provider: "aws",
		Properties: map[string]any{
			"name":        deployment + "-db",
			"description": "private subnets of " + deployment,
			"subnetIds":   nb.PrivateSubnetIDs(),
		},
	}

	props := map[string]any{
		"identifier":                deployment + "-db",
		"engine":                    "postgres",
		"engineVersion":             spec.EngineVersion,
		"instanceClass":             spec.InstanceClass,
		"allocatedStorage":          spec.AllocatedStorage,
		"storageEncrypted":          true,
		"multiAz":                   false,
		"publiclyAccessible":        false,
		"backupRetentionPeriod":     spec.BackupRetentionDays,
		"deletionProtection":        spec.DeletionProtection,
		"iamDatabaseAuthentication": true,
		"port":                      DatabasePort,
		"masterUsername":            spec.Username,
		"masterUserSecretArn":       handle.ref,
		"dbSubnetGroupName":         subnetGroup.Ref("name"),
		"vpcSecurityGroupIds":       []any{perimeter.GroupID()},
	}
	if zone := nb.Private[0].Zone; zone != "" {
		props["availabilityZone"] = zone
	}
	instance := &ir.Resource{
		Type:       ir.TypeDBInstance,
		Name:       deployment + "-db",
		Provider:   "aws",
		Properties: props,
	}

	access, err := NewIdentity(deployment+"-db", DatabasePrincipal)
	if err != nil {
		return nil, err
	}
	if err := access.Grant([]string{"secretsmanager:GetSecretValue"}, secret.ARN()); err != nil {
		return nil, err
	}
	if err := access.Grant([]string{"rds-db:connect"}, instance.Ref("connectArn")); err != nil {
		return nil, err
	}

	return &Database{SubnetGroup: subnetGroup, Instance: instance, Access: access}, nil
}

// Endpoint is a reference to the database endpoint address.
func (d *Database) Endpoint() string { return d.Instance.Ref("endpoint") }

// Resources returns the subnet group, the instance and the access role.
func (d *Database) Resources() []*ir.Resource {
	return append([]*ir.Resource{d.SubnetGroup, d.Instance}, d.Access.Resources()...)
}
