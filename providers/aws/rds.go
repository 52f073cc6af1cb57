package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/picklr-io/webstack/internal/logging"
)

type DBSubnetGroupConfig struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SubnetIDs   []string `json:"subnetIds"`
}

type DBSubnetGroupState struct {
	Name string `json:"name"`
}

type DBInstanceConfig struct {
	Identifier                string   `json:"identifier"`
	Engine                    string   `json:"engine"`
	EngineVersion             string   `json:"engineVersion"`
	InstanceClass             string   `json:"instanceClass"`
	AllocatedStorage          int      `json:"allocatedStorage"`
	StorageEncrypted          bool     `json:"storageEncrypted"`
	MultiAZ                   bool     `json:"multiAz"`
	PubliclyAccessible        bool     `json:"publiclyAccessible"`
	BackupRetentionPeriod     int      `json:"backupRetentionPeriod"`
	DeletionProtection        bool     `json:"deletionProtection"`
	IAMDatabaseAuthentication bool     `json:"iamDatabaseAuthentication"`
	Port                      int      `json:"port"`
	MasterUsername            string   `json:"masterUsername"`
	MasterUserSecretARN       string   `json:"masterUserSecretArn"`
	DBSubnetGroupName         string   `json:"dbSubnetGroupName"`
	VpcSecurityGroupIDs       []string `json:"vpcSecurityGroupIds"`
	AvailabilityZone          string   `json:"availabilityZone,omitempty"`
}

type DBInstanceState struct {
	Identifier string `json:"identifier"`
	ARN        string `json:"arn"`
	Endpoint   string `json:"endpoint"`
	Port       int    `json:"port"`
	ResourceID string `json:"resourceId"`
	ConnectARN string `json:"connectArn"`
}

const dbInstanceTimeout = 40 * time.Minute

func (p *Provider) applyDBSubnetGroup(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[DBSubnetGroupConfig](desiredJSON, "db subnet group")
	if err != nil {
		return nil, err
	}

	_, err = p.rdsClient.CreateDBSubnetGroup(ctx, &rds.CreateDBSubnetGroupInput{
		DBSubnetGroupName:        &desired.Name,
		DBSubnetGroupDescription: &desired.Description,
		SubnetIds:                desired.SubnetIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create db subnet group: %w", err)
	}
	return DBSubnetGroupState{Name: desired.Name}, nil
}

func (p *Provider) deleteDBSubnetGroup(ctx context.Context, currentJSON []byte) error {
	current, err := decode[DBSubnetGroupState](currentJSON, "db subnet group state")
	if err != nil {
		return err
	}
	if current.Name == "" {
		return nil
	}

	_, err = p.rdsClient.DeleteDBSubnetGroup(ctx, &rds.DeleteDBSubnetGroupInput{DBSubnetGroupName: &current.Name})
	var nf *types.DBSubnetGroupNotFoundFault
	if err != nil && !errors.As(err, &nf) {
		return fmt.Errorf("failed to delete db subnet group %s: %w", current.Name, err)
	}
	return nil
}

func (p *Provider) applyDBInstance(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[DBInstanceConfig](desiredJSON, "db instance")
	if err != nil {
		return nil, err
	}

	// The credential is read once at creation and never leaves this call.
	cred, err := p.readCredential(ctx, desired.MasterUserSecretARN)
	if err != nil {
		return nil, err
	}
	if cred.Username != desired.MasterUsername {
		return nil, fmt.Errorf("secret username %q does not match master username %q", cred.Username, desired.MasterUsername)
	}

	input := &rds.CreateDBInstanceInput{
		DBInstanceIdentifier:            &desired.Identifier,
		Engine:                          &desired.Engine,
		EngineVersion:                   &desired.EngineVersion,
		DBInstanceClass:                 &desired.InstanceClass,
		AllocatedStorage:                int32Ptr(int32(desired.AllocatedStorage)),
		StorageEncrypted:                boolPtr(desired.StorageEncrypted),
		MultiAZ:                         boolPtr(desired.MultiAZ),
		PubliclyAccessible:              boolPtr(desired.PubliclyAccessible),
		BackupRetentionPeriod:           int32Ptr(int32(desired.BackupRetentionPeriod)),
		DeletionProtection:              boolPtr(desired.DeletionProtection),
		EnableIAMDatabaseAuthentication: boolPtr(desired.IAMDatabaseAuthentication),
		Port:                            int32Ptr(int32(desired.Port)),
		MasterUsername:                  &cred.Username,
		MasterUserPassword:              &cred.Password,
		DBSubnetGroupName:               &desired.DBSubnetGroupName,
		VpcSecurityGroupIds:             desired.VpcSecurityGroupIDs,
	}
	if desired.AvailabilityZone != "" && !desired.MultiAZ {
		input.AvailabilityZone = &desired.AvailabilityZone
	}

	if _, err := p.rdsClient.CreateDBInstance(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to create db instance: %w", err)
	}

	logging.Info("waiting for database to become available", "identifier", desired.Identifier)
	waiter := rds.NewDBInstanceAvailableWaiter(p.rdsClient)
	described, err := waiter.WaitForOutput(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: &desired.Identifier,
	}, dbInstanceTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for db instance %s: %w", desired.Identifier, err)
	}
	if len(described.DBInstances) == 0 {
		return nil, fmt.Errorf("db instance %s not found after creation", desired.Identifier)
	}

	return dbInstanceState(described.DBInstances[0], desired.MasterUsername), nil
}

func (p *Provider) deleteDBInstance(ctx context.Context, currentJSON []byte) error {
	current, err := decode[DBInstanceState](currentJSON, "db instance state")
	if err != nil {
		return err
	}
	if current.Identifier == "" {
		return nil
	}

	_, err = p.rdsClient.DeleteDBInstance(ctx, &rds.DeleteDBInstanceInput{
		DBInstanceIdentifier:   &current.Identifier,
		SkipFinalSnapshot:      boolPtr(true),
		DeleteAutomatedBackups: boolPtr(true),
	})
	var nf *types.DBInstanceNotFoundFault
	if errors.As(err, &nf) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete db instance %s: %w", current.Identifier, err)
	}

	waiter := rds.NewDBInstanceDeletedWaiter(p.rdsClient)
	if err := waiter.Wait(ctx, &rds.DescribeDBInstancesInput{DBInstanceIdentifier: &current.Identifier}, dbInstanceTimeout); err != nil {
		return fmt.Errorf("failed waiting for db instance %s deletion: %w", current.Identifier, err)
	}
	return nil
}

func dbInstanceState(db types.DBInstance, username string) DBInstanceState {
	s := DBInstanceState{
		Identifier: deref(db.DBInstanceIdentifier),
		ARN:        deref(db.DBInstanceArn),
		ResourceID: deref(db.DbiResourceId),
	}
	if db.Endpoint != nil {
		s.Endpoint = deref(db.Endpoint.Address)
		if db.Endpoint.Port != nil {
			s.Port = int(*db.Endpoint.Port)
		}
	}
	s.ConnectARN = connectARN(s.ARN, s.ResourceID, username)
	return s
}

// connectARN builds the IAM authentication resource of a database user.
// arn:aws:rds:<region>:<account>:db:<id> -> arn:aws:rds-db:<region>:<account>:dbuser:<resource-id>/<user>
func connectARN(instanceARN, resourceID, username string) string {
	parts := strings.SplitN(instanceARN, ":", 6)
	if len(parts) != 6 || resourceID == "" {
		return ""
	}
	return fmt.Sprintf("arn:%s:rds-db:%s:%s:dbuser:%s/%s", parts[1], parts[3], parts[4], resourceID, username)
}
