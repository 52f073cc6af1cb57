package stack

import (
	"testing"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDatabaseSpec() DatabaseSpec {
	return DatabaseSpec{
		EngineVersion:       "12.3",
		InstanceClass:       "db.t3.small",
		AllocatedStorage:    20,
		BackupRetentionDays: 3,
		Username:            "dbadmin",
	}
}

func TestProvisionDatabase(t *testing.T) {
	ps := testPerimeters(t, PerimeterSpec{ListenerPort: 443})
	nb, err := ResolveNetwork(testNetwork())
	require.NoError(t, err)
	secret, err := ProvisionSecret("pgsql_secret", GenerationPolicy{Length: 32, Username: "dbadmin"})
	require.NoError(t, err)

	db, err := ProvisionDatabase("hello", nb, ps.Database, secret, testDatabaseSpec())
	require.NoError(t, err)

	props := db.Instance.Properties
	assert.Equal(t, "postgres", props["engine"])
	assert.Equal(t, "12.3", props["engineVersion"])
	assert.Equal(t, true, props["iamDatabaseAuthentication"])
	assert.Equal(t, false, props["publiclyAccessible"])
	assert.Equal(t, "us-east-1a", props["availabilityZone"])
	assert.Equal(t, []any{ps.Database.GroupID()}, props["vpcSecurityGroupIds"])
	assert.Equal(t, secret.ARN(), props["masterUserSecretArn"])

	assert.Equal(t, DatabasePrincipal, db.Access.Principal)
	grants := db.Access.Grants()
	require.Len(t, grants, 2)
	assert.Equal(t, []string{"secretsmanager:GetSecretValue"}, grants[0].Actions)
	assert.Equal(t, []string{"rds-db:connect"}, grants[1].Actions)
	assert.Equal(t, []string{db.Instance.Ref("connectArn")}, grants[1].Resources)
	assert.Len(t, db.Resources(), 3)
}

func TestProvisionDatabase_Invalid(t *testing.T) {
	ps := testPerimeters(t, PerimeterSpec{ListenerPort: 443})
	nb, err := ResolveNetwork(testNetwork())
	require.NoError(t, err)
	secret, err := ProvisionSecret("pgsql_secret", GenerationPolicy{Length: 32, Username: "dbadmin"})
	require.NoError(t, err)

	_, err = ProvisionDatabase("hello", nb, ps.Database, nil, testDatabaseSpec())
	assert.True(t, errdefs.IsDependency(err))

	_, err = ProvisionDatabase("hello", nb, nil, secret, testDatabaseSpec())
	assert.True(t, errdefs.IsDependency(err))

	_, err = ProvisionDatabase("hello", nb, ps.Compute, secret, testDatabaseSpec())
	assert.True(t, errdefs.IsConfiguration(err))

	spec := testDatabaseSpec()
	spec.MultiAZ = true
	_, err = ProvisionDatabase("hello", nb, ps.Database, secret, spec)
	assert.True(t, errdefs.IsConfiguration(err))

	spec = testDatabaseSpec()
	spec.BackupRetentionDays = 1
	_, err = ProvisionDatabase("hello", nb, ps.Database, secret, spec)
	assert.True(t, errdefs.IsConfiguration(err))
}
