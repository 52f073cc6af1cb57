package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedErr struct{ code string }

func (c codedErr) Error() string     { return "api error " + c.code }
func (c codedErr) ErrorCode() string { return c.code }

func TestPredicatesThroughWrapping(t *testing.T) {
	cfg := fmt.Errorf("load: %w", Configuration("network", "missing private subnet"))
	assert.True(t, IsConfiguration(cfg))
	assert.False(t, IsDependency(cfg))

	dep := fmt.Errorf("edge: %w", Dependency("edge", "compute", "not provisioned"))
	assert.True(t, IsDependency(dep))
	assert.Contains(t, dep.Error(), "edge requires compute")

	pol := &PolicyConflictError{Identity: "compute", Action: "secretsmanager:*", Resources: []string{"*"}, Reason: "wildcard"}
	assert.True(t, IsPolicyConflict(fmt.Errorf("wrap: %w", pol)))
	assert.Contains(t, pol.Error(), "secretsmanager:* on *")
}

func TestProvisioningBackendErrorKeepsCause(t *testing.T) {
	cause := codedErr{code: "InvalidGroup.Duplicate"}
	err := &ProvisioningBackendError{Resource: "aws:EC2.SecurityGroup.edge", Op: "create", Err: cause}

	assert.True(t, IsProvisioningBackend(err))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "InvalidGroup.Duplicate", err.Code())
	assert.Equal(t, "", (&ProvisioningBackendError{Err: errors.New("boom")}).Code())
}
