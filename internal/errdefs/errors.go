// Package errdefs defines the error kinds surfaced while building and
// materializing a deployment.
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports missing or invalid input. It is raised before any
// resource is declared.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// PolicyConflictError reports a wildcard or contradictory access grant.
type PolicyConflictError struct {
	Identity  string
	Action    string
	Resources []string
	Reason    string
}

func (e *PolicyConflictError) Error() string {
	msg := fmt.Sprintf("policy conflict on identity %q", e.Identity)
	if e.Action != "" {
		msg += fmt.Sprintf(" (action %s", e.Action)
		if len(e.Resources) > 0 {
			msg += " on " + strings.Join(e.Resources, ", ")
		}
		msg += ")"
	}
	return msg + ": " + e.Reason
}

// DependencyError reports a reference to a resource that has not been
// provisioned.
type DependencyError struct {
	Resource   string
	Dependency string
	Reason     string
}

func (e *DependencyError) Error() string {
	if e.Dependency == "" {
		return fmt.Sprintf("dependency error: %s: %s", e.Resource, e.Reason)
	}
	return fmt.Sprintf("dependency error: %s requires %s: %s", e.Resource, e.Dependency, e.Reason)
}

// ProvisioningBackendError wraps a failure returned by the provisioning
// backend. The underlying error is kept verbatim.
type ProvisioningBackendError struct {
	Resource string
	Op       string
	Err      error
}

func (e *ProvisioningBackendError) Error() string {
	return fmt.Sprintf("backend %s failed for %s: %v", e.Op, e.Resource, e.Err)
}

func (e *ProvisioningBackendError) Unwrap() error { return e.Err }

// Code returns the backend error code when the wrapped error carries one.
func (e *ProvisioningBackendError) Code() string {
	var coded interface{ ErrorCode() string }
	if errors.As(e.Err, &coded) {
		return coded.ErrorCode()
	}
	return ""
}

// Configuration is a shorthand constructor.
func Configuration(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Dependency is a shorthand constructor.
func Dependency(resource, dependency, format string, args ...any) error {
	return &DependencyError{Resource: resource, Dependency: dependency, Reason: fmt.Sprintf(format, args...)}
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsPolicyConflict(err error) bool {
	var target *PolicyConflictError
	return errors.As(err, &target)
}

func IsDependency(err error) bool {
	var target *DependencyError
	return errors.As(err, &target)
}

func IsProvisioningBackend(err error) bool {
	var target *ProvisioningBackendError
	return errors.As(err, &target)
}
