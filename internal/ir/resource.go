package ir

import (
	"fmt"
	"strings"
)

// RefScheme prefixes a reference to another resource's attribute.
const RefScheme = "ptr://"

// Resource represents a single declared resource.
type Resource struct {
	Type       string         `pkl:"type" json:"type"` // e.g., "aws:EC2.SecurityGroup"
	Name       string         `pkl:"name" json:"name"`
	Provider   string         `pkl:"provider" json:"provider"`
	DependsOn  []string       `pkl:"dependsOn" json:"dependsOn,omitempty"`
	Properties map[string]any `pkl:"properties" json:"properties"`
}

// Addr returns the resource address (type.name).
func (r *Resource) Addr() string {
	return Addr(r.Type, r.Name)
}

// Ref returns a reference to one of the resource's materialized attributes.
// ptr://aws:EC2.Vpc/my-vpc/id
func (r *Resource) Ref(attr string) string {
	return fmt.Sprintf("%s%s/%s/%s", RefScheme, r.Type, r.Name, attr)
}

// Addr builds a resource address.
func Addr(typ, name string) string {
	return fmt.Sprintf("%s.%s", typ, name)
}

// IsRef reports whether s is a ptr:// reference.
func IsRef(s string) bool {
	return strings.HasPrefix(s, RefScheme)
}

// ParseRef splits a reference into the referenced address and attribute.
// ptr://aws:EC2.Vpc/my-vpc/id -> aws:EC2.Vpc.my-vpc, id
func ParseRef(ref string) (addr, attr string, ok bool) {
	if !IsRef(ref) {
		return "", "", false
	}
	parts := strings.SplitN(ref[len(RefScheme):], "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	if len(parts) == 3 {
		attr = parts[2]
	}
	return Addr(parts[0], parts[1]), attr, true
}
