package stack

import (
	"encoding/base64"

	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

type ComputeSpec struct {
	InstanceSize  string
	AmiID         string
	Image         ImageRef
	ContainerPort int
}

// Instance is the compute host running the workload container.
type Instance struct {
	Resource *ir.Resource
	Subnet   ir.Subnet
	Script   string

	// declared is only set by ProvisionCompute; the edge refuses targets
	// without it.
	declared bool
}

// ID is a reference to the materialized instance id.
func (i *Instance) ID() string { return i.Resource.Ref("id") }

// ProvisionCompute declares the compute host in the first public subnet with
// the compute perimeter, the identity's instance profile and the startup
// payload.
func ProvisionCompute(deployment string, nb *NetworkBoundary, perimeter *Perimeter, identity *Identity, spec ComputeSpec) (*Instance, error) {
	if nb == nil {
		return nil, errdefs.Dependency("compute", "network", "network boundary not resolved")
	}
	if perimeter == nil || perimeter.resource == nil {
		return nil, errdefs.Dependency("compute", "compute perimeter", "perimeter not provisioned")
	}
	if perimeter.Role != RoleCompute {
		return nil, errdefs.Configuration("compute.perimeter", "got %s perimeter, need compute", perimeter.Role)
	}
	if identity == nil || identity.ProfileName() == "" {
		return nil, errdefs.Dependency("compute", "compute identity", "instance profile not provisioned")
	}
	if spec.Image.Tag == "" {
		return nil, errdefs.Configuration("image", "image has no tag")
	}
	if spec.ContainerPort <= 0 {
		return nil, errdefs.Configuration("compute.containerPort", "invalid container port %d", spec.ContainerPort)
	}

	subnet := nb.Public[0]
	name := deployment + "-web"
	script := StartupScript(spec.Image, spec.ContainerPort, deployment)

	props := map[string]any{
		"name":                     name,
		"instanceType":             spec.InstanceSize,
		"subnetId":                 subnet.ID,
		"associatePublicIpAddress": true,
		"securityGroupIds":         []any{perimeter.GroupID()},
		"iamInstanceProfile":       identity.ProfileName(),
		"userData":                 base64.StdEncoding.EncodeToString([]byte(script)),
		"tags":                     map[string]any{"Name": name},
	}
	if spec.AmiID != "" {
		props["amiId"] = spec.AmiID
	}

	return &Instance{
		Resource: &ir.Resource{
			Type:     ir.TypeInstance,
			Name:     name,
			Provider: "aws",
			// The role policy must be in place before the payload logs in
			// to the registry.
			DependsOn:  []string{identity.role.Addr()},
			Properties: props,
		},
		Subnet:   subnet,
		Script:   script,
		declared: true,
	}, nil
}
