package ir

// Subnet visibility tags.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// NetworkHandle is an externally supplied virtual network.
type NetworkHandle struct {
	ID      string   `pkl:"id" yaml:"id" validate:"required"`
	CIDR    string   `pkl:"cidr" yaml:"cidr" validate:"omitempty,cidr"`
	Subnets []Subnet `pkl:"subnets" yaml:"subnets" validate:"dive"`
}

// Subnet is one network partition.
type Subnet struct {
	ID         string `pkl:"id" yaml:"id" validate:"required"`
	Name       string `pkl:"name" yaml:"name"`
	Visibility string `pkl:"visibility" yaml:"visibility"`
	CIDR       string `pkl:"cidr" yaml:"cidr" validate:"omitempty,cidr"`
	Zone       string `pkl:"zone" yaml:"zone"`
}
