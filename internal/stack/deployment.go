package stack

import (
	"fmt"
	"time"

	"github.com/picklr-io/webstack/internal/config"
	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
	"github.com/picklr-io/webstack/internal/logging"
)

// Output keys of a deployment.
const (
	OutputInstanceID       = "instanceId"
	OutputDatabaseEndpoint = "databaseEndpoint"
	OutputLoadBalancerDNS  = "loadBalancerDns"
)

// Deployment is the complete set of declared resources and the outputs
// resolved from them once materialized.
type Deployment struct {
	Name string

	Network         *NetworkBoundary
	Perimeters      *Perimeters
	ObjectStore     *ObjectStore
	Secret          *Secret
	ComputeIdentity *Identity
	Database        *Database
	Instance        *Instance
	Edge            *Edge

	Resources []*ir.Resource
	Outputs   map[string]any
}

type phase struct {
	name string
	run  func() error
}

// Build runs the components in dependency order: network, perimeters, object
// store and secret, identity, database and compute, edge. A configuration
// error stops the build before any resource is declared.
func Build(cfg *config.Config) (*Deployment, error) {
	if cfg == nil {
		return nil, errdefs.Configuration("", "no configuration")
	}
	image, err := ParseImage(cfg.Image)
	if err != nil {
		return nil, err
	}

	d := &Deployment{Name: cfg.Name}
	phases := []phase{
		{"network", func() (err error) {
			d.Network, err = ResolveNetwork(cfg.Network)
			return err
		}},
		{"perimeters", func() (err error) {
			d.Perimeters, err = BuildPerimeters(cfg.Name, d.Network, PerimeterSpec{
				ListenerPort: cfg.Edge.ListenerPort,
				WorkloadPort: HostPort,
				DatabasePort: DatabasePort,
				Overrides:    cfg.Overrides.Egress,
			})
			return err
		}},
		{"object store", func() (err error) {
			d.ObjectStore, err = ProvisionObjectStore(cfg.ObjectStore.BucketName)
			return err
		}},
		{"secret", func() (err error) {
			d.Secret, err = ProvisionSecret(cfg.Secret.Name, GenerationPolicy{
				Length:            cfg.Secret.Length,
				ExcludeCharacters: cfg.Secret.ExcludeCharacters,
				Username:          cfg.Database.Username,
			})
			return err
		}},
		{"identity", func() (err error) {
			d.ComputeIdentity, err = BuildComputeIdentity(cfg.Name, d.ObjectStore, d.Secret, image)
			return err
		}},
		{"database", func() (err error) {
			d.Database, err = ProvisionDatabase(cfg.Name, d.Network, d.Perimeters.Database, d.Secret, DatabaseSpec{
				EngineVersion:       cfg.Database.EngineVersion,
				InstanceClass:       cfg.Database.InstanceClass,
				AllocatedStorage:    cfg.Database.AllocatedStorage,
				BackupRetentionDays: cfg.Database.BackupRetentionDays,
				DeletionProtection:  cfg.Database.DeletionProtection,
				MultiAZ:             cfg.Database.MultiAZ,
				Username:            cfg.Database.Username,
			})
			return err
		}},
		{"compute", func() (err error) {
			d.Instance, err = ProvisionCompute(cfg.Name, d.Network, d.Perimeters.Compute, d.ComputeIdentity, ComputeSpec{
				InstanceSize:  cfg.Compute.InstanceSize,
				AmiID:         cfg.Compute.AmiID,
				Image:         image,
				ContainerPort: cfg.Compute.ContainerPort,
			})
			return err
		}},
		{"edge", func() (err error) {
			d.Edge, err = ProvisionEdge(cfg.Name, d.Network, d.Perimeters.Edge, []*Instance{d.Instance}, EdgeSpec{
				ListenerPort:   cfg.Edge.ListenerPort,
				TargetPort:     HostPort,
				CertificateArn: cfg.Edge.CertificateArn,
				DomainName:     cfg.Edge.DomainName,
			})
			return err
		}},
	}

	if err := runPhases(phases); err != nil {
		return nil, err
	}

	d.collect()
	if err := d.checkIdentities(); err != nil {
		return nil, err
	}
	return d, nil
}

func runPhases(phases []phase) error {
	start := time.Now()
	for i, p := range phases {
		name := fmt.Sprintf("%s (%d/%d)", p.name, i+1, len(phases))
		if err := p.run(); err != nil {
			logging.Debug("build phase failed", "phase", name, "error", err)
			return fmt.Errorf("%s phase failed: %w", p.name, err)
		}
		logging.Debug("build phase completed", "phase", name)
	}
	logging.Debug("deployment declared", "duration", time.Since(start).Round(time.Microsecond))
	return nil
}

func (d *Deployment) collect() {
	d.Resources = append(d.Resources, d.Perimeters.Resources()...)
	d.Resources = append(d.Resources, d.ObjectStore.Resource(), d.Secret.Resource())
	d.Resources = append(d.Resources, d.ComputeIdentity.Resources()...)
	d.Resources = append(d.Resources, d.Database.Resources()...)
	d.Resources = append(d.Resources, d.Instance.Resource)
	d.Resources = append(d.Resources, d.Edge.Resources()...)

	d.Outputs = map[string]any{
		OutputInstanceID:       d.Instance.ID(),
		OutputDatabaseEndpoint: d.Database.Endpoint(),
		OutputLoadBalancerDNS:  d.Edge.DNSName(),
	}
}

func (d *Deployment) checkIdentities() error {
	for _, id := range []*Identity{d.ComputeIdentity, d.Database.Access} {
		if err := id.Check(); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the declared resource at addr.
func (d *Deployment) Find(addr string) *ir.Resource {
	for _, r := range d.Resources {
		if r.Addr() == addr {
			return r
		}
	}
	return nil
}

// OfType returns the declared resources of one type in declaration order.
func (d *Deployment) OfType(typ string) []*ir.Resource {
	var out []*ir.Resource
	for _, r := range d.Resources {
		if r.Type == typ {
			out = append(out, r)
		}
	}
	return out
}
