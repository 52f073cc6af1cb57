package stack

import (
	"github.com/picklr-io/webstack/internal/errdefs"
	"github.com/picklr-io/webstack/internal/ir"
)

// ObjectStore is a private bucket for workload assets.
type ObjectStore struct {
	name     string
	resource *ir.Resource
}

// ProvisionObjectStore declares a bucket with every form of public access
// blocked.
func ProvisionObjectStore(bucketName string) (*ObjectStore, error) {
	if bucketName == "" {
		return nil, errdefs.Configuration("objectStore.bucketName", "bucket has no name")
	}
	return &ObjectStore{
		name: bucketName,
		resource: &ir.Resource{
			Type:     ir.TypeBucket,
			Name:     bucketName,
			Provider: "aws",
			Properties: map[string]any{
				"name":              bucketName,
				"blockPublicAccess": true,
				"encryption":        "AES256",
			},
		},
	}, nil
}

func (o *ObjectStore) Resource() *ir.Resource { return o.resource }

// ARN is the bucket ARN. Bucket names are global, so it is known before the
// bucket exists.
func (o *ObjectStore) ARN() string { return "arn:aws:s3:::" + o.name }

// ObjectsARN covers every object in the bucket.
func (o *ObjectStore) ObjectsARN() string { return o.ARN() + "/*" }
