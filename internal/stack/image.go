package stack

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/picklr-io/webstack/internal/config"
)

var ecrHost = regexp.MustCompile(`^(\d{12})\.dkr\.ecr\.([a-z0-9-]+)\.amazonaws\.com$`)

// ImageRef is a container image pinned to a tag.
type ImageRef struct {
	Registry   string
	Repository string
	Tag        string

	account string
	region  string
}

// ParseImage splits a registry path into its registry host, repository and
// tag.
func ParseImage(image string) (ImageRef, error) {
	repo, tag, err := config.SplitImage(image)
	if err != nil {
		return ImageRef{}, err
	}
	ref := ImageRef{Repository: repo, Tag: tag}
	if i := strings.Index(repo, "/"); i > 0 {
		host := repo[:i]
		if strings.ContainsAny(host, ".:") || host == "localhost" {
			ref.Registry = host
			ref.Repository = repo[i+1:]
		}
	}
	if m := ecrHost.FindStringSubmatch(ref.Registry); m != nil {
		ref.account, ref.region = m[1], m[2]
	}
	return ref, nil
}

// String returns the full pull reference.
func (r ImageRef) String() string {
	if r.Registry == "" {
		return r.Repository + ":" + r.Tag
	}
	return r.Registry + "/" + r.Repository + ":" + r.Tag
}

// IsECR reports whether the image is hosted in an ECR private registry, which
// the compute identity authenticates to.
func (r ImageRef) IsECR() bool { return r.account != "" }

// Region is the ECR registry region, or "" for other registries.
func (r ImageRef) Region() string { return r.region }

// Account is the registry account of an ECR image.
func (r ImageRef) Account() string { return r.account }

// RepositoryARN is the ARN of the ECR repository the image lives in.
func (r ImageRef) RepositoryARN() string {
	return fmt.Sprintf("arn:aws:ecr:%s:%s:repository/%s", r.region, r.account, r.Repository)
}
