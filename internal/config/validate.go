package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/picklr-io/webstack/internal/errdefs"
)

var validate = validator.New()

var slugRegex = regexp.MustCompile(`^[a-z][a-z0-9-]{0,30}$`)

func init() {
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugRegex.MatchString(fl.Field().String())
	})
}

// Validate checks field constraints and the cross-field rules validator tags
// cannot express. Every failure is a ConfigurationError.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errdefs.Configuration(fe.Namespace(), "failed %q constraint (value %v)", fe.Tag(), fe.Value())
		}
		return errdefs.Configuration("", "%v", err)
	}

	if _, _, err := SplitImage(c.Image); err != nil {
		return err
	}
	if c.Database.MultiAZ {
		return errdefs.Configuration("Config.Database.MultiAZ", "multi-zone replicas are not supported for this deployment tier")
	}
	if c.Edge.CertificateArn == "" && c.Edge.DomainName == "" {
		return errdefs.Configuration("Config.Edge.CertificateArn", "an encrypted listener needs a certificate ARN or a domain name to look one up")
	}
	for i, o := range c.Overrides.Egress {
		if o.Protocol != "-1" && o.Port == 0 {
			return errdefs.Configuration(fmt.Sprintf("Config.Overrides.Egress[%d].Port", i), "a port is required for protocol %s", o.Protocol)
		}
	}
	return nil
}

// SplitImage splits a registry path into repository and tag. A tag is required
// so that every instance pulls the same image.
func SplitImage(image string) (repository, tag string, err error) {
	slash := strings.LastIndex(image, "/")
	colon := strings.LastIndex(image, ":")
	if colon <= slash || colon == len(image)-1 {
		return "", "", errdefs.Configuration("Config.Image", "image %q must carry an explicit tag", image)
	}
	return image[:colon], image[colon+1:], nil
}
