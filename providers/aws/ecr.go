package aws

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
)

// RegistryCredentials is a short lived login for an ECR registry.
type RegistryCredentials struct {
	Username      string
	Password      string
	ServerAddress string
}

// RegistryLogin exchanges the caller's identity for a registry login.
// The registry is the 12 digit account hosting the repository.
func (p *Provider) RegistryLogin(ctx context.Context, registryID string) (*RegistryCredentials, error) {
	if p.ecrClient == nil {
		return nil, fmt.Errorf("provider not configured")
	}
	input := &ecr.GetAuthorizationTokenInput{}
	if registryID != "" {
		input.RegistryIds = []string{registryID}
	}
	resp, err := p.ecrClient.GetAuthorizationToken(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get registry authorization token: %w", err)
	}
	if len(resp.AuthorizationData) == 0 {
		return nil, fmt.Errorf("registry returned no authorization data")
	}
	data := resp.AuthorizationData[0]
	return decodeAuthorizationToken(deref(data.AuthorizationToken), deref(data.ProxyEndpoint))
}

// decodeAuthorizationToken splits a base64 "user:password" token.
func decodeAuthorizationToken(token, endpoint string) (*RegistryCredentials, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("malformed authorization token: %w", err)
	}
	user, pass, ok := strings.Cut(string(raw), ":")
	if !ok || user == "" || pass == "" {
		return nil, fmt.Errorf("malformed authorization token")
	}
	return &RegistryCredentials{
		Username:      user,
		Password:      pass,
		ServerAddress: strings.TrimPrefix(endpoint, "https://"),
	}, nil
}
