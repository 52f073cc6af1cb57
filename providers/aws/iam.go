package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/picklr-io/webstack/internal/logging"
)

type RoleConfig struct {
	Name             string         `json:"name"`
	AssumeRolePolicy map[string]any `json:"assumeRolePolicy"`
	PolicyName       string         `json:"policyName"`
	Policy           PolicyDocument `json:"policy"`
}

type PolicyDocument struct {
	Version   string            `json:"Version"`
	Statement []PolicyStatement `json:"Statement"`
}

type PolicyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

type RoleState struct {
	Name       string `json:"name"`
	ARN        string `json:"arn"`
	PolicyName string `json:"policyName"`
}

type InstanceProfileConfig struct {
	Name     string `json:"name"`
	RoleName string `json:"roleName"`
}

type InstanceProfileState struct {
	Name     string `json:"name"`
	ARN      string `json:"arn"`
	RoleName string `json:"roleName"`
}

func (p *Provider) applyRole(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[RoleConfig](desiredJSON, "role")
	if err != nil {
		return nil, err
	}

	if err := p.checkRepositories(ctx, desired.Policy); err != nil {
		return nil, err
	}

	trust, err := json.Marshal(desired.AssumeRolePolicy)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trust policy: %w", err)
	}
	policy, err := json.Marshal(desired.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal role policy: %w", err)
	}

	resp, err := p.iamClient.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 &desired.Name,
		AssumeRolePolicyDocument: strPtr(string(trust)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	if len(desired.Policy.Statement) > 0 {
		_, err = p.iamClient.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
			RoleName:       &desired.Name,
			PolicyName:     &desired.PolicyName,
			PolicyDocument: strPtr(string(policy)),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to attach policy to role %s: %w", desired.Name, err)
		}
	}

	waiter := iam.NewRoleExistsWaiter(p.iamClient)
	if err := waiter.Wait(ctx, &iam.GetRoleInput{RoleName: &desired.Name}, 2*time.Minute); err != nil {
		return nil, fmt.Errorf("failed waiting for role %s: %w", desired.Name, err)
	}

	return RoleState{Name: desired.Name, ARN: *resp.Role.Arn, PolicyName: desired.PolicyName}, nil
}

func (p *Provider) deleteRole(ctx context.Context, currentJSON []byte) error {
	current, err := decode[RoleState](currentJSON, "role state")
	if err != nil {
		return err
	}
	if current.Name == "" {
		return nil
	}

	if current.PolicyName != "" {
		_, err := p.iamClient.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
			RoleName:   &current.Name,
			PolicyName: &current.PolicyName,
		})
		if err != nil && !isIAMNotFound(err) {
			return fmt.Errorf("failed to delete policy of role %s: %w", current.Name, err)
		}
	}
	_, err = p.iamClient.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: &current.Name})
	if err != nil && !isIAMNotFound(err) {
		return fmt.Errorf("failed to delete role %s: %w", current.Name, err)
	}
	return nil
}

func (p *Provider) applyInstanceProfile(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[InstanceProfileConfig](desiredJSON, "instance profile")
	if err != nil {
		return nil, err
	}

	resp, err := p.iamClient.CreateInstanceProfile(ctx, &iam.CreateInstanceProfileInput{
		InstanceProfileName: &desired.Name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instance profile: %w", err)
	}

	_, err = p.iamClient.AddRoleToInstanceProfile(ctx, &iam.AddRoleToInstanceProfileInput{
		InstanceProfileName: &desired.Name,
		RoleName:            &desired.RoleName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add role %s to instance profile: %w", desired.RoleName, err)
	}

	waiter := iam.NewInstanceProfileExistsWaiter(p.iamClient)
	if err := waiter.Wait(ctx, &iam.GetInstanceProfileInput{InstanceProfileName: &desired.Name}, 2*time.Minute); err != nil {
		return nil, fmt.Errorf("failed waiting for instance profile %s: %w", desired.Name, err)
	}

	return InstanceProfileState{
		Name:     desired.Name,
		ARN:      *resp.InstanceProfile.Arn,
		RoleName: desired.RoleName,
	}, nil
}

func (p *Provider) deleteInstanceProfile(ctx context.Context, currentJSON []byte) error {
	current, err := decode[InstanceProfileState](currentJSON, "instance profile state")
	if err != nil {
		return err
	}
	if current.Name == "" {
		return nil
	}

	if current.RoleName != "" {
		_, err := p.iamClient.RemoveRoleFromInstanceProfile(ctx, &iam.RemoveRoleFromInstanceProfileInput{
			InstanceProfileName: &current.Name,
			RoleName:            &current.RoleName,
		})
		if err != nil && !isIAMNotFound(err) {
			return fmt.Errorf("failed to remove role from instance profile %s: %w", current.Name, err)
		}
	}
	_, err = p.iamClient.DeleteInstanceProfile(ctx, &iam.DeleteInstanceProfileInput{InstanceProfileName: &current.Name})
	if err != nil && !isIAMNotFound(err) {
		return fmt.Errorf("failed to delete instance profile %s: %w", current.Name, err)
	}
	return nil
}

// checkRepositories fails early when the policy grants pull access to an
// image repository that does not exist.
func (p *Provider) checkRepositories(ctx context.Context, doc PolicyDocument) error {
	for _, repo := range policyRepositories(doc) {
		if repo.region != p.region {
			continue
		}
		_, err := p.ecrClient.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
			RegistryId:      strPtr(repo.registry),
			RepositoryNames: []string{repo.name},
		})
		var notFound *ecrtypes.RepositoryNotFoundException
		if errors.As(err, &notFound) {
			return fmt.Errorf("image repository %s not found in registry %s", repo.name, repo.registry)
		}
		if err != nil {
			// Lacking describe permission is not fatal, the instance fails to
			// pull instead.
			logging.Warn("could not verify image repository", "repository", repo.name, "error", err)
		}
	}
	return nil
}

type repository struct {
	region   string
	registry string
	name     string
}

// policyRepositories extracts the ECR repositories named by the policy.
// arn:aws:ecr:<region>:<account>:repository/<name>
func policyRepositories(doc PolicyDocument) []repository {
	seen := map[repository]bool{}
	var repos []repository
	for _, st := range doc.Statement {
		for _, res := range st.Resource {
			parts := strings.SplitN(res, ":", 6)
			if len(parts) != 6 || parts[0] != "arn" || parts[2] != "ecr" {
				continue
			}
			name, ok := strings.CutPrefix(parts[5], "repository/")
			if !ok || name == "" || parts[4] == "" || strings.Contains(name, "*") {
				continue
			}
			repo := repository{region: parts[3], registry: parts[4], name: name}
			if seen[repo] {
				continue
			}
			seen[repo] = true
			repos = append(repos, repo)
		}
	}
	sort.Slice(repos, func(i, j int) bool {
		if repos[i].registry != repos[j].registry {
			return repos[i].registry < repos[j].registry
		}
		return repos[i].name < repos[j].name
	})
	return repos
}

func isIAMNotFound(err error) bool {
	var nf *iamtypes.NoSuchEntityException
	return errors.As(err, &nf)
}
