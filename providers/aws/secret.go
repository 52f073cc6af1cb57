package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

type SecretConfig struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Generate    SecretGenerate `json:"generate"`
}

type SecretGenerate struct {
	Length            int    `json:"length"`
	ExcludeCharacters string `json:"excludeCharacters"`
	Username          string `json:"username"`
}

type SecretState struct {
	Name       string `json:"name"`
	ARN        string `json:"arn"`
	ARNPattern string `json:"arnPattern"`
}

// credential is the secret value layout the database reads.
type credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (p *Provider) applySecret(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[SecretConfig](desiredJSON, "secret")
	if err != nil {
		return nil, err
	}

	// The password is generated server side and never returned in state.
	pw, err := p.secretsmanagerClient.GetRandomPassword(ctx, &secretsmanager.GetRandomPasswordInput{
		PasswordLength:    func(i int64) *int64 { return &i }(int64(desired.Generate.Length)),
		ExcludeCharacters: &desired.Generate.ExcludeCharacters,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret value: %w", err)
	}

	value, err := json.Marshal(credential{Username: desired.Generate.Username, Password: *pw.RandomPassword})
	if err != nil {
		return nil, fmt.Errorf("failed to encode secret value: %w", err)
	}

	resp, err := p.secretsmanagerClient.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
		Name:         &desired.Name,
		Description:  &desired.Description,
		SecretString: strPtr(string(value)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create secret: %w", err)
	}

	return SecretState{
		Name:       desired.Name,
		ARN:        *resp.ARN,
		ARNPattern: secretARNPattern(*resp.ARN),
	}, nil
}

func (p *Provider) deleteSecret(ctx context.Context, currentJSON []byte) error {
	current, err := decode[SecretState](currentJSON, "secret state")
	if err != nil {
		return err
	}
	if current.ARN == "" {
		return nil
	}

	_, err = p.secretsmanagerClient.DeleteSecret(ctx, &secretsmanager.DeleteSecretInput{
		SecretId:                   &current.ARN,
		ForceDeleteWithoutRecovery: boolPtr(true),
	})
	var nf *smtypes.ResourceNotFoundException
	if err != nil && !errors.As(err, &nf) {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	return nil
}

// readCredential fetches the current value of a generated secret.
func (p *Provider) readCredential(ctx context.Context, secretARN string) (*credential, error) {
	resp, err := p.secretsmanagerClient.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{SecretId: &secretARN})
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	var c credential
	if err := json.Unmarshal([]byte(deref(resp.SecretString)), &c); err != nil {
		return nil, fmt.Errorf("secret %s is not a database credential", secretARN)
	}
	if c.Username == "" || c.Password == "" {
		return nil, fmt.Errorf("secret %s is not a database credential", secretARN)
	}
	return &c, nil
}

// secretARNPattern matches every version suffix of a secret.
// arn:aws:secretsmanager:r:a:secret:name-AbCdEf -> ...:secret:name-*
func secretARNPattern(arn string) string {
	idx := strings.LastIndex(arn, "-")
	if idx < 0 || len(arn)-idx-1 != 6 {
		return arn + "-*"
	}
	return arn[:idx] + "-*"
}
