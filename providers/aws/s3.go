package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type BucketConfig struct {
	Name              string `json:"name"`
	BlockPublicAccess bool   `json:"blockPublicAccess"`
	Encryption        string `json:"encryption"`
}

type BucketState struct {
	Name       string `json:"name"`
	ARN        string `json:"arn"`
	ObjectsARN string `json:"objectsArn"`
}

func (p *Provider) applyBucket(ctx context.Context, name string, desiredJSON []byte) (any, error) {
	desired, err := decode[BucketConfig](desiredJSON, "bucket")
	if err != nil {
		return nil, err
	}

	input := &s3.CreateBucketInput{Bucket: &desired.Name}
	if p.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.region),
		}
	}
	if _, err := p.s3Client.CreateBucket(ctx, input); err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	if desired.BlockPublicAccess {
		_, err = p.s3Client.PutPublicAccessBlock(ctx, &s3.PutPublicAccessBlockInput{
			Bucket: &desired.Name,
			PublicAccessBlockConfiguration: &types.PublicAccessBlockConfiguration{
				BlockPublicAcls:       boolPtr(true),
				BlockPublicPolicy:     boolPtr(true),
				IgnorePublicAcls:      boolPtr(true),
				RestrictPublicBuckets: boolPtr(true),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to block public access on %s: %w", desired.Name, err)
		}
	}

	if desired.Encryption != "" {
		_, err = p.s3Client.PutBucketEncryption(ctx, &s3.PutBucketEncryptionInput{
			Bucket: &desired.Name,
			ServerSideEncryptionConfiguration: &types.ServerSideEncryptionConfiguration{
				Rules: []types.ServerSideEncryptionRule{{
					ApplyServerSideEncryptionByDefault: &types.ServerSideEncryptionByDefault{
						SSEAlgorithm: types.ServerSideEncryption(desired.Encryption),
					},
				}},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure encryption on %s: %w", desired.Name, err)
		}
	}

	arn := "arn:aws:s3:::" + desired.Name
	return BucketState{Name: desired.Name, ARN: arn, ObjectsARN: arn + "/*"}, nil
}

func (p *Provider) deleteBucket(ctx context.Context, currentJSON []byte) error {
	current, err := decode[BucketState](currentJSON, "bucket state")
	if err != nil {
		return err
	}
	if current.Name == "" {
		return nil
	}

	_, err = p.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: &current.Name})
	var nf *types.NoSuchBucket
	if err != nil && !errors.As(err, &nf) {
		return fmt.Errorf("failed to delete bucket %s: %w", current.Name, err)
	}
	return nil
}
