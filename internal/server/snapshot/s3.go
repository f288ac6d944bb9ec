// Package snapshot archives the canonical rows of each successful sync to
// S3-compatible object storage, giving every backup run a durable,
// point-in-time copy independent of the primary database. Email addresses in
// a snapshot stay vault-sealed.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	putObject = func(client *s3.Client, ctx context.Context, in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
		return client.PutObject(ctx, in)
	}
)

type S3Archiver struct {
	client *s3.Client
	bucket string
}

// NewS3Archiver builds an archiver against an S3-compatible endpoint
// (MinIO in development) using static credentials.
func NewS3Archiver(ctx context.Context, rootUser, rootPassword, bucket, region, baseEndpoint string) (*S3Archiver, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			rootUser,
			rootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if baseEndpoint != "" {
			o.BaseEndpoint = aws.String(baseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Archiver{client: client, bucket: bucket}, nil
}

// Archive writes one timestamped JSON object per successful sync and returns
// its storage key.
func (a *S3Archiver) Archive(ctx context.Context, connectionID string, subs []*models.Subscriber) (string, error) {
	body, err := json.Marshal(subs)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("connections/%s/%s.json", connectionID, time.Now().UTC().Format("20060102T150405Z"))

	_, err = putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("put snapshot: %w", err)
	}

	return key, nil
}
