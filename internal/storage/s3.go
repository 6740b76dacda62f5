package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"legal-rag/internal/helper"
)

// S3API is the subset of the S3 client used by S3Bucket.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Bucket stores objects in one S3 bucket. Every call is retried with
// exponential backoff.
type S3Bucket struct {
	client S3API
	name   string
	region string
	retry  helper.RetryPolicy
}

func NewS3Bucket(client S3API, name, region string, retry helper.RetryPolicy) *S3Bucket {
	return &S3Bucket{client: client, name: name, region: region, retry: retry}
}

// NewS3BucketFromConfig creates the S3 client from an AWS config.
func NewS3BucketFromConfig(cfg aws.Config, name string) *S3Bucket {
	return NewS3Bucket(s3.NewFromConfig(cfg), name, cfg.Region, helper.DefaultRetryPolicy)
}

func (b *S3Bucket) Name() string { return b.name }

func (b *S3Bucket) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	_, err := helper.Retry(ctx, b.retry, "s3.list", func(ctx context.Context) error {
		keys = keys[:0]
		p := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(b.name),
			Prefix: aws.String(prefix),
		})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return notFoundIsPermanent(err)
			}
			for _, obj := range page.Contents {
				keys = append(keys, aws.ToString(obj.Key))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", b.name, prefix, err)
	}
	return keys, nil
}

func (b *S3Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	_, err := helper.Retry(ctx, b.retry, "s3.get", func(ctx context.Context) error {
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.name),
			Key:    aws.String(key),
		})
		if err != nil {
			return notFoundIsPermanent(err)
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", b.name, key, err)
	}
	return data, nil
}

func (b *S3Bucket) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := helper.Retry(ctx, b.retry, "s3.put", func(ctx context.Context) error {
		in := &s3.PutObjectInput{
			Bucket: aws.String(b.name),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		}
		if contentType != "" {
			in.ContentType = aws.String(contentType)
		}
		_, err := b.client.PutObject(ctx, in)
		return err
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", b.name, key, err)
	}
	log.Debug().Str("bucket", b.name).Str("key", key).Int("bytes", len(data)).Msg("Uploaded object")
	return nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (b *S3Bucket) EnsureBucket(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", b.name, err)
	}

	log.Info().Str("bucket", b.name).Msg("Bucket not found, creating")
	in := &s3.CreateBucketInput{Bucket: aws.String(b.name)}
	if b.region != "" && b.region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.region),
		}
	}
	_, err = helper.Retry(ctx, b.retry, "s3.create_bucket", func(ctx context.Context) error {
		_, err := b.client.CreateBucket(ctx, in)
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("create bucket %s: %w", b.name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var (
		noKey    *types.NoSuchKey
		noBucket *types.NoSuchBucket
		notFound *types.NotFound
	)
	return errors.As(err, &noKey) || errors.As(err, &noBucket) || errors.As(err, &notFound)
}

func notFoundIsPermanent(err error) error {
	if isNotFound(err) {
		return helper.Permanent(fmt.Errorf("%w: %v", ErrNotFound, err))
	}
	return err
}
