// Package objects is the gateway to the S3-compatible bucket holding user
// files. It knows nothing about identities; callers authorize keys first.
package objects

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/filegate/internal/common"
	sc "github.com/dmitrijs2005/filegate/internal/server/config"
)

// Gateway is the object-store surface used by the file service. Every error
// it returns wraps common.ErrStorageFailure.
type Gateway interface {
	Upload(ctx context.Context, key string, body io.Reader, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

type objectAPI interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type uploaderAPI interface {
	Upload(ctx context.Context, in *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Gateway implements Gateway on aws-sdk-go-v2. Uploads go through the
// transfer manager, so large bodies are sent as multipart uploads.
type S3Gateway struct {
	bucket    string
	client    objectAPI
	uploader  uploaderAPI
	presigner presignAPI
}

// NewS3Gateway builds the S3 clients from cfg. A non-empty S3BaseEndpoint
// targets an S3-compatible server such as MinIO with path-style addressing.
func NewS3Gateway(ctx context.Context, cfg *sc.Config) (*S3Gateway, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3RootUser != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	}

	awsCfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Gateway{
		bucket:    cfg.S3Bucket,
		client:    client,
		uploader:  manager.NewUploader(client),
		presigner: s3.NewPresignClient(client),
	}, nil
}

func (g *S3Gateway) Upload(ctx context.Context, key string, body io.Reader, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	if _, err := g.uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("%w: upload %s: %v", common.ErrStorageFailure, key, err)
	}
	return nil
}

// List returns every key under prefix, following continuation tokens.
func (g *S3Gateway) List(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}

	p := s3.NewListObjectsV2Paginator(g.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(g.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list %s: %v", common.ErrStorageFailure, prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}

	return keys, nil
}

func (g *S3Gateway) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := g.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", common.ErrStorageFailure, key, err)
	}
	return req.URL, nil
}

func (g *S3Gateway) Delete(ctx context.Context, key string) error {
	_, err := g.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(g.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", common.ErrStorageFailure, key, err)
	}
	return nil
}
