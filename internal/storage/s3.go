package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures the S3 backend.
type S3Options struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint for S3-compatible stores. Path-style
	// addressing is used whenever it is set.
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL is prepended to object paths by PublicURL.
	PublicBaseURL string
}

// S3 stores objects in a bucket.
type S3 struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3 builds the client. Static credentials are used when both keys are
// set, otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, o S3Options) (*S3, error) {
	region := o.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
			so.UsePathStyle = true
		}
	})
	return &S3{client: client, bucket: o.Bucket, publicBaseURL: o.PublicBaseURL}, nil
}

// Upload puts r under objectPath.
func (s *S3) Upload(ctx context.Context, objectPath string, r io.Reader, contentType string, size int64) (string, error) {
	p, err := cleanPath(objectPath)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(p),
		Body:        r,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return p, nil
}

// Delete removes the objects in a single batch request.
func (s *S3) Delete(ctx context.Context, objectPaths ...string) error {
	if len(objectPaths) == 0 {
		return nil
	}
	ids := make([]types.ObjectIdentifier, 0, len(objectPaths))
	for _, op := range objectPaths {
		p, err := cleanPath(op)
		if err != nil {
			return err
		}
		ids = append(ids, types.ObjectIdentifier{Key: aws.String(p)})
	}
	out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.bucket),
		Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("delete from s3: %w", err)
	}
	if len(out.Errors) > 0 {
		e := out.Errors[0]
		return fmt.Errorf("delete from s3: %s: %s", aws.ToString(e.Key), aws.ToString(e.Message))
	}
	return nil
}

// PublicURL returns the object URL below the configured public base, or ""
// when none is set.
func (s *S3) PublicURL(objectPath string) string {
	return joinURL(s.publicBaseURL, objectPath)
}
