package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/anishgillella/serene-sub003/internal/logger"
	"github.com/anishgillella/serene-sub003/internal/types/interfaces"
)

const s3Scheme = "s3"

type s3FileService struct {
	client     *s3.Client
	pathPrefix string
	bucketName string
}

// NewS3FileService creates an S3 file service. A non-empty endpoint selects an
// S3-compatible store with path-style addressing.
func NewS3FileService(ctx context.Context,
	endpoint, region, accessKey, secretKey, bucketName, pathPrefix string,
) (interfaces.FileService, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	if err := ensureS3Bucket(ctx, client, bucketName); err != nil {
		return nil, err
	}
	logger.Infof(ctx, "[S3] File service ready on bucket %s", bucketName)
	return &s3FileService{client: client, pathPrefix: pathPrefix, bucketName: bucketName}, nil
}

func ensureS3Bucket(ctx context.Context, client *s3.Client, bucketName string) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucketName)})
	if err == nil {
		return nil
	}
	var notFound *s3types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to check S3 bucket: %w", err)
	}
	_, err = client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)})
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("failed to create S3 bucket: %w", err)
	}
	return nil
}

func (s *s3FileService) SaveFile(ctx context.Context,
	file *multipart.FileHeader, relationshipID string, documentID string,
) (string, error) {
	objectName := uploadKey(s.pathPrefix, relationshipID, documentID, file.Filename)

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer src.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(objectName),
		Body:          src,
		ContentLength: aws.Int64(file.Size),
		ContentType:   aws.String(file.Header.Get("Content-Type")),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return formatFilePath(s3Scheme, s.bucketName, objectName), nil
}

func (s *s3FileService) GetFile(ctx context.Context, filePath string) (io.ReadCloser, error) {
	bucketName, objectName, err := parseFilePath(s3Scheme, filePath)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectName),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file from S3: %w", err)
	}
	return out.Body, nil
}

func (s *s3FileService) DeleteFile(ctx context.Context, filePath string) error {
	bucketName, objectName, err := parseFilePath(s3Scheme, filePath)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucketName),
		Key:    aws.String(objectName),
	}); err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}
	return nil
}
